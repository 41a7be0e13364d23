package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/statecraft/statecraft/pkg/executor"
	"github.com/statecraft/statecraft/pkg/policy"
	"github.com/statecraft/statecraft/pkg/store"
	"github.com/statecraft/statecraft/pkg/transport"
	"github.com/statecraft/statecraft/pkg/transport/local"
	"github.com/statecraft/statecraft/pkg/transport/ssh"
)

// remoteFlags carries the connection flags shared by plan/apply/check-drift.
// One target host per run; an empty host means the local machine.
type remoteFlags struct {
	host     string
	user     string
	keyPath  string
	password string
	port     int
	escalate bool
}

func (f *remoteFlags) register(cmd rootFlagRegistrar) {
	cmd.StringVar(&f.host, "host", "", "remote host to manage (empty means local)")
	cmd.StringVar(&f.user, "user", "", "secure-shell user")
	cmd.StringVar(&f.keyPath, "key", "", "secure-shell private key path")
	cmd.StringVar(&f.password, "password", "", "secure-shell password (prefer --key)")
	cmd.IntVar(&f.port, "port", 22, "secure-shell port")
	cmd.BoolVar(&f.escalate, "escalate", false, "prefix commands with a non-interactive privilege escalation")
}

// buildTransport returns the local transport when host is empty, otherwise
// a secure-shell transport dialing host lazily on first use.
func (f *remoteFlags) buildTransport() (transport.Transport, error) {
	if f.host == "" {
		return local.New(), nil
	}
	cfg := ssh.DefaultConfig(f.host, f.user)
	cfg.Port = f.port
	cfg.KeyPath = f.keyPath
	cfg.Password = f.password
	cfg.Escalate = f.escalate
	return ssh.New(cfg)
}

// statecraftHome returns ~/.statecraft, creating it on first use.
func statecraftHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".statecraft")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// openStateStore opens the persisted state database at
// ~/.statecraft/state.db, creating it and running migrations on first use.
func openStateStore(ctx context.Context) (*store.SQLiteStore, error) {
	dir, err := statecraftHome()
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, filepath.Join(dir, "state.db"))
}

// newPolicyEngine builds the built-in policy set plus any .rego files found
// under policyPaths.
func newPolicyEngine(logger zerolog.Logger, policyPaths []string) (*policy.Engine, error) {
	eng, err := policy.NewEngine(logger)
	if err != nil {
		return nil, fmt.Errorf("create policy engine: %w", err)
	}
	if len(policyPaths) == 0 {
		return eng, nil
	}
	loaded, err := policy.NewLoader(logger).LoadFromPaths(policyPaths)
	if err != nil {
		return nil, fmt.Errorf("load policies: %w", err)
	}
	if err := eng.LoadPolicies(context.Background(), loaded); err != nil {
		return nil, fmt.Errorf("compile loaded policies: %w", err)
	}
	return eng, nil
}

// buildExecutor wires a fresh Executor against t, probing the platform and
// attaching the optional policy engine and state store.
func buildExecutor(ctx context.Context, t transport.Transport, eng *policy.Engine, st *store.SQLiteStore, user string) *executor.Executor {
	ex := executor.New(t)
	ex.Probe(ctx)
	ex.User = user
	if eng != nil {
		ex.AttachPolicy(eng)
	}
	if st != nil {
		ex.AttachStore(st)
	}
	return ex
}

// rootFlagRegistrar is the minimal pflag surface remoteFlags needs; both
// *cobra.Command's Flags() and PersistentFlags() satisfy it.
type rootFlagRegistrar interface {
	StringVar(p *string, name, value, usage string)
	IntVar(p *int, name string, value int, usage string)
	BoolVar(p *bool, name string, value bool, usage string)
}
