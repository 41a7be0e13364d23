package ssh

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Config holds secure-shell connection configuration: one host, one auth
// method, an explicit privilege-escalation flag.
type Config struct {
	Host string
	Port int
	User string

	// Exactly one of KeyPath or Password should be set.
	KeyPath            string
	KeyPassphrase      string
	Password           string

	// KnownHostsPath enables strict host key verification when set.
	KnownHostsPath string

	// ConnectTimeout bounds connection establishment only; individual
	// command execution has no timeout in the core contract.
	ConnectTimeout time.Duration

	// Escalate prepends a non-interactive privilege-escalation prefix to
	// every shell command and makes file writes go to a staging path first,
	// then moves them into place under escalated privilege.
	Escalate bool
}

// DefaultConfig returns sensible defaults for host/user.
func DefaultConfig(host, user string) *Config {
	return &Config{
		Host:           host,
		Port:           22,
		User:           user,
		ConnectTimeout: 30 * time.Second,
	}
}

// Validate checks the configuration is complete enough to dial.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.KeyPath == "" && c.Password == "" {
		return fmt.Errorf("one of key_path or password is required")
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	return nil
}

// clientConfig builds the golang.org/x/crypto/ssh client configuration.
func (c *Config) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod

	if c.KeyPath != "" {
		keyBytes, err := os.ReadFile(c.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		var signer ssh.Signer
		if c.KeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(c.KeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	} else {
		auth = append(auth, ssh.Password(c.Password))
	}

	var hostKeyCallback ssh.HostKeyCallback
	if c.KnownHostsPath != "" {
		cb, err := knownhosts.New(c.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		hostKeyCallback = cb
	} else {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.ConnectTimeout,
	}, nil
}

// Address returns host:port.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
