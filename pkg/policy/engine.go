package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/statecraft/statecraft/pkg/resource"
)

// Engine compiles and evaluates Rego policies against a PlanResult.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

type compiledPolicy struct {
	policy  *Policy
	prepared rego.PreparedEvalQuery
}

// NewEngine creates an Engine pre-loaded with the built-in policies.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}
	for _, p := range GetBuiltinPolicies() {
		p := p
		if err := e.compileAndStore(context.Background(), &p); err != nil {
			return nil, fmt.Errorf("compile built-in policy %s: %w", p.Name, err)
		}
	}
	return e, nil
}

// LoadPolicies compiles additional policies (typically from a Loader) and
// adds them alongside the built-ins, replacing any with the same name.
func (e *Engine) LoadPolicies(ctx context.Context, policies []Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range policies {
		if err := e.compileAndStore(ctx, &policies[i]); err != nil {
			return fmt.Errorf("compile policy %s: %w", policies[i].Name, err)
		}
	}
	return nil
}

func (e *Engine) compileAndStore(ctx context.Context, p *Policy) error {
	if _, err := ast.ParseModule(p.Name, p.Rego); err != nil {
		return fmt.Errorf("parse rego: %w", err)
	}
	packageName := extractPackageName(p.Rego)
	r := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query(fmt.Sprintf("data.%s.deny", packageName)),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("prepare query: %w", err)
	}

	e.mu.Lock()
	e.policies[p.Name] = &compiledPolicy{policy: p, prepared: prepared}
	e.mu.Unlock()
	return nil
}

// EnablePolicy/DisablePolicy toggle a loaded policy by name.
func (e *Engine) EnablePolicy(name string) error  { return e.setEnabled(name, true) }
func (e *Engine) DisablePolicy(name string) error { return e.setEnabled(name, false) }

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp, ok := e.policies[name]
	if !ok {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	return nil
}

// ListPolicies returns every loaded policy, built-in or custom.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		out = append(out, *cp.policy)
	}
	return out
}

// EvaluatePlan evaluates every enabled policy against every planned
// resource with a non-none action, in the plan's declared order.
func (e *Engine) EvaluatePlan(ctx context.Context, pr *resource.PlanResult, evalCtx Context) (*Result, error) {
	start := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{Allowed: true, EvaluatedAt: start}

	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, cp.policy.Name)

		for _, id := range pr.Order {
			plan := pr.Plans[id]
			if plan.Action == resource.ActionNone {
				continue
			}

			in := buildInput(id, string(plan.Action), evalCtx)
			violations, err := e.evaluate(ctx, cp, in)
			if err != nil {
				e.logger.Warn().Err(err).Str("policy", cp.policy.Name).Str("resource", id).Msg("policy evaluation failed")
				continue
			}
			result.Violations = append(result.Violations, violations...)
		}
	}

	for _, v := range result.Violations {
		if v.Severity.Blocks() {
			result.Allowed = false
			break
		}
	}
	result.Duration = time.Since(start)
	return result, nil
}

func buildInput(id, action string, evalCtx Context) input {
	typ, name, _ := strings.Cut(id, ":")
	in := input{Resource: resourceFacts{ID: id, Type: typ, Name: name, Action: action}}
	in.Context.User = evalCtx.User
	in.Context.Environment = evalCtx.Environment
	in.Context.Operation = action
	in.Context.DryRun = evalCtx.DryRun
	return in
}

func (e *Engine) evaluate(ctx context.Context, cp *compiledPolicy, in input) ([]Violation, error) {
	results, err := cp.prepared.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return nil, fmt.Errorf("eval: %w", err)
	}

	var out []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				out = append(out, toViolation(cp.policy, d))
			}
		}
	}
	return out, nil
}

func toViolation(p *Policy, raw interface{}) Violation {
	v := Violation{Policy: p.Name, Severity: p.Severity}
	m, ok := raw.(map[string]interface{})
	if !ok {
		v.Message = fmt.Sprintf("%v", raw)
		return v
	}
	if msg, ok := m["message"].(string); ok {
		v.Message = msg
	}
	if sev, ok := m["severity"].(string); ok {
		v.Severity = Severity(sev)
	}
	if res, ok := m["resource"].(string); ok {
		v.ResourceID = res
	}
	return v
}

func extractPackageName(rego string) string {
	for _, line := range strings.Split(rego, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			fields := strings.Fields(trimmed)
			if len(fields) >= 2 {
				return fields[1]
			}
		}
	}
	return "statecraft.policies"
}
