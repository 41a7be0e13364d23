// Package policy gates plans through an optional Open Policy Agent (Rego)
// evaluation before any resource is touched. Attaching an Engine to the
// executor is additive: without one, Check→Plan→Apply behaves exactly as
// the core contract describes.
package policy

import "time"

// Severity is how seriously a violation should be treated.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Blocks reports whether a violation at this severity should abort the run.
func (s Severity) Blocks() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy is one named Rego rule set.
type Policy struct {
	Name        string
	Description string
	Rego        string
	Severity    Severity
	Enabled     bool
	Tags        []string
	CreatedAt   time.Time
}

// Violation is one deny result produced by evaluating a policy.
type Violation struct {
	Policy     string
	ResourceID string
	Message    string
	Severity   Severity
}

// Result is the outcome of evaluating every enabled policy against a plan.
type Result struct {
	Allowed           bool
	Violations        []Violation
	EvaluatedPolicies []string
	EvaluatedAt       time.Time
	Duration          time.Duration
}

// Context carries run metadata a policy may key off: who's running it,
// against which environment, and whether it's a dry run.
type Context struct {
	User        string
	Environment string
	DryRun      bool
}

// resourceFacts is the minimal resource shape exposed to Rego input: enough
// for naming and operation-restriction policies without this package
// depending on the concrete resource implementations.
type resourceFacts struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Name   string `json:"name"`
	Action string `json:"action"`
}

// input is the JSON document every policy is evaluated against.
type input struct {
	Resource resourceFacts `json:"resource"`
	Context  struct {
		User        string `json:"user,omitempty"`
		Environment string `json:"environment,omitempty"`
		Operation   string `json:"operation"`
		DryRun      bool   `json:"dry_run"`
	} `json:"context"`
}
