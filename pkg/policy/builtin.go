package policy

import "time"

// GetBuiltinPolicies returns the policies loaded into every new Engine.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		resourceNamingPolicy(),
		destructiveOperationPolicy(),
	}
}

// resourceNamingPolicy enforces resource naming conventions: lowercase, no
// whitespace or shell-significant characters, no leading/trailing hyphen.
// The allowed charset includes path separators and dots since file and
// repository resource names are paths, and commas since package resource
// names are comma-joined lists.
func resourceNamingPolicy() Policy {
	return Policy{
		Name:        "resource-naming",
		Description: "Enforces resource naming conventions (lowercase, no whitespace or shell metacharacters)",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		CreatedAt:   time.Now(),
		Rego: `package statecraft.policies.naming

import rego.v1

deny contains violation if {
	input.resource
	resource := input.resource
	not resource.name
	violation := {
		"message": sprintf("resource %s must have a name", [resource.id]),
		"severity": "error",
		"resource": resource.id,
	}
}

deny contains violation if {
	input.resource
	resource := input.resource
	name := resource.name
	lower(name) != name
	violation := {
		"message": sprintf("resource name '%s' must be lowercase", [name]),
		"severity": "error",
		"resource": resource.id,
	}
}

deny contains violation if {
	input.resource
	resource := input.resource
	name := resource.name
	not regex.match("^[a-z0-9/._:,@+-]+$", name)
	violation := {
		"message": sprintf("resource name '%s' must contain only lowercase letters, numbers, and path punctuation", [name]),
		"severity": "error",
		"resource": resource.id,
	}
}

deny contains violation if {
	input.resource
	resource := input.resource
	name := resource.name
	regex.match("^-", name)
	violation := {
		"message": sprintf("resource name '%s' must not start with a hyphen", [name]),
		"severity": "error",
		"resource": resource.id,
	}
}

deny contains violation if {
	input.resource
	resource := input.resource
	name := resource.name
	regex.match("-$", name)
	violation := {
		"message": sprintf("resource name '%s' must not end with a hyphen", [name]),
		"severity": "error",
		"resource": resource.id,
	}
}`,
	}
}

// destructiveOperationPolicy blocks delete actions against a production
// environment outside of a dry run. Narrowed from the source's
// operation-restrictions policy: the batch-delete-count and
// critical-resource-label checks are dropped because this resource model
// carries no plan-unit batch or label concept to evaluate them against.
func destructiveOperationPolicy() Policy {
	return Policy{
		Name:        "destructive-operation",
		Description: "Prevents delete actions against production without a dry run",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"operations", "safety", "production"},
		CreatedAt:   time.Now(),
		Rego: `package statecraft.policies.operations

import rego.v1

deny contains violation if {
	input.context
	input.resource
	context := input.context
	resource := input.resource

	resource.action == "delete"
	context.environment == "production"
	not context.dry_run

	violation := {
		"message": sprintf("delete of %s is not allowed in production without --dry-run", [resource.id]),
		"severity": "critical",
		"resource": resource.id,
	}
}`,
	}
}
