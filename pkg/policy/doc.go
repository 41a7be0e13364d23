// Package policy provides an optional Open Policy Agent (OPA) gate the
// executor can consult before applying a plan.
//
// # Usage
//
//	eng, err := policy.NewEngine(logger)
//	result, err := eng.EvaluatePlan(ctx, planResult, policy.Context{Environment: "production"})
//	if !result.Allowed {
//	    for _, v := range result.Violations {
//	        fmt.Printf("%s: %s\n", v.Policy, v.Message)
//	    }
//	}
//
// # Built-in policies
//
//  1. resource-naming - enforces lowercase resource names free of whitespace
//     and shell metacharacters (paths and comma-joined lists are allowed).
//  2. destructive-operation - blocks delete actions in production outside a dry run.
//
// Custom policies can be loaded from .rego files with Loader and handed to
// Engine.LoadPolicies.
package policy
