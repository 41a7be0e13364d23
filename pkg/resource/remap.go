package resource

// ActionRemapper is implemented by resources whose plan action needs a
// label other than the create/update/delete/none quartet: Repository's
// update/upgrade maintenance operations and Exec's guard-driven runs both
// declare a desired state that is unconditionally "false" so that a
// pending operation surfaces as a change, then remap the shared planner's
// ActionUpdate to a more honest action value. This stays a post-hoc remap
// rather than a change to the shared algorithm so every other resource type
// gets the plain create/update/delete/none semantics unmodified.
type ActionRemapper interface {
	Resource

	// RemapAction adjusts a freshly computed Plan's Action before it is
	// stored in a PlanResult. Implementations relabel Action only; Changes
	// and Reason pass through untouched so apply-side dispatch still sees
	// the planner's output.
	RemapAction(Plan) Plan
}
