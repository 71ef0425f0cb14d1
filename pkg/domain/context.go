package domain

// Reserved evaluation-context names. They shadow attributes of the same name.
const (
	VarUOWID              = "uow_id"
	VarChildCount         = "child_count"
	VarFinishedChildCount = "finished_child_count"
	VarStatus             = "status"
	VarParentID           = "parent_id"
)

// ReservedVariables lists the metadata names every evaluation context carries.
var ReservedVariables = []string{
	VarUOWID,
	VarChildCount,
	VarFinishedChildCount,
	VarStatus,
	VarParentID,
}

// BuildEvaluationContext returns the variables visible to routing conditions.
// Worker identity and engine internals are deliberately absent.
func BuildEvaluationContext(u *UOW) map[string]any {
	vars := CloneAttributes(u.Attributes)
	if vars == nil {
		vars = make(map[string]any)
	}
	vars[VarUOWID] = u.ID
	vars[VarChildCount] = int64(u.ChildCount)
	vars[VarFinishedChildCount] = int64(u.FinishedChildCount)
	vars[VarStatus] = string(u.Status.Canonical())
	if u.ParentID != nil {
		vars[VarParentID] = *u.ParentID
	} else {
		vars[VarParentID] = nil
	}
	return vars
}
