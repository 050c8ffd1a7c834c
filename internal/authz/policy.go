package authz

// Facts carries everything the assignment visibility decision needs, fetched
// by the caller. Keeping the decision a pure function means it can change (or
// be tested) without touching the data layer.
type Facts struct {
	ViewerID   string
	ViewerRole string
	ViewerUnit string

	AssigneeID            string
	AssigneeUnit          string
	AssignedByID          string
	EscalationRecipientID string
	ObserverIDs           []string
}

// CanViewAssignment reports whether the viewer may see an assignment's full
// detail. Any one clause grants access:
//
//	assignee, assigner, current escalation recipient, registered observer,
//	a supervisor in the assignee's org unit, or an admin.
func CanViewAssignment(f Facts) bool {
	if f.ViewerID == "" {
		return false
	}
	if f.ViewerRole == "admin" {
		return true
	}
	if f.ViewerID == f.AssigneeID || f.ViewerID == f.AssignedByID {
		return true
	}
	if f.EscalationRecipientID != "" && f.ViewerID == f.EscalationRecipientID {
		return true
	}
	for _, id := range f.ObserverIDs {
		if f.ViewerID == id {
			return true
		}
	}
	if f.ViewerRole == "supervisor" && f.ViewerUnit != "" && f.ViewerUnit == f.AssigneeUnit {
		return true
	}
	return false
}
