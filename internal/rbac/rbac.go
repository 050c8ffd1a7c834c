package rbac

type Role string
type Action string

const (
	RoleViewer     Role = "viewer"
	RoleStaff      Role = "staff"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

const (
	ActionRead     Action = "read"
	ActionWrite    Action = "write"
	ActionEscalate Action = "escalate"
	ActionAssign   Action = "assign"
	ActionAdmin    Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleSupervisor:
		return action == ActionRead || action == ActionWrite || action == ActionEscalate || action == ActionAssign
	case RoleStaff:
		return action == ActionRead || action == ActionWrite || action == ActionEscalate
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleStaff, RoleSupervisor, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
