package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermRoomRead      Permission = "room:read"
	PermRoomOperate   Permission = "room:operate"
	PermMasterRead    Permission = "master:read"
	PermMasterOperate Permission = "master:operate"
	PermHistoryRead   Permission = "history:read"
	PermRoomSync      Permission = "room:sync"
	PermTokenIssue    Permission = "token:issue"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermRoomRead,
		PermMasterRead,
		PermHistoryRead,
	},
	RoleOperator: {
		PermRoomRead,
		PermRoomOperate,
		PermMasterRead,
		PermMasterOperate,
		PermHistoryRead,
	},
	RoleAdmin: {
		PermRoomRead,
		PermRoomOperate,
		PermMasterRead,
		PermMasterOperate,
		PermHistoryRead,
		PermRoomSync,
		PermTokenIssue,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
