package auth

import (
	"errors"
	"regexp"
)

// subjectPattern defines the valid format for token subjects:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var subjectPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidSubject checks if a token subject meets format requirements.
func IsValidSubject(subject string) bool {
	return subjectPattern.MatchString(subject)
}

// Role represents an authorisation tier.
type Role string

const (
	// RoleViewer can read state but not command masters.
	RoleViewer Role = "viewer"

	// RoleOperator can start, stop and send rooms home.
	RoleOperator Role = "operator"

	// RoleAdmin can do everything, including minting tokens.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole returns true if the role is known.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// MasterScope restricts which masters a token may command.
// A nil MasterScope means unrestricted access.
type MasterScope struct {
	MasterIDs []string
}

// NewMasterScope returns a scope for the given masters, or nil (unrestricted)
// when the list is empty.
func NewMasterScope(masterIDs []string) *MasterScope {
	if len(masterIDs) == 0 {
		return nil
	}
	ids := make([]string, len(masterIDs))
	copy(ids, masterIDs)
	return &MasterScope{MasterIDs: ids}
}

// CanControl returns true if the master is within the scope.
func (s *MasterScope) CanControl(masterID string) bool {
	if s == nil {
		return true
	}
	for _, id := range s.MasterIDs {
		if id == masterID {
			return true
		}
	}
	return false
}

// Sentinel errors for auth operations.
var (
	ErrTokenInvalid   = errors.New("invalid token")
	ErrInvalidRole    = errors.New("invalid role")
	ErrInvalidSubject = errors.New("invalid subject")
	ErrForbidden      = errors.New("insufficient permissions")
)
