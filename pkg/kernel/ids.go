package kernel

import "github.com/google/uuid"

type UserID string

func NewUserID(id string) UserID { return UserID(id) }
func (u UserID) String() string  { return string(u) }
func (u UserID) IsEmpty() bool   { return string(u) == "" }

type TenantID string

func NewTenantID(id string) TenantID { return TenantID(id) }
func (t TenantID) String() string    { return string(t) }
func (t TenantID) IsEmpty() bool     { return string(t) == "" }

// TenantUnassigned is the sentinel returned when no tenant strategy matched
// and the deployment does not require one. Consumers must treat it as invalid
// for access control.
const TenantUnassigned TenantID = "unassigned"

// NewTimeOrderedID returns an RFC 9562 UUIDv7 string. The high 48 bits carry
// a millisecond timestamp, so lexicographic order approximates creation order.
func NewTimeOrderedID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// GenerateUserID mints a new canonical user id.
func GenerateUserID() (UserID, error) {
	id, err := NewTimeOrderedID()
	if err != nil {
		return "", err
	}
	return UserID(id), nil
}
