package identity

import (
	"time"

	"github.com/userplane/userplane/pkg/kernel"
	"github.com/userplane/userplane/pkg/store"
)

// Entity type discriminators.
const (
	EntityProfile    = "PROFILE"
	EntitySettings   = "SETTINGS"
	EntityIdentity   = "IDENTITY"
	EntityMembership = "MEMBERSHIP"
	EntitySubject    = "SUBJECT"
)

// Record statuses and membership roles.
const (
	StatusActive  = "ACTIVE"
	StatusRevoked = "REVOKED"

	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Profile is the per-(tenant, user) profile record. userId is immutable;
// status and updatedAt may change after creation.
type Profile struct {
	TenantID     kernel.TenantID
	UserID       kernel.UserID
	Email        string
	Status       string
	Role         string
	AccountTier  string
	SignupMethod string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Record encodes the profile with its email-lookup and tenant-roster index
// entries.
func (p Profile) Record() (store.Record, error) {
	pk, err := UserPartition(p.TenantID, p.UserID)
	if err != nil {
		return store.Record{}, err
	}

	rec := store.Record{
		PK:         pk,
		SK:         SortKeyProfile,
		EntityType: EntityProfile,
		Attributes: map[string]interface{}{
			"userId":    p.UserID.String(),
			"status":    p.Status,
			"createdAt": p.CreatedAt.UTC().Format(time.RFC3339),
			"updatedAt": p.UpdatedAt.UTC().Format(time.RFC3339),
		},
	}
	if p.Email != "" {
		rec.Attributes["email"] = p.Email
		rec.GSI1PK = EmailKey(p.Email)
		rec.GSI1SK = UserKey(p.UserID)
	}
	if !p.TenantID.IsEmpty() {
		rec.Attributes["tenantId"] = p.TenantID.String()
		rec.GSI3PK = TenantKey(p.TenantID)
		rec.GSI3SK = UserKey(p.UserID)
	}
	if p.Role != "" {
		rec.Attributes["role"] = p.Role
	}
	if p.AccountTier != "" {
		rec.Attributes["accountTier"] = p.AccountTier
	}
	if p.SignupMethod != "" {
		rec.Attributes["signupMethod"] = p.SignupMethod
	}
	return rec, nil
}

// ProfileFromRecord decodes a profile record.
func ProfileFromRecord(rec store.Record) (Profile, error) {
	tenantID, userID, err := ParseUserPartition(rec.PK)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		TenantID:     tenantID,
		UserID:       userID,
		Email:        rec.Attr("email"),
		Status:       rec.Attr("status"),
		Role:         rec.Attr("role"),
		AccountTier:  rec.Attr("accountTier"),
		SignupMethod: rec.Attr("signupMethod"),
		CreatedAt:    parseTime(rec.Attr("createdAt")),
		UpdatedAt:    parseTime(rec.Attr("updatedAt")),
	}, nil
}

// Settings is the per-(tenant, user) preference record.
type Settings struct {
	TenantID  kernel.TenantID
	UserID    kernel.UserID
	Theme     string
	Language  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultSettings are the preferences written at account creation.
func DefaultSettings(tenantID kernel.TenantID, userID kernel.UserID, now time.Time) Settings {
	return Settings{
		TenantID:  tenantID,
		UserID:    userID,
		Theme:     "light",
		Language:  "en",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Record encodes the settings record, including the marketing opt-out
// defaults.
func (s Settings) Record() (store.Record, error) {
	pk, err := UserPartition(s.TenantID, s.UserID)
	if err != nil {
		return store.Record{}, err
	}
	return store.Record{
		PK:         pk,
		SK:         SortKeySettings,
		EntityType: EntitySettings,
		Attributes: map[string]interface{}{
			"createdAt": s.CreatedAt.UTC().Format(time.RFC3339),
			"updatedAt": s.UpdatedAt.UTC().Format(time.RFC3339),
			"preferences": map[string]interface{}{
				"theme":    s.Theme,
				"language": s.Language,
			},
			"notifications": map[string]interface{}{
				"marketing": map[string]interface{}{"email": false},
			},
		},
	}, nil
}

// SettingsFromRecord decodes a settings record.
func SettingsFromRecord(rec store.Record) (Settings, error) {
	tenantID, userID, err := ParseUserPartition(rec.PK)
	if err != nil {
		return Settings{}, err
	}
	s := Settings{
		TenantID:  tenantID,
		UserID:    userID,
		CreatedAt: parseTime(rec.Attr("createdAt")),
		UpdatedAt: parseTime(rec.Attr("updatedAt")),
	}
	if prefs, ok := rec.Attributes["preferences"].(map[string]interface{}); ok {
		s.Theme, _ = prefs["theme"].(string)
		s.Language, _ = prefs["language"].(string)
	}
	return s, nil
}

// FederatedDetails carries the optional attributes present only for
// federated logins.
type FederatedDetails struct {
	UserID      string
	Issuer      string
	DateCreated string
}

// IdentityLink ties one external provider identity to the owning user. It is
// created once per provider and never mutated afterwards except federated
// detail backfill.
type IdentityLink struct {
	TenantID        kernel.TenantID
	UserID          kernel.UserID
	Provider        string
	ProviderSubject string
	Username        string
	CreatedAt       time.Time
	Federated       *FederatedDetails
}

// Record encodes the identity link with its subject-lookup index entry
// pointing back at the owning partition.
func (l IdentityLink) Record() (store.Record, error) {
	pk, err := UserPartition(l.TenantID, l.UserID)
	if err != nil {
		return store.Record{}, err
	}

	rec := store.Record{
		PK:         pk,
		SK:         LinkSortKey(l.Provider),
		EntityType: EntityIdentity,
		GSI2PK:     SubjectKey(l.ProviderSubject),
		GSI2SK:     pk,
		Attributes: map[string]interface{}{
			"provider":    l.Provider,
			"providerSub": l.ProviderSubject,
			"createdAt":   l.CreatedAt.UTC().Format(time.RFC3339),
		},
	}
	if l.Username != "" {
		rec.Attributes["username"] = l.Username
	}
	if l.Federated != nil {
		rec.Attributes["federatedUserId"] = l.Federated.UserID
		rec.Attributes["federatedIssuer"] = l.Federated.Issuer
		rec.Attributes["federatedDateCreated"] = l.Federated.DateCreated
	}
	return rec, nil
}

// IdentityLinkFromRecord decodes an identity link record.
func IdentityLinkFromRecord(rec store.Record) (IdentityLink, error) {
	tenantID, userID, err := ParseUserPartition(rec.PK)
	if err != nil {
		return IdentityLink{}, err
	}
	l := IdentityLink{
		TenantID:        tenantID,
		UserID:          userID,
		Provider:        rec.Attr("provider"),
		ProviderSubject: rec.Attr("providerSub"),
		Username:        rec.Attr("username"),
		CreatedAt:       parseTime(rec.Attr("createdAt")),
	}
	if rec.Attr("federatedUserId") != "" || rec.Attr("federatedIssuer") != "" {
		l.Federated = &FederatedDetails{
			UserID:      rec.Attr("federatedUserId"),
			Issuer:      rec.Attr("federatedIssuer"),
			DateCreated: rec.Attr("federatedDateCreated"),
		}
	}
	return l, nil
}

// SubjectClaim is the uniqueness guard for a provider subject. Secondary
// indexes do not enforce uniqueness, so the claim record, written in the same
// conditional transaction as the identity link, is what makes exactly one
// creation win when two flows race for the same subject. It also gives
// conflict re-resolution a strongly consistent read.
type SubjectClaim struct {
	ProviderSubject string
	Provider        string
	TenantID        kernel.TenantID
	UserID          kernel.UserID
	CreatedAt       time.Time
}

// Record encodes the subject claim.
func (c SubjectClaim) Record() (store.Record, error) {
	owner, err := UserPartition(c.TenantID, c.UserID)
	if err != nil {
		return store.Record{}, err
	}
	return store.Record{
		PK:         SubjectKey(c.ProviderSubject),
		SK:         SortKeySubject,
		EntityType: EntitySubject,
		Attributes: map[string]interface{}{
			"provider":    c.Provider,
			"providerSub": c.ProviderSubject,
			"ownerPk":     owner,
			"userId":      c.UserID.String(),
			"tenantId":    c.TenantID.String(),
			"createdAt":   c.CreatedAt.UTC().Format(time.RFC3339),
		},
	}, nil
}

// SubjectClaimFromRecord decodes a subject claim record.
func SubjectClaimFromRecord(rec store.Record) SubjectClaim {
	return SubjectClaim{
		ProviderSubject: rec.Attr("providerSub"),
		Provider:        rec.Attr("provider"),
		TenantID:        kernel.TenantID(rec.Attr("tenantId")),
		UserID:          kernel.UserID(rec.Attr("userId")),
		CreatedAt:       parseTime(rec.Attr("createdAt")),
	}
}

// Membership ties a user to a tenant and carries the user's role there.
type Membership struct {
	UserID   kernel.UserID
	TenantID kernel.TenantID
	Role     string
	Status   string
	JoinedAt time.Time
}

// Record encodes the membership. The primary key (USER#<user>,
// TENANT#<tenant>) doubles as the membership-by-user lookup, so no secondary
// index entry is needed.
func (m Membership) Record() (store.Record, error) {
	if err := ValidateID(m.UserID.String()); err != nil {
		return store.Record{}, err
	}
	if err := ValidateID(m.TenantID.String()); err != nil {
		return store.Record{}, err
	}
	return store.Record{
		PK:         UserKey(m.UserID),
		SK:         TenantKey(m.TenantID),
		EntityType: EntityMembership,
		Attributes: map[string]interface{}{
			"role":     m.Role,
			"status":   m.Status,
			"joinedAt": m.JoinedAt.UTC().Format(time.RFC3339),
		},
	}, nil
}

// MembershipFromRecord decodes a membership record.
func MembershipFromRecord(rec store.Record) (Membership, error) {
	userID, err := ParseUserKey(rec.PK)
	if err != nil {
		return Membership{}, err
	}
	tenantID, err := ParseTenantKey(rec.SK)
	if err != nil {
		return Membership{}, err
	}
	return Membership{
		UserID:   userID,
		TenantID: tenantID,
		Role:     rec.Attr("role"),
		Status:   rec.Attr("status"),
		JoinedAt: parseTime(rec.Attr("joinedAt")),
	}, nil
}

// IsActive reports whether the membership still grants access.
func (m Membership) IsActive() bool {
	return m.Status == StatusActive
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
