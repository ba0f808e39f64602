// Package access resolves what an authenticated subject may do.
package access

type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

type Capability string

const (
	CapReadCatalog           Capability = "catalog:read"
	CapRentBooks             Capability = "rentals:rent"
	CapMakePayments          Capability = "payments:create"
	CapManageOwnSubscription Capability = "subscriptions:own"
	CapManageAnySubscription Capability = "subscriptions:any"
	CapManageAnyRental       Capability = "rentals:any"
	CapManageAnyPayment      Capability = "payments:any"
	CapManageUsers           Capability = "users:manage"
	CapRunJobs               Capability = "jobs:run"
)

// Subject is the caller as loaded from the users table.
type Subject struct {
	UserID string
	Role   Role
	Status Status
}

type Decision struct {
	Allowed bool
	Reason  string
}

var grants = map[Role]map[Capability]bool{
	RoleUser: {
		CapReadCatalog:           true,
		CapRentBooks:             true,
		CapMakePayments:          true,
		CapManageOwnSubscription: true,
	},
	RoleModerator: {
		CapReadCatalog:           true,
		CapRentBooks:             true,
		CapMakePayments:          true,
		CapManageOwnSubscription: true,
		CapManageAnyRental:       true,
	},
	RoleAdmin: {
		CapReadCatalog:           true,
		CapRentBooks:             true,
		CapMakePayments:          true,
		CapManageOwnSubscription: true,
		CapManageAnySubscription: true,
		CapManageAnyRental:       true,
		CapManageAnyPayment:      true,
		CapManageUsers:           true,
		CapRunJobs:               true,
	},
}

// Resolve decides whether s holds capability c. Inactive accounts keep
// read access to the catalog and nothing else.
func Resolve(s Subject, c Capability) Decision {
	if c == CapReadCatalog {
		return Decision{Allowed: true}
	}
	if s.Status != StatusActive {
		return Decision{Reason: "account is inactive"}
	}
	caps, ok := grants[s.Role]
	if !ok {
		return Decision{Reason: "unknown role"}
	}
	if !caps[c] {
		return Decision{Reason: "insufficient permissions"}
	}
	return Decision{Allowed: true}
}

// CanActOn reports whether s may act on a resource owned by ownerID, either
// as its owner (own) or through the broader capability (any).
func CanActOn(s Subject, ownerID string, own, any Capability) bool {
	if s.UserID != "" && s.UserID == ownerID && Resolve(s, own).Allowed {
		return true
	}
	return Resolve(s, any).Allowed
}
