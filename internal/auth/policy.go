package auth

import (
	"fmt"

	"github.com/kursadbilgin/exception-collector/internal/domain"
)

// Role names understood by the policies.
const (
	RoleAdmin    = "ADMIN"
	RoleOperator = "OPERATOR"
	RoleViewer   = "VIEWER"
)

// Principal is the authenticated caller. CustomerID, when set, scopes the
// principal to a single customer's exceptions.
type Principal struct {
	ID         string
	Roles      []string
	CustomerID string
}

func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Decision is an allow/deny verdict with the reason for the denial.
// Policies are evaluated once per operation, before any side effect.
type Decision struct {
	Allowed bool
	Reason  string
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Err converts a denial into the typed authorization error; nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrForbidden, d.Reason)
}

// ViewPolicy decides whether a principal may see an exception, including
// customer-level restrictions. The fan-out hub uses this as its security
// predicate.
type ViewPolicy struct{}

func NewViewPolicy() *ViewPolicy {
	return &ViewPolicy{}
}

func (ViewPolicy) Decide(p Principal, e *domain.InterfaceException) Decision {
	if e == nil {
		return Deny("no exception to evaluate")
	}
	if p.HasRole(RoleAdmin) {
		return Allow()
	}
	if !p.HasRole(RoleOperator) && !p.HasRole(RoleViewer) {
		return Deny("missing viewer role")
	}
	if p.CustomerID != "" && p.CustomerID != e.CustomerID {
		return Deny("exception belongs to another customer")
	}
	return Allow()
}

// MutationPolicy decides whether a principal may perform a state-changing
// operation.
type MutationPolicy struct{}

func NewMutationPolicy() *MutationPolicy {
	return &MutationPolicy{}
}

func (MutationPolicy) Decide(p Principal, op domain.Operation) Decision {
	if p.HasRole(RoleAdmin) {
		return Allow()
	}
	if !p.HasRole(RoleOperator) {
		return Deny(fmt.Sprintf("operation %s requires operator role", op))
	}
	if p.CustomerID != "" {
		return Deny("customer-scoped principals cannot mutate exceptions")
	}
	return Allow()
}
