package auth

import "fmt"

// Action identifies an operation guarded by the role policy.
type Action string

const (
	ActionLogin          Action = "login"
	ActionListAdmins     Action = "admins.list"
	ActionViewSuperAdmin Action = "admins.super.view"
	ActionPromoteAdmin   Action = "admins.promote"
	ActionDemoteAdmin    Action = "admins.demote"
	ActionUpdateAdmin    Action = "admins.update"
	ActionCreateEmployee Action = "employees.create"
	ActionListEmployees  Action = "employees.list"
	ActionViewEmployee   Action = "employees.view"
	ActionDeleteEmployee Action = "employees.delete"
)

// Decision is the outcome of a policy evaluation.
type Decision bool

const (
	Deny  Decision = false
	Allow Decision = true
)

func (d Decision) String() string {
	if d {
		return "allow"
	}
	return "deny"
}

var minimumRole = map[Action]Role{
	ActionLogin:          RoleAdmin,
	ActionListAdmins:     RoleSysadmin,
	ActionViewSuperAdmin: RoleSysadmin,
	ActionPromoteAdmin:   RoleSysadmin,
	ActionDemoteAdmin:    RoleSysadmin,
	ActionUpdateAdmin:    RoleSysadmin,
	ActionCreateEmployee: RoleAdmin,
	ActionListEmployees:  RoleAdmin,
	ActionViewEmployee:   RoleAdmin,
	ActionDeleteEmployee: RoleSysadmin,
}

// Actions returns every guarded action.
func Actions() []Action {
	out := make([]Action, 0, len(minimumRole))
	for a := range minimumRole {
		out = append(out, a)
	}
	return out
}

// MinimumRole returns the lowest role allowed to perform a. Unknown actions
// report ok=false.
func MinimumRole(a Action) (Role, bool) {
	r, ok := minimumRole[a]
	return r, ok
}

// Authorize decides whether role may perform action. It never performs I/O.
func Authorize(role Role, action Action) Decision {
	min, ok := minimumRole[action]
	if !ok {
		return Deny
	}
	return Decision(role.AtLeast(min))
}

// DecisionObserver receives every policy decision made through Require.
type DecisionObserver func(action Action, d Decision)

var observer DecisionObserver = func(Action, Decision) {}

// SetDecisionObserver installs fn as the decision observer. Intended to be
// called once at startup.
func SetDecisionObserver(fn DecisionObserver) {
	if fn == nil {
		fn = func(Action, Decision) {}
	}
	observer = fn
}

// Require returns nil when caller may perform action, ErrUnauthenticated when
// the caller carries no identity and ErrForbidden otherwise. The decision is
// reported to the observer.
func Require(caller Caller, action Action) error {
	if caller.UID == "" {
		return ErrUnauthenticated
	}
	d := Authorize(caller.Role, action)
	observer(action, d)
	return denied(caller, action, d)
}

// Check evaluates the same rule as Require. The HTTP layer uses it to reject
// before decoding a body. Only denials are reported: an allowed request goes
// on to the operation, whose Require reports it.
func Check(caller Caller, action Action) error {
	if caller.UID == "" {
		return ErrUnauthenticated
	}
	d := Authorize(caller.Role, action)
	if d == Deny {
		observer(action, d)
	}
	return denied(caller, action, d)
}

func denied(caller Caller, action Action, d Decision) error {
	if d == Deny {
		return fmt.Errorf("%w: %s denied for role %s", ErrForbidden, action, caller.Role)
	}
	return nil
}
