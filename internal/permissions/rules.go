// Package permissions implements the composable authorization rules gating
// every protected endpoint. Rules are pure predicates over per-request state,
// combined with short-circuit And/Or/Not; a rule's only side effect is the
// denial it returns. Rules are built once at route registration and evaluated
// once per request.
package permissions

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/wildme/houston/internal/models"
)

// ErrRuleMisuse signals that a documentation-only rule was evaluated at
// runtime. This is a programming defect, not an authorization decision: it
// must never be treated as a normal deny.
var ErrRuleMisuse = errors.New("partial permission rule must never be evaluated")

// Context is the immutable per-request state rules evaluate against.
// User is nil for unauthenticated requests.
type Context struct {
	User *models.User

	// Password carries the form-supplied password for step-up re-auth
	// (PasswordRequired); empty otherwise.
	Password string
}

// Denial is a failed rule check. Status and Message are safe to expose.
type Denial struct {
	Status  int
	Message string
	Rule    string
}

func (d *Denial) Error() string {
	return fmt.Sprintf("%s: %s", d.Rule, d.Message)
}

// Rule is a boolean predicate over a request Context. Check returns nil to
// allow, a *Denial to deny, or ErrRuleMisuse on programming error.
type Rule interface {
	Check(ctx *Context) error
	Name() string
}

// OwnedResource is implemented by resource objects that know their owner.
type OwnedResource interface {
	CheckOwner(u *models.User) bool
}

// SupervisedResource is implemented by resource objects with a supervisor.
type SupervisedResource interface {
	CheckSupervisor(u *models.User) bool
}

// ============================================================
// Combinators
// ============================================================

type andRule struct {
	rules []Rule
}

// And passes only when every rule passes. Evaluation short-circuits on the
// first denial.
func And(rules ...Rule) Rule {
	return &andRule{rules: rules}
}

func (r *andRule) Check(ctx *Context) error {
	for _, rule := range r.rules {
		if err := rule.Check(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *andRule) Name() string { return "and" }

type orRule struct {
	rules []Rule
}

// Or passes when any rule passes, short-circuiting on the first pass.
// When every rule denies, the reported denial is the first 401 if one
// occurred (authentication failure outranks authorization failure),
// otherwise the first denial.
func Or(rules ...Rule) Rule {
	return &orRule{rules: rules}
}

func (r *orRule) Check(ctx *Context) error {
	var first *Denial
	for _, rule := range r.rules {
		err := rule.Check(ctx)
		if err == nil {
			return nil
		}
		var denial *Denial
		if !errors.As(err, &denial) {
			// Misuse and other programming errors propagate immediately
			return err
		}
		if denial.Status == http.StatusUnauthorized {
			return denial
		}
		if first == nil {
			first = denial
		}
	}
	if first == nil {
		first = &Denial{
			Status:  http.StatusForbidden,
			Message: "access denied",
			Rule:    r.Name(),
		}
	}
	return first
}

func (r *orRule) Name() string { return "or" }

type notRule struct {
	rule    Rule
	status  int
	message string
}

// Not inverts a rule: it denies with the given status and message when the
// inner rule passes. Inner misuse errors still propagate.
func Not(rule Rule, status int, message string) Rule {
	return &notRule{rule: rule, status: status, message: message}
}

func (r *notRule) Check(ctx *Context) error {
	err := r.rule.Check(ctx)
	if err == nil {
		return &Denial{Status: r.status, Message: r.message, Rule: r.Name()}
	}
	var denial *Denial
	if errors.As(err, &denial) {
		return nil
	}
	return err
}

func (r *notRule) Name() string { return "not(" + r.rule.Name() + ")" }

// ============================================================
// Leaf rules
// ============================================================

// WriteAccessRule requires the principal to not be read-only.
type WriteAccessRule struct{}

func (WriteAccessRule) Check(ctx *Context) error {
	if ctx.User == nil || !ctx.User.IsRegularUser() {
		return &Denial{
			Status:  http.StatusForbidden,
			Message: "write access required",
			Rule:    "write_access",
		}
	}
	return nil
}

func (WriteAccessRule) Name() string { return "write_access" }

// ActiveUserRule requires an active, authenticated principal. This is the one
// rule permitted to escalate its denial to 401: an unauthenticated principal
// is an authentication failure, not an authorization one.
type ActiveUserRule struct{}

func (ActiveUserRule) Check(ctx *Context) error {
	if ctx.User == nil {
		return &Denial{
			Status:  http.StatusUnauthorized,
			Message: "authentication required",
			Rule:    "active_user",
		}
	}
	if !ctx.User.IsActive {
		return &Denial{
			Status:  http.StatusForbidden,
			Message: "active user required",
			Rule:    "active_user",
		}
	}
	return nil
}

func (ActiveUserRule) Name() string { return "active_user" }

// AdminRule requires the admin capability.
type AdminRule struct{}

func (AdminRule) Check(ctx *Context) error {
	if ctx.User == nil || !ctx.User.IsAdmin {
		return &Denial{
			Status:  http.StatusForbidden,
			Message: "admin privileges required",
			Rule:    "admin",
		}
	}
	return nil
}

func (AdminRule) Name() string { return "admin" }

// PasswordRequiredRule demands step-up re-authentication: the request must
// carry the principal's password, independent of any bearer token.
type PasswordRequiredRule struct{}

func (PasswordRequiredRule) Check(ctx *Context) error {
	if ctx.User == nil || !ctx.User.VerifyPassword(ctx.Password) {
		return &Denial{
			Status:  http.StatusForbidden,
			Message: "password confirmation required",
			Rule:    "password_required",
		}
	}
	return nil
}

func (PasswordRequiredRule) Name() string { return "password_required" }

// OwnerRule passes iff the target object reports the principal as its owner.
// Objects lacking the ownership capability always deny (fail closed).
type OwnerRule struct {
	Object any
}

func (r OwnerRule) Check(ctx *Context) error {
	denial := &Denial{
		Status:  http.StatusForbidden,
		Message: "owner access required",
		Rule:    "owner",
	}
	if ctx.User == nil {
		return denial
	}
	owned, ok := r.Object.(OwnedResource)
	if !ok || owned == nil {
		return denial
	}
	if !owned.CheckOwner(ctx.User) {
		return denial
	}
	return nil
}

func (OwnerRule) Name() string { return "owner" }

// SupervisorRule passes iff the target object reports the principal as its
// supervisor. Same fail-closed behavior as OwnerRule.
type SupervisorRule struct {
	Object any
}

func (r SupervisorRule) Check(ctx *Context) error {
	denial := &Denial{
		Status:  http.StatusForbidden,
		Message: "supervisor access required",
		Rule:    "supervisor",
	}
	if ctx.User == nil {
		return denial
	}
	supervised, ok := r.Object.(SupervisedResource)
	if !ok || supervised == nil {
		return denial
	}
	if !supervised.CheckSupervisor(ctx.User) {
		return denial
	}
	return nil
}

func (SupervisorRule) Name() string { return "supervisor" }

// PartialPermissionDeniedRule exists only as a placeholder inside composite
// rule trees that are never meant to reach it. Evaluating it is a defect.
type PartialPermissionDeniedRule struct{}

func (PartialPermissionDeniedRule) Check(ctx *Context) error {
	return ErrRuleMisuse
}

func (PartialPermissionDeniedRule) Name() string { return "partial_permission_denied" }
