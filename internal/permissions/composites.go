package permissions

// Composite permissions used by endpoint registrations. Each returns a fresh
// rule tree; trees are cheap and never shared across requests with different
// target objects.

// ActiveUser requires an authenticated, active principal.
func ActiveUser() Rule {
	return ActiveUserRule{}
}

// WriteAccess requires an active principal with write capability.
func WriteAccess() Rule {
	return And(ActiveUserRule{}, WriteAccessRule{})
}

// Admin requires an active admin principal.
func Admin() Rule {
	return And(ActiveUserRule{}, AdminRule{})
}

// AdminWithPassword gates destructive admin actions behind step-up
// password confirmation in addition to the bearer token.
func AdminWithPassword() Rule {
	return And(ActiveUserRule{}, AdminRule{}, PasswordRequiredRule{})
}

// OwnerOrAdmin is the descending-privilege union used by most single-object
// endpoints: the owner of obj, or an admin.
func OwnerOrAdmin(obj any) Rule {
	return And(ActiveUserRule{}, Or(OwnerRule{Object: obj}, AdminRule{}))
}

// OwnerOrSupervisorOrAdmin is the full descending-privilege union.
func OwnerOrSupervisorOrAdmin(obj any) Rule {
	return And(
		ActiveUserRule{},
		Or(OwnerRule{Object: obj}, SupervisorRule{Object: obj}, AdminRule{}),
	)
}

// OwnerWithWriteOrAdmin additionally requires write capability for the
// owner path; admins bypass the write check.
func OwnerWithWriteOrAdmin(obj any) Rule {
	return And(
		ActiveUserRule{},
		Or(And(OwnerRule{Object: obj}, WriteAccessRule{}), AdminRule{}),
	)
}
