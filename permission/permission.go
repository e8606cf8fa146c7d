// Package permission implements the pure authorization predicates used to
// gate navigation and UI visibility.
//
// Permissions are opaque strings of the form "<resource-area>.<action-code>",
// e.g. "gate_core.can_view_gate_entry". All gating logic in the application
// goes through the small closed set of predicates here; call sites never do
// ad hoc string matching.
//
// The package is side-effect free: no I/O, no logging, no clocks.
package permission

import "strings"

// Set is an immutable snapshot of a user's granted permissions. It is
// replaced wholesale on each permission fetch, never patched.
type Set struct {
	members map[string]struct{}
}

// NewSet builds a Set from a flat permission list. Duplicates collapse;
// a nil or empty list yields an empty set.
func NewSet(permissions []string) Set {
	members := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		members[p] = struct{}{}
	}
	return Set{members: members}
}

// Len returns the number of distinct permissions in the set.
func (s Set) Len() int { return len(s.members) }

// Contains reports whether the exact permission string is granted.
func (s Set) Contains(p string) bool {
	_, ok := s.members[p]
	return ok
}

// Checker evaluates predicates against a permission set and the role of the
// currently selected company.
type Checker struct {
	set         Set
	companyRole string
}

// NewChecker builds a Checker. companyRole is empty when no current company
// is selected.
func NewChecker(set Set, companyRole string) Checker {
	return Checker{set: set, companyRole: companyRole}
}

// HasAnyPermission reports whether required is empty or at least one of its
// entries is granted.
func (c Checker) HasAnyPermission(required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, p := range required {
		if c.set.Contains(p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every entry of required is granted.
// An empty required list is trivially satisfied.
func (c Checker) HasAllPermissions(required []string) bool {
	for _, p := range required {
		if !c.set.Contains(p) {
			return false
		}
	}
	return true
}

// HasModulePermission reports whether any granted permission lives under the
// "<prefix>." namespace. Used for coarse sidebar and route visibility.
func (c Checker) HasModulePermission(prefix string) bool {
	if prefix == "" {
		return false
	}
	dotted := prefix + "."
	for p := range c.set.members {
		if strings.HasPrefix(p, dotted) {
			return true
		}
	}
	return false
}

// HasAnyCompanyRole reports whether the current company's role is one of
// roles.
func (c Checker) HasAnyCompanyRole(roles []string) bool {
	for _, r := range roles {
		if r == c.companyRole {
			return true
		}
	}
	return false
}

// Rule is the declarative requirement attached to a navigation item or
// route. It mirrors the module registry's nav entries: an explicit
// permission list (all-of or any-of), a module prefix, and an optional
// company-role gate.
type Rule struct {
	Permissions  []string
	ModulePrefix string
	CompanyRoles []string
	RequireAll   bool
}

// Empty reports whether the rule imposes no requirement at all.
func (r Rule) Empty() bool {
	return len(r.Permissions) == 0 && r.ModulePrefix == "" && len(r.CompanyRoles) == 0
}

// Evaluate applies the composite gating rule:
//
//  1. a non-empty CompanyRoles list that fails denies outright;
//  2. otherwise a non-empty Permissions list decides via HasAllPermissions
//     or HasAnyPermission, per RequireAll;
//  3. otherwise a bare ModulePrefix decides via HasModulePermission;
//  4. otherwise the rule allows.
//
// Evaluate assumes the permission snapshot is current; callers must treat
// results as unknown, not denied, while permissions are still loading.
func (c Checker) Evaluate(r Rule) bool {
	if len(r.CompanyRoles) > 0 && !c.HasAnyCompanyRole(r.CompanyRoles) {
		return false
	}
	if len(r.Permissions) > 0 {
		if r.RequireAll {
			return c.HasAllPermissions(r.Permissions)
		}
		return c.HasAnyPermission(r.Permissions)
	}
	if r.ModulePrefix != "" {
		return c.HasModulePermission(r.ModulePrefix)
	}
	return true
}
