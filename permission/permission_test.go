package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func gateChecker(role string, perms ...string) Checker {
	return NewChecker(NewSet(perms), role)
}

func TestHasAnyPermission(t *testing.T) {
	c := gateChecker("", "gate_core.can_view_gate_entry", "qc.can_edit_inspection")

	tests := []struct {
		name     string
		required []string
		want     bool
	}{
		{"empty required list always passes", nil, true},
		{"single match", []string{"gate_core.can_view_gate_entry"}, true},
		{"one of several matches", []string{"grn.can_post", "qc.can_edit_inspection"}, true},
		{"no overlap", []string{"grn.can_post", "grn.can_view"}, false},
		{"near miss is not a match", []string{"gate_core.can_view"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.HasAnyPermission(tt.required))
		})
	}
}

func TestHasAllPermissions(t *testing.T) {
	c := gateChecker("", "gate_core.can_view_gate_entry", "gate_core.can_create_gate_entry")

	tests := []struct {
		name     string
		required []string
		want     bool
	}{
		{"empty required list is trivially satisfied", nil, true},
		{"full subset", []string{"gate_core.can_view_gate_entry", "gate_core.can_create_gate_entry"}, true},
		{"partial subset fails", []string{"gate_core.can_view_gate_entry", "qc.can_view"}, false},
		{"disjoint fails", []string{"qc.can_view"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.HasAllPermissions(tt.required))
		})
	}
}

func TestHasModulePermission(t *testing.T) {
	c := gateChecker("", "gate_core.can_view_gate_entry")

	assert.True(t, c.HasModulePermission("gate_core"))
	assert.False(t, c.HasModulePermission("gate"), "prefix must match a whole module segment")
	assert.False(t, c.HasModulePermission("qc"))
	assert.False(t, c.HasModulePermission(""))
}

func TestHasAnyCompanyRole(t *testing.T) {
	c := gateChecker("quality_manager")

	assert.True(t, c.HasAnyCompanyRole([]string{"admin", "quality_manager"}))
	assert.False(t, c.HasAnyCompanyRole([]string{"admin"}))
	assert.False(t, c.HasAnyCompanyRole(nil))

	noCompany := gateChecker("")
	assert.False(t, noCompany.HasAnyCompanyRole([]string{"admin"}))
}

func TestEvaluateCompositeRule(t *testing.T) {
	c := gateChecker("gate_operator", "gate_core.can_view_gate_entry")

	tests := []struct {
		name string
		rule Rule
		want bool
	}{
		{"empty rule allows", Rule{}, true},
		{"module prefix grants sidebar visibility", Rule{ModulePrefix: "gate_core"}, true},
		{"explicit permission missing denies", Rule{Permissions: []string{"qc.view"}}, false},
		{"company role gate denies before permissions", Rule{
			CompanyRoles: []string{"admin"},
			Permissions:  []string{"gate_core.can_view_gate_entry"},
		}, false},
		{"company role gate passes through to permissions", Rule{
			CompanyRoles: []string{"gate_operator"},
			Permissions:  []string{"gate_core.can_view_gate_entry"},
		}, true},
		{"require all with one missing denies", Rule{
			Permissions: []string{"gate_core.can_view_gate_entry", "gate_core.can_create_gate_entry"},
			RequireAll:  true,
		}, false},
		{"require any with one present allows", Rule{
			Permissions: []string{"gate_core.can_view_gate_entry", "gate_core.can_create_gate_entry"},
		}, true},
		{"explicit permissions shadow module prefix", Rule{
			Permissions:  []string{"qc.view"},
			ModulePrefix: "gate_core",
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Evaluate(tt.rule))
		})
	}
}

func TestSetIsDetachedFromInput(t *testing.T) {
	perms := []string{"gate_core.can_view_gate_entry"}
	s := NewSet(perms)
	perms[0] = "mutated"

	assert.True(t, s.Contains("gate_core.can_view_gate_entry"))
	assert.Equal(t, 1, s.Len())
}
