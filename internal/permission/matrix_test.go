package permission

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDefaultMatrixIsTotal(t *testing.T) {
	m := DefaultMatrix()
	require.NoError(t, Validate(m, Modules()))
	for _, role := range Roles() {
		for _, mod := range Modules() {
			for _, action := range Actions() {
				_, err := Check(m, role, mod, action)
				require.NoError(t, err, "%s/%s/%s", role, mod, action)
			}
		}
	}
}

func TestAdminHasEveryCapability(t *testing.T) {
	m := DefaultMatrix()
	for _, mod := range Modules() {
		for _, action := range Actions() {
			assert.True(t, CanPerform(m, RoleAdmin, mod, action), "admin %s/%s", mod, action)
		}
	}
}

func TestDefaultPolicyScenarios(t *testing.T) {
	m := DefaultMatrix()
	cases := []struct {
		role   Role
		module Module
		action Action
		want   bool
	}{
		{RoleWorker, ModuleProduction, ActionCreate, true},
		{RoleWorker, ModuleProduction, ActionDelete, false},
		{RoleWorker, ModuleInventory, ActionView, true},
		{RoleWorker, ModuleInventory, ActionEdit, false},
		{RoleWorker, ModuleSales, ActionView, false},
		{RoleAccountant, ModuleHR, ActionView, false},
		{RoleAccountant, ModuleAccounting, ActionDelete, true},
		{RoleAccountant, ModuleReports, ActionCreate, true},
		{RoleAccountant, ModuleSales, ActionView, true},
		{RoleAccountant, ModuleSales, ActionEdit, false},
		{RoleFarmManager, ModuleAdmin, ActionView, false},
		{RoleFarmManager, ModuleProduction, ActionEdit, true},
		{RoleFarmManager, ModuleAccounting, ActionView, true},
		{RoleFarmManager, ModuleAccounting, ActionCreate, false},
		{RoleFarmManager, ModuleInvestment, ActionDelete, true},
		{RoleSales, ModuleSales, ActionDelete, true},
		{RoleSales, ModuleAccounting, ActionView, false},
		{RoleSales, ModuleReports, ActionView, true},
		{RoleSales, ModuleReports, ActionCreate, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanPerform(m, tc.role, tc.module, tc.action), "%s/%s/%s", tc.role, tc.module, tc.action)
	}
}

func TestUnknownKeysAreDenied(t *testing.T) {
	m := DefaultMatrix()

	assert.False(t, CanPerform(m, Role("NotARole"), ModuleSales, ActionView))
	assert.False(t, CanPerform(m, RoleAdmin, Module("payroll"), ActionView))
	assert.False(t, CanPerform(m, RoleAdmin, ModuleSales, Action("approve")))
	assert.False(t, CanPerform(nil, RoleAdmin, ModuleSales, ActionView))

	allowed, err := Check(m, Role("NotARole"), ModuleSales, ActionView)
	assert.False(t, allowed)
	assert.True(t, errors.Is(err, ErrUnknownKey))

	_, err = Check(m, RoleAdmin, Module("payroll"), ActionView)
	assert.ErrorIs(t, err, ErrUnknownKey)

	_, err = Check(m, RoleAdmin, ModuleSales, Action("approve"))
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestUnknownRoleDefaultsToNoAccess(t *testing.T) {
	caps := DefaultCapabilities(Role("Visitor"), Modules())
	require.Len(t, caps, len(Modules()))
	for mod, c := range caps {
		assert.Equal(t, NoAccess, c, mod)
	}
}

func TestBuildDefaultMatrixWithSubsetAndEmpty(t *testing.T) {
	empty := BuildDefaultMatrix(nil)
	assert.Empty(t, empty.Modules())
	require.NoError(t, Validate(empty, nil))
	assert.False(t, CanPerform(empty, RoleAdmin, ModuleSales, ActionView))

	subset := BuildDefaultMatrix([]Module{ModuleSales, ModuleSales, Module("bogus"), ModuleHR})
	assert.Equal(t, []Module{ModuleSales, ModuleHR}, subset.Modules())
	require.NoError(t, Validate(subset, subset.Modules()))
	assert.True(t, CanPerform(subset, RoleSales, ModuleSales, ActionDelete))
	assert.False(t, CanPerform(subset, RoleSales, ModuleInventory, ActionView))
}

func TestLastMatchingExceptionWins(t *testing.T) {
	policy := rolePolicy{
		base: NoAccess,
		exceptions: []exception{
			{modules: []Module{ModuleSales}, capability: AllAccess},
			{modules: []Module{ModuleSales, ModuleHR}, capability: ReadOnly},
		},
	}
	assert.Equal(t, ReadOnly, policy.capabilityFor(ModuleSales))
	assert.Equal(t, ReadOnly, policy.capabilityFor(ModuleHR))
	assert.Equal(t, NoAccess, policy.capabilityFor(ModuleAdmin))
}

func TestValidateReportsEveryProblem(t *testing.T) {
	d := DefaultMatrix().Draft()
	d.Remove(RoleWorker, ModuleHR)
	d.Set(Role("Intern"), ModuleSales, ReadOnly)
	d.Set(RoleSales, Module("payroll"), ReadOnly)

	err := Validate(d.Matrix(), Modules())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Problems, "missing Worker/hr")
	assert.Contains(t, verr.Problems, `unknown role "Intern"`)
	assert.Contains(t, verr.Problems, `unknown module "payroll" for role Sales`)
}

func TestReplaceMatrixKeepsCurrentOnFailure(t *testing.T) {
	current := DefaultMatrix()
	d := current.Draft()
	d.Remove(RoleAdmin, ModuleReports)

	got, err := ReplaceMatrix(current, d.Matrix())
	require.ErrorIs(t, err, ErrValidation)
	assert.Same(t, current, got)

	d = current.Draft()
	d.Toggle(RoleWorker, ModuleProduction, ActionDelete)
	proposed := d.Matrix()
	got, err = ReplaceMatrix(current, proposed)
	require.NoError(t, err)
	assert.Same(t, proposed, got)
	assert.True(t, CanPerform(got, RoleWorker, ModuleProduction, ActionDelete))
	assert.False(t, CanPerform(current, RoleWorker, ModuleProduction, ActionDelete))
}

func TestDraftDoesNotLeakIntoSource(t *testing.T) {
	m := DefaultMatrix()
	d := m.Draft()
	assert.True(t, d.Toggle(RoleSales, ModuleHR, ActionView))
	frozen := d.Matrix()
	d.Toggle(RoleSales, ModuleHR, ActionEdit)

	assert.False(t, CanPerform(m, RoleSales, ModuleHR, ActionView))
	assert.True(t, CanPerform(frozen, RoleSales, ModuleHR, ActionView))
	assert.False(t, CanPerform(frozen, RoleSales, ModuleHR, ActionEdit))
}

func TestDiff(t *testing.T) {
	before := DefaultMatrix()
	d := before.Draft()
	d.Set(RoleWorker, ModuleProduction, AllAccess)
	d.Set(RoleAccountant, ModuleHR, ReadOnly)
	after := d.Matrix()

	changes := Diff(before, after)
	require.Len(t, changes, 2)
	assert.Equal(t, Change{Role: RoleAccountant, Module: ModuleHR, From: NoAccess, To: ReadOnly}, changes[0])
	assert.Equal(t, Change{Role: RoleWorker, Module: ModuleProduction, From: CreateEditView, To: AllAccess}, changes[1])
	assert.Empty(t, Diff(before, before))
}

func TestCapabilityString(t *testing.T) {
	assert.Equal(t, "VCED", AllAccess.String())
	assert.Equal(t, "V---", ReadOnly.String())
	assert.Equal(t, "VCE-", CreateEditView.String())
	assert.Equal(t, "----", NoAccess.String())
	assert.Equal(t, "--E-", Capability{Edit: true}.String())
	assert.Equal(t, []Action{ActionView, ActionCreate, ActionEdit}, CreateEditView.Granted())
}

func TestParseHelpers(t *testing.T) {
	role, ok := ParseRole("Farm Manager")
	require.True(t, ok)
	assert.Equal(t, RoleFarmManager, role)

	role, ok = ParseRole(" farmmanager ")
	require.True(t, ok)
	assert.Equal(t, RoleFarmManager, role)

	_, ok = ParseRole("owner")
	assert.False(t, ok)

	mod, ok := ParseModule(" Sales ")
	require.True(t, ok)
	assert.Equal(t, ModuleSales, mod)

	action, ok := ParseAction("DELETE")
	require.True(t, ok)
	assert.Equal(t, ActionDelete, action)

	assert.Equal(t, "HR", ModuleHR.Label())
	assert.Equal(t, "Accounting", ModuleAccounting.Label())
	assert.Equal(t, "Farm Manager", RoleFarmManager.DisplayName())
}

func TestCanonicalOrdering(t *testing.T) {
	doc := DefaultMatrix().Document()
	doc["Zookeeper"] = map[string]Capability{"zoo": ReadOnly}
	m := FromDocument(doc)

	mods := m.Modules()
	require.Len(t, mods, len(Modules())+1)
	assert.Equal(t, Modules(), mods[:len(Modules())])
	assert.Equal(t, Module("zoo"), mods[len(mods)-1])

	roles := sortedRoles(m.cells)
	assert.Equal(t, Roles(), roles[:len(Roles())])
	assert.Equal(t, Role("Zookeeper"), roles[len(roles)-1])
}
