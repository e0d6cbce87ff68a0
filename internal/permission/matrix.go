package permission

import (
	"cmp"
	"fmt"
	"slices"
)

// Matrix maps every (role, module) pair to a Capability. A Matrix is immutable once
// built; edits go through a Draft and produce a new Matrix.
type Matrix struct {
	modules []Module
	cells   map[Role]map[Module]Capability
	// conflicts lists document keys that resolved to an already present role or
	// module. A matrix with conflicts never validates.
	conflicts []string
}

// BuildDefaultMatrix seeds a matrix from the default role policy for the given modules.
// Modules outside the closed set and duplicates are ignored. An empty module list
// yields an empty matrix that is still total.
func BuildDefaultMatrix(modules []Module) *Matrix {
	mods := normalizeModules(modules)
	cells := make(map[Role]map[Module]Capability, len(allRoles))
	for _, role := range allRoles {
		cells[role] = DefaultCapabilities(role, mods)
	}
	return &Matrix{modules: mods, cells: cells}
}

// DefaultMatrix builds the default matrix over every known module.
func DefaultMatrix() *Matrix {
	return BuildDefaultMatrix(allModules)
}

func normalizeModules(modules []Module) []Module {
	seen := make(map[Module]struct{}, len(modules))
	out := make([]Module, 0, len(modules))
	for _, m := range modules {
		if !m.Valid() {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// Modules returns the module set the matrix covers.
func (m *Matrix) Modules() []Module {
	if m == nil {
		return nil
	}
	out := make([]Module, len(m.modules))
	copy(out, m.modules)
	return out
}

// Lookup returns the capability stored for (role, module).
func (m *Matrix) Lookup(role Role, module Module) (Capability, bool) {
	if m == nil {
		return NoAccess, false
	}
	row, ok := m.cells[role]
	if !ok {
		return NoAccess, false
	}
	c, ok := row[module]
	return c, ok
}

// CanPerform reports whether role may perform action on module. Anything not
// present in the matrix, including unknown roles, modules, or actions, is denied.
func CanPerform(m *Matrix, role Role, module Module, action Action) bool {
	c, ok := m.Lookup(role, module)
	if !ok {
		return false
	}
	return c.Allows(action)
}

// Check is CanPerform with the reason for a denial on unknown keys. It returns
// false and ErrUnknownKey when role, module, or action is not known to the matrix.
func Check(m *Matrix, role Role, module Module, action Action) (bool, error) {
	if !action.Valid() {
		return false, fmt.Errorf("%w: action %q", ErrUnknownKey, action)
	}
	if m == nil {
		return false, fmt.Errorf("%w: no matrix", ErrUnknownKey)
	}
	row, ok := m.cells[role]
	if !ok {
		return false, fmt.Errorf("%w: role %q", ErrUnknownKey, role)
	}
	c, ok := row[module]
	if !ok {
		return false, fmt.Errorf("%w: module %q", ErrUnknownKey, module)
	}
	return c.Allows(action), nil
}

// Capabilities returns a copy of role's row. Unknown roles yield an empty map.
func (m *Matrix) Capabilities(role Role) map[Module]Capability {
	out := make(map[Module]Capability)
	if m == nil {
		return out
	}
	for mod, c := range m.cells[role] {
		out[mod] = c
	}
	return out
}

// Equal reports whether both matrices hold the same cells.
func (m *Matrix) Equal(other *Matrix) bool {
	if m == nil || other == nil {
		return m == other
	}
	if len(m.cells) != len(other.cells) {
		return false
	}
	for role, row := range m.cells {
		otherRow, ok := other.cells[role]
		if !ok || len(row) != len(otherRow) {
			return false
		}
		for mod, c := range row {
			if oc, ok := otherRow[mod]; !ok || oc != c {
				return false
			}
		}
	}
	return true
}

// Validate checks that m is total over the closed role set and the given modules,
// and references nothing outside them.
func Validate(m *Matrix, modules []Module) error {
	if m == nil {
		return &ValidationError{Problems: []string{"matrix is missing"}}
	}
	problems := slices.Clone(m.conflicts)
	expected := make(map[Module]struct{}, len(modules))
	for _, mod := range modules {
		if !mod.Valid() {
			problems = append(problems, fmt.Sprintf("unknown module %q in module set", mod))
			continue
		}
		expected[mod] = struct{}{}
	}
	for _, role := range sortedRoles(m.cells) {
		if !role.Valid() {
			problems = append(problems, fmt.Sprintf("unknown role %q", role))
			continue
		}
		for _, mod := range sortedModules(m.cells[role]) {
			if _, ok := expected[mod]; !ok {
				problems = append(problems, fmt.Sprintf("unknown module %q for role %s", mod, role))
			}
		}
	}
	for _, role := range allRoles {
		row, ok := m.cells[role]
		if !ok {
			problems = append(problems, fmt.Sprintf("missing role %s", role))
			continue
		}
		for _, mod := range modules {
			if _, known := expected[mod]; !known {
				continue
			}
			if _, ok := row[mod]; !ok {
				problems = append(problems, fmt.Sprintf("missing %s/%s", role, mod))
			}
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ReplaceMatrix validates proposed against the module set of current and returns it
// as the new matrix. On failure the returned matrix is current, unchanged.
func ReplaceMatrix(current, proposed *Matrix) (*Matrix, error) {
	if err := Validate(proposed, current.Modules()); err != nil {
		return current, err
	}
	return proposed, nil
}

func sortedRoles(cells map[Role]map[Module]Capability) []Role {
	out := make([]Role, 0, len(cells))
	for role := range cells {
		out = append(out, role)
	}
	slices.SortFunc(out, func(a, b Role) int {
		return cmp.Or(cmp.Compare(roleRank(a), roleRank(b)), cmp.Compare(a, b))
	})
	return out
}

func sortedModules(row map[Module]Capability) []Module {
	out := make([]Module, 0, len(row))
	for mod := range row {
		out = append(out, mod)
	}
	slices.SortFunc(out, func(a, b Module) int {
		return cmp.Or(cmp.Compare(moduleRank(a), moduleRank(b)), cmp.Compare(a, b))
	})
	return out
}

func roleRank(r Role) int {
	for i, known := range allRoles {
		if known == r {
			return i
		}
	}
	return len(allRoles)
}

func moduleRank(m Module) int {
	for i, known := range allModules {
		if known == m {
			return i
		}
	}
	return len(allModules)
}
