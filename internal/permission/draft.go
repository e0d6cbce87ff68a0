package permission

import "slices"

// Draft is a private, mutable copy of a matrix used by the administrative edit
// workflow. Readers of the committed matrix never observe a Draft.
type Draft struct {
	modules   []Module
	cells     map[Role]map[Module]Capability
	conflicts []string
}

// Draft returns an editable deep copy of m.
func (m *Matrix) Draft() *Draft {
	d := &Draft{cells: make(map[Role]map[Module]Capability)}
	if m == nil {
		return d
	}
	d.modules = m.Modules()
	d.conflicts = slices.Clone(m.conflicts)
	for role, row := range m.cells {
		cp := make(map[Module]Capability, len(row))
		for mod, c := range row {
			cp[mod] = c
		}
		d.cells[role] = cp
	}
	return d
}

// Set stores capability for (role, module).
func (d *Draft) Set(role Role, module Module, capability Capability) {
	row, ok := d.cells[role]
	if !ok {
		row = make(map[Module]Capability)
		d.cells[role] = row
	}
	row[module] = capability
}

// Toggle flips a single flag and returns the new value.
func (d *Draft) Toggle(role Role, module Module, action Action) bool {
	current := d.cells[role][module]
	next := !current.Allows(action)
	d.Set(role, module, current.With(action, next))
	return next
}

// Remove deletes the cell for (role, module).
func (d *Draft) Remove(role Role, module Module) {
	delete(d.cells[role], module)
}

// Matrix freezes the draft into a new immutable matrix. Later edits to the
// draft do not affect the returned value.
func (d *Draft) Matrix() *Matrix {
	cells := make(map[Role]map[Module]Capability, len(d.cells))
	for role, row := range d.cells {
		cp := make(map[Module]Capability, len(row))
		for mod, c := range row {
			cp[mod] = c
		}
		cells[role] = cp
	}
	mods := make([]Module, len(d.modules))
	copy(mods, d.modules)
	return &Matrix{modules: mods, cells: cells, conflicts: slices.Clone(d.conflicts)}
}

// Change describes one cell that differs between two matrices.
type Change struct {
	Role   Role       `json:"role"`
	Module Module     `json:"module"`
	From   Capability `json:"from"`
	To     Capability `json:"to"`
}

// Diff lists the cells whose capability differs from before to after, ordered by
// role then module. Cells missing on one side compare as NoAccess.
func Diff(before, after *Matrix) []Change {
	union := make(map[Role]map[Module]Capability)
	collect := func(m *Matrix) {
		if m == nil {
			return
		}
		for role, row := range m.cells {
			if union[role] == nil {
				union[role] = make(map[Module]Capability)
			}
			for mod := range row {
				union[role][mod] = NoAccess
			}
		}
	}
	collect(before)
	collect(after)

	var changes []Change
	for _, role := range sortedRoles(union) {
		for _, mod := range sortedModules(union[role]) {
			from, _ := before.Lookup(role, mod)
			to, _ := after.Lookup(role, mod)
			if from != to {
				changes = append(changes, Change{Role: role, Module: mod, From: from, To: to})
			}
		}
	}
	return changes
}
