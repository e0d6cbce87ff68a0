// Package permission models the farm dashboard's role/module capability matrix.
package permission

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role is a named class of user with a fixed bundle of permissions.
type Role string

// Supported roles. The set is closed.
const (
	RoleAdmin       Role = "Admin"
	RoleFarmManager Role = "FarmManager"
	RoleAccountant  Role = "Accountant"
	RoleSales       Role = "Sales"
	RoleWorker      Role = "Worker"
)

var allRoles = []Role{RoleAdmin, RoleFarmManager, RoleAccountant, RoleSales, RoleWorker}

var roleDisplayNames = map[Role]string{
	RoleAdmin:       "Admin",
	RoleFarmManager: "Farm Manager",
	RoleAccountant:  "Accountant",
	RoleSales:       "Sales",
	RoleWorker:      "Worker",
}

// Roles returns the closed role set in policy order.
func Roles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	_, ok := roleDisplayNames[r]
	return ok
}

// DisplayName returns the human readable role name, e.g. "Farm Manager".
func (r Role) DisplayName() string {
	if name, ok := roleDisplayNames[r]; ok {
		return name
	}
	return string(r)
}

// ParseRole resolves either the canonical tag or the display name of a role.
// Matching ignores case and surrounding whitespace.
func ParseRole(raw string) (Role, bool) {
	key := foldKey(raw)
	if key == "" {
		return "", false
	}
	for _, role := range allRoles {
		if foldKey(string(role)) == key || foldKey(role.DisplayName()) == key {
			return role, true
		}
	}
	return "", false
}

// Module is a functional area of the application that permissions are scoped to.
type Module string

// Supported modules. The set is closed and owned by configuration, not routing.
const (
	ModuleDashboard  Module = "dashboard"
	ModuleProduction Module = "production"
	ModuleHR         Module = "hr"
	ModuleAccounting Module = "accounting"
	ModuleSales      Module = "sales"
	ModuleInvestment Module = "investment"
	ModuleReports    Module = "reports"
	ModuleAdmin      Module = "admin"
	ModuleInventory  Module = "inventory"
)

var allModules = []Module{
	ModuleDashboard,
	ModuleProduction,
	ModuleHR,
	ModuleAccounting,
	ModuleSales,
	ModuleInvestment,
	ModuleReports,
	ModuleAdmin,
	ModuleInventory,
}

var moduleAcronyms = map[Module]struct{}{
	ModuleHR: {},
}

// Modules returns the closed module set in navigation order.
func Modules() []Module {
	out := make([]Module, len(allModules))
	copy(out, allModules)
	return out
}

// Valid reports whether m belongs to the closed module set.
func (m Module) Valid() bool {
	for _, known := range allModules {
		if m == known {
			return true
		}
	}
	return false
}

// Label returns the English display label for the module.
func (m Module) Label() string {
	if _, ok := moduleAcronyms[m]; ok {
		return cases.Upper(language.English).String(string(m))
	}
	return cases.Title(language.English).String(string(m))
}

// ParseModule resolves a module identifier ignoring case and whitespace.
func ParseModule(raw string) (Module, bool) {
	key := foldKey(raw)
	for _, m := range allModules {
		if string(m) == key {
			return m, true
		}
	}
	return "", false
}

// Action is one of the four capability flags.
type Action string

// Supported actions.
const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

var allActions = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete}

// Actions returns every action in display order.
func Actions() []Action {
	out := make([]Action, len(allActions))
	copy(out, allActions)
	return out
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionCreate, ActionEdit, ActionDelete:
		return true
	}
	return false
}

// ParseAction resolves an action name ignoring case and whitespace.
func ParseAction(raw string) (Action, bool) {
	a := Action(foldKey(raw))
	return a, a.Valid()
}

func foldKey(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), ""))
}
