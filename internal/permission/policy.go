package permission

// exception overrides the base capability of a role for a bucket of modules.
type exception struct {
	modules    []Module
	capability Capability
}

// rolePolicy is evaluated per module: start from base, then apply exceptions in
// order. When a module appears in several exceptions the last one wins.
type rolePolicy struct {
	base       Capability
	exceptions []exception
}

var defaultPolicy = map[Role]rolePolicy{
	RoleAdmin: {
		base: AllAccess,
	},
	RoleFarmManager: {
		base: AllAccess,
		exceptions: []exception{
			{modules: []Module{ModuleAdmin}, capability: NoAccess},
			{modules: []Module{ModuleAccounting}, capability: ReadOnly},
		},
	},
	RoleAccountant: {
		base: NoAccess,
		exceptions: []exception{
			{modules: []Module{ModuleAccounting, ModuleReports}, capability: AllAccess},
			{modules: []Module{ModuleDashboard, ModuleSales, ModuleInventory}, capability: ReadOnly},
		},
	},
	RoleSales: {
		base: NoAccess,
		exceptions: []exception{
			{modules: []Module{ModuleSales}, capability: AllAccess},
			{modules: []Module{ModuleDashboard, ModuleReports, ModuleInventory}, capability: ReadOnly},
		},
	},
	RoleWorker: {
		base: NoAccess,
		exceptions: []exception{
			{modules: []Module{ModuleProduction}, capability: CreateEditView},
			{modules: []Module{ModuleDashboard, ModuleInventory}, capability: ReadOnly},
		},
	},
}

func (p rolePolicy) capabilityFor(module Module) Capability {
	capability := p.base
	for _, ex := range p.exceptions {
		for _, m := range ex.modules {
			if m == module {
				capability = ex.capability
				break
			}
		}
	}
	return capability
}

// DefaultCapabilities evaluates the default policy of role for each module.
// Roles outside the closed set receive NoAccess everywhere.
func DefaultCapabilities(role Role, modules []Module) map[Module]Capability {
	policy, ok := defaultPolicy[role]
	if !ok {
		policy = rolePolicy{base: NoAccess}
	}
	out := make(map[Module]Capability, len(modules))
	for _, m := range modules {
		out[m] = policy.capabilityFor(m)
	}
	return out
}
