package permission

// Capability holds the four independent access flags for one (role, module) pair.
// Flags do not imply each other: Edit may be granted without View.
type Capability struct {
	View   bool `json:"view"`
	Create bool `json:"create"`
	Edit   bool `json:"edit"`
	Delete bool `json:"delete"`
}

// Named presets used by the default policy.
var (
	AllAccess      = Capability{View: true, Create: true, Edit: true, Delete: true}
	ReadOnly       = Capability{View: true}
	NoAccess       = Capability{}
	CreateEditView = Capability{View: true, Create: true, Edit: true}
)

// Allows reports the flag stored for action. Unknown actions are denied.
func (c Capability) Allows(action Action) bool {
	switch action {
	case ActionView:
		return c.View
	case ActionCreate:
		return c.Create
	case ActionEdit:
		return c.Edit
	case ActionDelete:
		return c.Delete
	default:
		return false
	}
}

// With returns a copy of c with the flag for action set to allowed.
func (c Capability) With(action Action, allowed bool) Capability {
	switch action {
	case ActionView:
		c.View = allowed
	case ActionCreate:
		c.Create = allowed
	case ActionEdit:
		c.Edit = allowed
	case ActionDelete:
		c.Delete = allowed
	}
	return c
}

// Granted lists the allowed actions in display order.
func (c Capability) Granted() []Action {
	var out []Action
	for _, a := range allActions {
		if c.Allows(a) {
			out = append(out, a)
		}
	}
	return out
}

// String renders the V/C/E/D short form, using "-" for denied flags.
func (c Capability) String() string {
	buf := []byte("----")
	letters := "VCED"
	for i, a := range allActions {
		if c.Allows(a) {
			buf[i] = letters[i]
		}
	}
	return string(buf)
}
