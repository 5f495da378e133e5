package alarm

// Actor identifies the operator who performed an action such as an acknowledgement.
type Actor struct {
	// Hostname is the machine name where the action was performed.
	Hostname string `json:"hostname"`
	// Username is the system user who triggered the action.
	Username string `json:"username"`
}

// Clone returns a copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// String renders the actor as user@host.
func (a *Actor) String() string {
	if a == nil {
		return "<unknown>"
	}

	return a.Username + "@" + a.Hostname
}
