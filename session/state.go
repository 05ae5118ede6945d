package session

// State is where the session manager is in its lifecycle.
type State int

const (
	// StateUnknown is the state before Init has rehydrated from storage
	StateUnknown State = iota
	// StateAnonymous means there is no usable token
	StateAnonymous
	// StateAuthenticated means a token and its decoded claims are held
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	}
	return "invalid"
}
