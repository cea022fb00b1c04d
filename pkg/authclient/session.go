package authclient

// State is where a client session is in its lifecycle.
type State int

const (
	Anonymous State = iota
	Authenticated
	Refreshing
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	}
	return "unknown"
}

type Event interface{ event() }

type (
	EventLoggedIn         struct{}
	EventUnauthorized     struct{ Retried bool }
	EventRefreshSucceeded struct{}
	EventRefreshFailed    struct{}
	EventLoggedOut        struct{}
)

func (EventLoggedIn) event()         {}
func (EventUnauthorized) event()     {}
func (EventRefreshSucceeded) event() {}
func (EventRefreshFailed) event()    {}
func (EventLoggedOut) event()        {}

// Effect tells the caller of Transition what to do next.
type Effect int

const (
	EffectNone Effect = iota
	// EffectPersist saves the current session.
	EffectPersist
	// EffectStartRefresh exchanges the refresh token for a new pair.
	EffectStartRefresh
	// EffectRetry persists the new pair and replays the failed request once.
	EffectRetry
	// EffectClearAndRedirect drops the session and sends the user back to login.
	EffectClearAndRedirect
	// EffectClear drops the session.
	EffectClear
	// EffectFail hands the 401 to the caller unchanged.
	EffectFail
)

func (e Effect) String() string {
	switch e {
	case EffectNone:
		return "none"
	case EffectPersist:
		return "persist"
	case EffectStartRefresh:
		return "start_refresh"
	case EffectRetry:
		return "retry"
	case EffectClearAndRedirect:
		return "clear_and_redirect"
	case EffectClear:
		return "clear"
	case EffectFail:
		return "fail"
	}
	return "unknown"
}

// Transition is the session state machine. It does no I/O.
func Transition(s State, ev Event) (State, Effect) {
	switch e := ev.(type) {
	case EventLoggedIn:
		return Authenticated, EffectPersist

	case EventLoggedOut:
		return Anonymous, EffectClear

	case EventUnauthorized:
		if e.Retried {
			return s, EffectFail
		}
		switch s {
		case Authenticated:
			return Refreshing, EffectStartRefresh
		case Refreshing:
			// join the refresh already in flight
			return Refreshing, EffectNone
		}
		return s, EffectFail

	case EventRefreshSucceeded:
		if s == Refreshing {
			return Authenticated, EffectRetry
		}
		return s, EffectNone

	case EventRefreshFailed:
		if s == Refreshing {
			return Anonymous, EffectClearAndRedirect
		}
		return s, EffectNone
	}
	return s, EffectNone
}
