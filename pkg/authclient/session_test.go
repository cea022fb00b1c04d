package authclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from    State
		ev      Event
		wantTo  State
		wantEff Effect
	}{
		{Anonymous, EventLoggedIn{}, Authenticated, EffectPersist},
		{Authenticated, EventLoggedIn{}, Authenticated, EffectPersist},
		{Refreshing, EventLoggedIn{}, Authenticated, EffectPersist},

		{Anonymous, EventUnauthorized{}, Anonymous, EffectFail},
		{Authenticated, EventUnauthorized{}, Refreshing, EffectStartRefresh},
		{Refreshing, EventUnauthorized{}, Refreshing, EffectNone},

		{Anonymous, EventUnauthorized{Retried: true}, Anonymous, EffectFail},
		{Authenticated, EventUnauthorized{Retried: true}, Authenticated, EffectFail},
		{Refreshing, EventUnauthorized{Retried: true}, Refreshing, EffectFail},

		{Anonymous, EventRefreshSucceeded{}, Anonymous, EffectNone},
		{Authenticated, EventRefreshSucceeded{}, Authenticated, EffectNone},
		{Refreshing, EventRefreshSucceeded{}, Authenticated, EffectRetry},

		{Anonymous, EventRefreshFailed{}, Anonymous, EffectNone},
		{Authenticated, EventRefreshFailed{}, Authenticated, EffectNone},
		{Refreshing, EventRefreshFailed{}, Anonymous, EffectClearAndRedirect},

		{Anonymous, EventLoggedOut{}, Anonymous, EffectClear},
		{Authenticated, EventLoggedOut{}, Anonymous, EffectClear},
		{Refreshing, EventLoggedOut{}, Anonymous, EffectClear},
	}

	for _, tt := range tests {
		to, eff := Transition(tt.from, tt.ev)
		assert.Equal(t, tt.wantTo, to, "%s + %T", tt.from, tt.ev)
		assert.Equal(t, tt.wantEff, eff, "%s + %T", tt.from, tt.ev)
	}
}

func TestStateAndEffectNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "anonymous", Anonymous.String())
	assert.Equal(t, "refreshing", Refreshing.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.Equal(t, "clear_and_redirect", EffectClearAndRedirect.String())
}
