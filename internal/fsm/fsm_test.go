package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionAutoRestartPath(t *testing.T) {
	s := StateIdle

	next, err := Transition(s, EventStart)
	require.NoError(t, err)
	require.Equal(t, StateListening, next)

	next, err = Transition(next, EventEnd)
	require.NoError(t, err)
	require.Equal(t, StateEnded, next)

	next, err = Transition(next, EventRestart)
	require.NoError(t, err)
	require.Equal(t, StateListening, next)
	require.True(t, next.Listening())
}

func TestTransitionManualStopPath(t *testing.T) {
	next, err := Transition(StateListening, EventStop)
	require.NoError(t, err)
	require.Equal(t, StateIdle, next)
	require.False(t, next.Listening())

	next, err = Transition(StateEnded, EventSettle)
	require.NoError(t, err)
	require.Equal(t, StateIdle, next)
}

func TestTransitionDenyFromAnyStateGoesIdle(t *testing.T) {
	states := []State{StateIdle, StateListening, StateEnded}
	for _, state := range states {
		next, err := Transition(state, EventDeny)
		require.NoError(t, err)
		require.Equal(t, StateIdle, next)
	}
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		event   Event
		want    State
		wantErr bool
	}{
		{name: "idle stop invalid", state: StateIdle, event: EventStop, want: StateIdle, wantErr: true},
		{name: "idle end invalid", state: StateIdle, event: EventEnd, want: StateIdle, wantErr: true},
		{name: "idle restart invalid", state: StateIdle, event: EventRestart, want: StateIdle, wantErr: true},
		{name: "listening start invalid", state: StateListening, event: EventStart, want: StateListening, wantErr: true},
		{name: "listening restart invalid", state: StateListening, event: EventRestart, want: StateListening, wantErr: true},
		{name: "ended stop invalid", state: StateEnded, event: EventStop, want: StateEnded, wantErr: true},
		{name: "ended end invalid", state: StateEnded, event: EventEnd, want: StateEnded, wantErr: true},
		{name: "ended manual start valid", state: StateEnded, event: EventStart, want: StateListening, wantErr: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Equal(t, tc.want, next)
			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "invalid transition")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := Transition(State("mystery"), EventStart)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
	require.Equal(t, State("mystery"), next)

	_, err = Transition(State("mystery"), EventDeny)
	require.Error(t, err)
}
