package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionHappyPath(t *testing.T) {
	s := StateIdle

	next, err := Transition(s, EventSelect)
	require.NoError(t, err)
	require.Equal(t, StateIdle, next)

	next, err = Transition(next, EventAnalyze)
	require.NoError(t, err)
	require.Equal(t, StateAnalyzing, next)

	next, err = Transition(next, EventSucceed)
	require.NoError(t, err)
	require.Equal(t, StateReported, next)

	next, err = Transition(next, EventReset)
	require.NoError(t, err)
	require.Equal(t, StateIdle, next)
}

func TestTransitionFailureRecovers(t *testing.T) {
	next, err := Transition(StateAnalyzing, EventFail)
	require.NoError(t, err)
	require.Equal(t, StateFailed, next)

	next, err = Transition(next, EventSelect)
	require.NoError(t, err)
	require.Equal(t, StateIdle, next)
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		event   Event
		want    State
		wantErr bool
	}{
		{name: "idle succeed invalid", state: StateIdle, event: EventSucceed, want: StateIdle, wantErr: true},
		{name: "idle fail invalid", state: StateIdle, event: EventFail, want: StateIdle, wantErr: true},
		{name: "analyzing select invalid", state: StateAnalyzing, event: EventSelect, want: StateAnalyzing, wantErr: true},
		{name: "analyzing analyze invalid", state: StateAnalyzing, event: EventAnalyze, want: StateAnalyzing, wantErr: true},
		{name: "analyzing reset invalid", state: StateAnalyzing, event: EventReset, want: StateAnalyzing, wantErr: true},
		{name: "reported analyze invalid", state: StateReported, event: EventAnalyze, want: StateReported, wantErr: true},
		{name: "reported succeed invalid", state: StateReported, event: EventSucceed, want: StateReported, wantErr: true},
		{name: "failed analyze invalid", state: StateFailed, event: EventAnalyze, want: StateFailed, wantErr: true},
		{name: "failed fail invalid", state: StateFailed, event: EventFail, want: StateFailed, wantErr: true},
		{name: "failed reset valid", state: StateFailed, event: EventReset, want: StateIdle, wantErr: false},
		{name: "reported select valid", state: StateReported, event: EventSelect, want: StateIdle, wantErr: false},
		{name: "idle reset valid", state: StateIdle, event: EventReset, want: StateIdle, wantErr: false},
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
	_, err := Transition(State("bogus"), EventReset)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
}

func TestBusy(t *testing.T) {
	require.True(t, StateAnalyzing.Busy())
	require.False(t, StateIdle.Busy())
	require.False(t, StateReported.Busy())
	require.False(t, StateFailed.Busy())
}
