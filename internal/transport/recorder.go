package transport

import (
	"context"
	"sync"
)

// Call is one recorded Submit.
type Call struct {
	Action  Action
	Payload any
}

// Recorder is an in-memory Submitter that keeps every call. It is used by
// the simulator's dry-run mode and by tests.
type Recorder struct {
	mu     sync.Mutex
	calls  []Call
	result bool
}

// NewRecorder returns a Recorder whose Submit returns result.
func NewRecorder(result bool) *Recorder {
	return &Recorder{result: result}
}

// Submit records the call.
func (r *Recorder) Submit(_ context.Context, action Action, payload any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Action: action, Payload: payload})
	return r.result
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Filter returns the recorded payloads for one action.
func (r *Recorder) Filter(action Action) []any {
	var out []any
	for _, c := range r.Calls() {
		if c.Action == action {
			out = append(out, c.Payload)
		}
	}
	return out
}

// Events returns the recorded track_event payloads.
func (r *Recorder) Events() []TrackEvent {
	var out []TrackEvent
	for _, p := range r.Filter(ActionTrackEvent) {
		if ev, ok := p.(TrackEvent); ok {
			out = append(out, ev)
		}
	}
	return out
}

// Updates returns the recorded update_session payloads.
func (r *Recorder) Updates() []UpdateSession {
	var out []UpdateSession
	for _, p := range r.Filter(ActionUpdateSession) {
		if u, ok := p.(UpdateSession); ok {
			out = append(out, u)
		}
	}
	return out
}
