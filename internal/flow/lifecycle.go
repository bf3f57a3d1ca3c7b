// Package flow implements the conversational form runtime.
//
// This file holds the session lifecycle tracker. The lifecycle is one
// ordered stage rather than independent booleans, so illegal combinations
// (completed without started) cannot be represented.
package flow

import "log/slog"

// Stage is a session's position in the view/start/complete lifecycle.
type Stage int

const (
	// StageNone is the initial stage before the form has loaded.
	StageNone Stage = iota
	// StageViewed means the form loaded and the view event fired.
	StageViewed
	// StageStarted means the first answer exists and the start event fired.
	StageStarted
	// StageCompleted means the session finished and the completion event fired.
	StageCompleted
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StageViewed:
		return "viewed"
	case StageStarted:
		return "started"
	case StageCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Tracker advances a session's lifecycle stage monotonically. Each Mark
// method reports whether it fired, and fires at most once per session no
// matter how often its triggering condition recurs.
type Tracker struct {
	stage Stage
}

// NewTracker creates a tracker at StageNone.
func NewTracker() *Tracker {
	return &Tracker{stage: StageNone}
}

// Stage returns the current lifecycle stage.
func (t *Tracker) Stage() Stage { return t.stage }

// Viewed reports whether the view event has fired.
func (t *Tracker) Viewed() bool { return t.stage >= StageViewed }

// Started reports whether the start event has fired.
func (t *Tracker) Started() bool { return t.stage >= StageStarted }

// Completed reports whether the completion event has fired.
func (t *Tracker) Completed() bool { return t.stage == StageCompleted }

// MarkViewed advances none -> viewed. Returns true only on the transition.
func (t *Tracker) MarkViewed() bool {
	if t.stage != StageNone {
		return false
	}
	t.stage = StageViewed
	slog.Debug("Lifecycle advanced", "stage", t.stage)
	return true
}

// MarkStarted advances viewed -> started. Returns true only on the
// transition; calling before the view event is an ordering bug and does not
// advance.
func (t *Tracker) MarkStarted() bool {
	if t.stage != StageViewed {
		if t.stage == StageNone {
			slog.Error("Lifecycle MarkStarted before MarkViewed")
		}
		return false
	}
	t.stage = StageStarted
	slog.Debug("Lifecycle advanced", "stage", t.stage)
	return true
}

// MarkCompleted advances started -> completed. Returns true only on the
// transition. Completion without a started session cannot happen.
func (t *Tracker) MarkCompleted() bool {
	if t.stage != StageStarted {
		if t.stage < StageStarted {
			slog.Error("Lifecycle MarkCompleted before MarkStarted", "stage", t.stage)
		}
		return false
	}
	t.stage = StageCompleted
	slog.Debug("Lifecycle advanced", "stage", t.stage)
	return true
}
