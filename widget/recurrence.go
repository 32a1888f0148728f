package widget

import (
	"time"

	"github.com/canvass/canvass/model"
)

// Defaults applied when a time_sequence survey carries no explicit
// recurrence configuration.
const (
	DefaultIntervalDays = 30
	DefaultMaxResponses = 1
)

// Histories are bounded to a year regardless of the configured window.
const historyRetention = 365 * 24 * time.Hour

// RecurrenceGate decides whether a visitor may be shown a survey again,
// from locally persisted state.
type RecurrenceGate struct {
	Store StateStore
	Now   func() time.Time
}

func NewRecurrenceGate(store StateStore) *RecurrenceGate {
	return &RecurrenceGate{Store: store, Now: time.Now}
}

// Check reports whether the survey may be shown. In always mode no state is
// read or written. In time_sequence mode entries that fell out of the window
// are pruned as a side effect.
func (g *RecurrenceGate) Check(surveyID int, target model.Target) bool {
	switch target.RecurrenceMode {
	case model.RecurrenceAlways:
		return true

	case model.RecurrenceOneResponse:
		return !g.Store.Marker(surveyID)

	case model.RecurrenceTimeSequence:
		interval, max := recurrenceConfig(target)
		cutoff := g.Now().Add(-time.Duration(interval) * 24 * time.Hour)

		stamps := g.Store.History(surveyID)
		recent := stamps[:0:0]
		for _, ts := range stamps {
			if ts.After(cutoff) {
				recent = append(recent, ts)
			}
		}
		if len(recent) != len(stamps) {
			g.Store.SetHistory(surveyID, recent)
		}
		return len(recent) < max

	default:
		return true
	}
}

// MarkResponded records a successful submission. Callers must only invoke it
// after the response was accepted by the server, so a failed submit never
// falsely locks the visitor out.
func (g *RecurrenceGate) MarkResponded(surveyID int, target model.Target) {
	switch target.RecurrenceMode {
	case model.RecurrenceOneResponse:
		g.Store.SetMarker(surveyID)

	case model.RecurrenceTimeSequence:
		now := g.Now()
		cutoff := now.Add(-historyRetention)

		stamps := append(g.Store.History(surveyID), now)
		kept := stamps[:0:0]
		for _, ts := range stamps {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		g.Store.SetHistory(surveyID, kept)
	}
}

func recurrenceConfig(target model.Target) (intervalDays, maxResponses int) {
	intervalDays = target.IntervalDays
	if intervalDays <= 0 {
		intervalDays = DefaultIntervalDays
	}
	maxResponses = target.MaxResponses
	if maxResponses <= 0 {
		maxResponses = DefaultMaxResponses
	}
	return
}
