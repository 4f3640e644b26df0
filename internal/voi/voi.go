// Package voi implements the Value-of-Information filter: it decides,
// per metric field, whether a freshly sampled value is worth gossiping
// this round.
package voi

import (
	"strconv"
	"sync"

	"github.com/aryanbagade/gossip-fabric/internal/model"
)

// FieldConfig is one field's priority period and delta threshold.
type FieldConfig struct {
	// Priority is the minimum number of rounds that must elapse since
	// the field was last sent before it is eligible again.
	Priority int64
	// Delta is the minimum absolute change in value required to
	// include the field, on top of the priority period having elapsed.
	Delta float64
}

// DefaultConfig returns the standard per-field priority periods and
// delta thresholds.
func DefaultConfig() map[string]FieldConfig {
	return map[string]FieldConfig{
		"cpu":     {Priority: 1, Delta: 5.0},
		"memory":  {Priority: 5, Delta: 7.0},
		"network": {Priority: 5, Delta: 15.0},
		"storage": {Priority: 10, Delta: 10.0},
	}
}

// Event is one (round, field, was_sent) telemetry record, consumed
// only by the external analytics sink and never fed back into
// protocol decisions.
type Event struct {
	Round   int64
	PeerKey string
	Field   string
	WasSent bool
}

// RoundSummary is the per-round (sent_count, filtered_count) aggregate.
type RoundSummary struct {
	Round         int64
	SentCount     int
	FilteredCount int
}

// Filter holds the process-local last_sent_value/last_sent_round
// bookkeeping. It is never gossiped.
type Filter struct {
	mu         sync.Mutex
	config     map[string]FieldConfig
	lastValue  map[string]string
	lastRound  map[string]int64
	hasEmitted map[string]bool
}

// New creates a Filter with the given per-field configuration.
func New(config map[string]FieldConfig) *Filter {
	return &Filter{
		config:     config,
		lastValue:  make(map[string]string),
		lastRound:  make(map[string]int64),
		hasEmitted: make(map[string]bool),
	}
}

// Apply decides, for every field present in app, whether to include it
// in the outgoing record this round. Filtered fields are omitted
// entirely (not replaced by a stale value). selfKey tags the emitted
// telemetry events with the authoring node's peer key.
//
// INCLUDE requires BOTH the priority period AND the delta condition
// to hold, except on the field's first-ever emission, which always
// sends: otherwise a field with P(f)=1 could never be emitted at all
// since there would be no prior value to diff against.
func (f *Filter) Apply(round int64, selfKey string, app model.AppState) (model.AppState, []Event, RoundSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fields := map[string]string{
		"cpu":     app.CPU,
		"memory":  app.Memory,
		"network": app.Network,
		"storage": app.Storage,
	}

	out := model.AppState{}
	events := make([]Event, 0, len(fields))
	summary := RoundSummary{Round: round}

	for name, value := range fields {
		if value == "" {
			// Sampler omitted this field entirely; VOI has nothing
			// to decide on.
			continue
		}

		include := f.include(name, round, value)
		events = append(events, Event{Round: round, PeerKey: selfKey, Field: name, WasSent: include})

		if include {
			setField(&out, name, value)
			f.lastValue[name] = value
			f.lastRound[name] = round
			f.hasEmitted[name] = true
			summary.SentCount++
		} else {
			summary.FilteredCount++
		}
	}

	return out, events, summary
}

func (f *Filter) include(field string, round int64, value string) bool {
	if !f.hasEmitted[field] {
		return true
	}

	cfg, ok := f.config[field]
	if !ok {
		// Unknown field: no configured priority/threshold, always include.
		return true
	}

	if round-f.lastRound[field] < cfg.Priority {
		return false
	}

	prev := f.lastValue[field]
	if prevNum, errPrev := strconv.ParseFloat(prev, 64); errPrev == nil {
		if curNum, errCur := strconv.ParseFloat(value, 64); errCur == nil {
			delta := curNum - prevNum
			if delta < 0 {
				delta = -delta
			}
			return delta >= cfg.Delta
		}
	}

	// Non-numeric field: include only on an actual value change.
	return value != prev
}

func setField(app *model.AppState, name, value string) {
	switch name {
	case "cpu":
		app.CPU = value
	case "memory":
		app.Memory = value
	case "network":
		app.Network = value
	case "storage":
		app.Storage = value
	}
}
