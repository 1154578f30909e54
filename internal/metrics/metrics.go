// Package metrics keeps process-wide counters for relay traffic.
package metrics

import "sync/atomic"

// Relay connection metrics
var (
	relayConnected atomic.Int64
	relayFailed    atomic.Int64
	relayTimedOut  atomic.Int64
)

// Aggregation metrics
var (
	eventsReceived   atomic.Int64
	eventsDuplicate  atomic.Int64
	droppedEvents    atomic.Int64
	collectsByLimit  atomic.Int64
	collectsByEOSE   atomic.Int64
	collectsDeadline atomic.Int64
)

// Publish metrics
var (
	publishAccepted atomic.Int64
	publishTimedOut atomic.Int64
	publishRejected atomic.Int64
)

func IncrementRelayConnected() { relayConnected.Add(1) }
func IncrementRelayFailed()    { relayFailed.Add(1) }
func IncrementRelayTimedOut()  { relayTimedOut.Add(1) }

// IncrementEventReceived counts an inbound event; duplicate is true when
// the id was already merged.
func IncrementEventReceived(duplicate bool) {
	eventsReceived.Add(1)
	if duplicate {
		eventsDuplicate.Add(1)
	}
}

// IncrementDroppedEvent counts events dropped because a subscriber was too slow.
func IncrementDroppedEvent() { droppedEvents.Add(1) }

// Collect resolution reasons
const (
	ResolvedLimit    = "limit"
	ResolvedEOSE     = "eose"
	ResolvedDeadline = "deadline"
)

// IncrementCollectResolved counts a finished collect by what ended it.
func IncrementCollectResolved(reason string) {
	switch reason {
	case ResolvedLimit:
		collectsByLimit.Add(1)
	case ResolvedEOSE:
		collectsByEOSE.Add(1)
	default:
		collectsDeadline.Add(1)
	}
}

func IncrementPublishAccepted() { publishAccepted.Add(1) }
func IncrementPublishTimedOut() { publishTimedOut.Add(1) }
func IncrementPublishRejected() { publishRejected.Add(1) }

// Stats is a point-in-time copy of every counter.
type Stats struct {
	RelayConnected   int64 `json:"relay_connected"`
	RelayFailed      int64 `json:"relay_failed"`
	RelayTimedOut    int64 `json:"relay_timed_out"`
	EventsReceived   int64 `json:"events_received"`
	EventsDuplicate  int64 `json:"events_duplicate"`
	DroppedEvents    int64 `json:"dropped_events"`
	CollectsLimit    int64 `json:"collects_limit"`
	CollectsEOSE     int64 `json:"collects_eose"`
	CollectsDeadline int64 `json:"collects_deadline"`
	PublishAccepted  int64 `json:"publish_accepted"`
	PublishTimedOut  int64 `json:"publish_timed_out"`
	PublishRejected  int64 `json:"publish_rejected"`
}

// Snapshot returns the current counter values.
func Snapshot() Stats {
	return Stats{
		RelayConnected:   relayConnected.Load(),
		RelayFailed:      relayFailed.Load(),
		RelayTimedOut:    relayTimedOut.Load(),
		EventsReceived:   eventsReceived.Load(),
		EventsDuplicate:  eventsDuplicate.Load(),
		DroppedEvents:    droppedEvents.Load(),
		CollectsLimit:    collectsByLimit.Load(),
		CollectsEOSE:     collectsByEOSE.Load(),
		CollectsDeadline: collectsDeadline.Load(),
		PublishAccepted:  publishAccepted.Load(),
		PublishTimedOut:  publishTimedOut.Load(),
		PublishRejected:  publishRejected.Load(),
	}
}
