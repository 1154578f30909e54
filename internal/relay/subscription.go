package relay

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/AreaLayer/daisy/internal/types"
)

// Relay is anything addressed by an endpoint URL.
type Relay interface {
	URL() string
}

// Subscriber is a relay that can serve REQ subscriptions.
type Subscriber interface {
	Relay
	Subscribe(ctx context.Context, filter types.Filter) (*Subscription, error)
}

// Publisher is a relay that accepts EVENT publications.
type Publisher interface {
	Relay
	Publish(ctx context.Context, evt types.Event) (*Publication, error)
}

// Subscription represents an active subscription on a relay connection.
type Subscription struct {
	ID string

	events    chan types.Event
	eose      chan struct{}
	done      chan struct{}
	eoseOnce  sync.Once
	closeOnce sync.Once
	onUnsub   func()
}

// NewSubscription creates a subscription whose Unsubscribe calls onUnsub once.
func NewSubscription(id string, onUnsub func()) *Subscription {
	return &Subscription{
		ID:      id,
		events:  make(chan types.Event, 256),
		eose:    make(chan struct{}),
		done:    make(chan struct{}),
		onUnsub: onUnsub,
	}
}

// Events streams events in the order the relay sent them.
func (s *Subscription) Events() <-chan types.Event { return s.events }

// EOSE is closed when the relay signals end of stored events.
func (s *Subscription) EOSE() <-chan struct{} { return s.eose }

// Done is closed once the subscription has ended for any reason.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Dispatch hands an event to the subscriber. It blocks until the event is
// taken or the subscription ends; false means the event was discarded.
func (s *Subscription) Dispatch(evt types.Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- evt:
		return true
	case <-s.done:
		return false
	}
}

// EndOfStoredEvents marks the stored-events backlog as complete.
func (s *Subscription) EndOfStoredEvents() {
	s.eoseOnce.Do(func() {
		close(s.eose)
	})
}

// EndFromRelay ends the subscription without sending CLOSE, as when the relay
// answers CLOSED or the connection drops. Buffered events stay readable.
func (s *Subscription) EndFromRelay() {
	s.end(false)
}

// Unsubscribe ends the subscription. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.end(true)
}

// end closes Done exactly once; notify controls whether the relay is told.
func (s *Subscription) end(notify bool) {
	s.closeOnce.Do(func() {
		close(s.done)
		if notify && s.onUnsub != nil {
			s.onUnsub()
		}
	})
}

// Publication tracks relay responses to one published event.
type Publication struct {
	EventID string

	accepted   chan struct{}
	rejected   chan string
	seen       chan struct{}
	resultOnce sync.Once
	seenOnce   sync.Once
}

// NewPublication creates a pending publication for the given event id.
func NewPublication(eventID string) *Publication {
	return &Publication{
		EventID:  eventID,
		accepted: make(chan struct{}),
		rejected: make(chan string, 1),
		seen:     make(chan struct{}),
	}
}

// Accepted is closed when the relay answers OK true.
func (p *Publication) Accepted() <-chan struct{} { return p.accepted }

// Rejected delivers the reason when the relay answers OK false.
func (p *Publication) Rejected() <-chan string { return p.rejected }

// Seen is closed when the relay echoes the event back on a subscription.
func (p *Publication) Seen() <-chan struct{} { return p.seen }

// Accept records an OK true. Only the first of Accept/Reject has effect.
func (p *Publication) Accept() {
	p.resultOnce.Do(func() {
		close(p.accepted)
	})
}

// Reject records an OK false with the relay's message.
func (p *Publication) Reject(reason string) {
	p.resultOnce.Do(func() {
		p.rejected <- reason
	})
}

// MarkSeen records that the event was observed on the relay.
func (p *Publication) MarkSeen() {
	p.seenOnce.Do(func() {
		close(p.seen)
	})
}

func newSubscriptionID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "daisy-" + hex.EncodeToString(b)
}
