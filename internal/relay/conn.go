package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AreaLayer/daisy/internal/metrics"
	"github.com/AreaLayer/daisy/internal/nostr"
	"github.com/AreaLayer/daisy/internal/types"
)

const writeTimeout = 10 * time.Second

// Conn manages a single websocket session with multiple subscriptions.
// It is owned by the operation that opened it and is not shared.
type Conn struct {
	conn     *websocket.Conn
	relayURL string

	mu            sync.Mutex
	writeMu       sync.Mutex
	subscriptions map[string]*Subscription
	publications  map[string]*Publication
	closed        bool
	done          chan struct{}
}

func newConn(relayURL string, ws *websocket.Conn) *Conn {
	rc := &Conn{
		conn:          ws,
		relayURL:      relayURL,
		subscriptions: make(map[string]*Subscription),
		publications:  make(map[string]*Publication),
		done:          make(chan struct{}),
	}
	go rc.readLoop()
	return rc
}

// URL returns the relay endpoint.
func (rc *Conn) URL() string {
	return rc.relayURL
}

// Closed reports whether the session has ended.
func (rc *Conn) Closed() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.closed
}

// Done is closed when the session ends.
func (rc *Conn) Done() <-chan struct{} {
	return rc.done
}

// Subscribe sends a REQ for filter and returns the subscription.
func (rc *Conn) Subscribe(ctx context.Context, filter types.Filter) (*Subscription, error) {
	subID := newSubscriptionID()
	sub := NewSubscription(subID, func() {
		rc.unsubscribe(subID)
	})

	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return nil, ErrClosed
	}
	rc.subscriptions[subID] = sub
	rc.mu.Unlock()

	if err := rc.writeJSON(ctx, []interface{}{"REQ", subID, filter}); err != nil {
		rc.mu.Lock()
		delete(rc.subscriptions, subID)
		rc.mu.Unlock()
		sub.EndFromRelay()
		rc.markClosed()
		return nil, err
	}
	return sub, nil
}

// unsubscribe removes the subscription and sends CLOSE (best effort).
func (rc *Conn) unsubscribe(subID string) {
	rc.mu.Lock()
	_, exists := rc.subscriptions[subID]
	shouldSendClose := !rc.closed && exists
	delete(rc.subscriptions, subID)
	rc.mu.Unlock()

	if shouldSendClose {
		rc.writeJSON(context.Background(), []interface{}{"CLOSE", subID})
	}
}

// Publish sends an EVENT and returns a handle for the relay's answers.
func (rc *Conn) Publish(ctx context.Context, evt types.Event) (*Publication, error) {
	pub := NewPublication(evt.ID)

	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return nil, ErrClosed
	}
	rc.publications[evt.ID] = pub
	rc.mu.Unlock()

	if err := rc.writeJSON(ctx, []interface{}{"EVENT", evt}); err != nil {
		rc.mu.Lock()
		delete(rc.publications, evt.ID)
		rc.mu.Unlock()
		rc.markClosed()
		return nil, err
	}
	return pub, nil
}

// Close ends the session, closing every open subscription.
func (rc *Conn) Close() error {
	rc.mu.Lock()
	closed := rc.closed
	rc.mu.Unlock()
	if !closed {
		rc.writeMu.Lock()
		rc.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		rc.writeMu.Unlock()
	}
	rc.markClosed()
	return nil
}

func (rc *Conn) writeJSON(ctx context.Context, v interface{}) error {
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	rc.writeMu.Lock()
	defer rc.writeMu.Unlock()

	rc.conn.SetWriteDeadline(deadline)
	defer rc.conn.SetWriteDeadline(time.Time{})
	return rc.conn.WriteJSON(v)
}

// readLoop continuously reads from the connection and routes messages
func (rc *Conn) readLoop() {
	defer rc.markClosed()

	for {
		var msg []interface{}
		if err := rc.conn.ReadJSON(&msg); err != nil {
			if !rc.Closed() {
				slog.Debug("relay read error", "relay", rc.relayURL, "error", err)
			}
			return
		}

		if len(msg) < 2 {
			continue
		}
		msgType, ok := msg[0].(string)
		if !ok {
			continue
		}

		switch msgType {
		case "EVENT":
			rc.handleEvent(msg)
		case "EOSE":
			subID, _ := msg[1].(string)
			if sub := rc.subscription(subID); sub != nil {
				sub.EndOfStoredEvents()
			}
		case "OK":
			rc.handleOK(msg)
		case "CLOSED":
			subID, _ := msg[1].(string)
			rc.mu.Lock()
			sub := rc.subscriptions[subID]
			delete(rc.subscriptions, subID)
			rc.mu.Unlock()
			if sub != nil {
				reason := ""
				if len(msg) >= 3 {
					reason, _ = msg[2].(string)
				}
				slog.Debug("subscription closed by relay", "relay", rc.relayURL, "sub_id", subID, "reason", reason)
				sub.EndFromRelay()
			}
		case "NOTICE":
			notice, _ := msg[1].(string)
			slog.Debug("relay notice", "relay", rc.relayURL, "notice", notice)
		}
	}
}

func (rc *Conn) handleEvent(msg []interface{}) {
	if len(msg) < 3 {
		return
	}
	subID, ok := msg[1].(string)
	if !ok {
		return
	}
	evt, ok := nostr.ParseEventFromInterface(msg[2])
	if !ok {
		return
	}
	evt.RelaysSeen = []string{rc.relayURL}

	rc.mu.Lock()
	sub := rc.subscriptions[subID]
	pub := rc.publications[evt.ID]
	rc.mu.Unlock()

	if pub != nil {
		pub.MarkSeen()
	}
	if sub != nil && !sub.Dispatch(evt) {
		metrics.IncrementDroppedEvent()
	}
}

func (rc *Conn) handleOK(msg []interface{}) {
	if len(msg) < 3 {
		return
	}
	eventID, _ := msg[1].(string)
	success, _ := msg[2].(bool)
	message := ""
	if len(msg) >= 4 {
		message, _ = msg[3].(string)
	}

	rc.mu.Lock()
	pub := rc.publications[eventID]
	rc.mu.Unlock()
	if pub == nil {
		return
	}
	if success {
		pub.Accept()
	} else {
		pub.Reject(message)
	}
}

func (rc *Conn) subscription(subID string) *Subscription {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.subscriptions[subID]
}

// markClosed marks the connection as closed and ends every subscription.
func (rc *Conn) markClosed() {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return
	}
	rc.closed = true
	subs := rc.subscriptions
	pubs := rc.publications
	rc.subscriptions = make(map[string]*Subscription)
	rc.publications = make(map[string]*Publication)
	rc.mu.Unlock()

	rc.conn.Close()
	close(rc.done)

	for _, sub := range subs {
		sub.EndFromRelay()
	}
	for _, pub := range pubs {
		pub.Reject(ErrClosed.Error())
	}
}
