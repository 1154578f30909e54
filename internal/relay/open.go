// Package relay manages websocket sessions to Nostr relays.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AreaLayer/daisy/internal/metrics"
)

// DefaultConnectTimeout bounds the websocket handshake.
const DefaultConnectTimeout = 1000 * time.Millisecond

var (
	ErrClosed         = errors.New("relay connection closed")
	ErrConnectTimeout = errors.New("relay connect timed out")
)

// Outcome is the result of an Open attempt. Exactly one is produced per call.
type Outcome int

const (
	Connected Outcome = iota
	Failed
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	}
	return "unknown"
}

// Result carries the outcome of Open. Conn is set only when Connected.
type Result struct {
	Outcome Outcome
	Conn    *Conn
	Err     error
}

var dialer = websocket.Dialer{
	Proxy:            websocket.DefaultDialer.Proxy,
	HandshakeTimeout: 10 * time.Second,
}

type dialResult struct {
	ws  *websocket.Conn
	err error
}

// Open races a websocket handshake against a timer. When the timer wins, a
// session that completes later is closed as soon as it arrives.
func Open(ctx context.Context, endpoint string, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	dialCtx, cancel := context.WithCancel(ctx)
	done := make(chan dialResult, 1)
	go func() {
		ws, _, err := dialer.DialContext(dialCtx, endpoint, nil)
		done <- dialResult{ws: ws, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		cancel()
		if r.err != nil {
			metrics.IncrementRelayFailed()
			slog.Debug("relay connect failed", "relay", endpoint, "error", r.err)
			return Result{Outcome: Failed, Err: r.err}
		}
		metrics.IncrementRelayConnected()
		slog.Debug("connected to relay", "relay", endpoint)
		return Result{Outcome: Connected, Conn: newConn(endpoint, r.ws)}

	case <-timer.C:
		cancel()
		go discardLate(endpoint, done)
		metrics.IncrementRelayTimedOut()
		slog.Debug("relay connect timed out", "relay", endpoint, "timeout", timeout)
		return Result{Outcome: TimedOut, Err: ErrConnectTimeout}

	case <-ctx.Done():
		cancel()
		go discardLate(endpoint, done)
		metrics.IncrementRelayFailed()
		return Result{Outcome: Failed, Err: ctx.Err()}
	}
}

func discardLate(endpoint string, done <-chan dialResult) {
	r := <-done
	if r.ws != nil {
		slog.Debug("closing late relay session", "relay", endpoint)
		r.ws.Close()
	}
}

// OpenAll connects to every endpoint concurrently and returns the sessions
// that connected, in endpoint order. Failed and timed out relays are skipped.
func OpenAll(ctx context.Context, endpoints []string, timeout time.Duration) []*Conn {
	results := make([]Result, len(endpoints))

	var wg sync.WaitGroup
	for i, endpoint := range endpoints {
		wg.Add(1)
		go func(i int, endpoint string) {
			defer wg.Done()
			results[i] = Open(ctx, endpoint, timeout)
		}(i, endpoint)
	}
	wg.Wait()

	conns := make([]*Conn, 0, len(endpoints))
	for _, r := range results {
		if r.Outcome == Connected {
			conns = append(conns, r.Conn)
		}
	}
	slog.Debug("relays opened", "connected", len(conns), "total", len(endpoints))
	return conns
}

// CloseAll closes every connection.
func CloseAll(conns []*Conn) {
	for _, c := range conns {
		c.Close()
	}
}
