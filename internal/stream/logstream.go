package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/pumpguard-dev/pumpguard/internal/logging"
	"github.com/pumpguard-dev/pumpguard/internal/metrics"
)

// LogEvent is the immutable message C2 publishes on the log bus; consumed
// by C5, C6 and C7 alike. Grounded on pumpguard-rs/src/utils/solana.rs's
// LogEvent{signature, logs}.
type LogEvent struct {
	Signature string
	Logs      []string
}

const (
	staleTimeout    = 120 * time.Second
	keepAliveEvery  = 30 * time.Second
	initialBackoff  = 5 * time.Second
	maxBackoff      = 60 * time.Second
	busCapacity     = 10_000
)

// logsSubscribeRequest is the outbound JSON-RPC subscription request sent
// on every (re)connect, per spec.md §4.2.
type logsSubscribeRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type logsSubscribeFilter struct {
	Mentions []string `json:"mentions"`
}

type logsSubscribeOptions struct {
	Commitment string `json:"commitment"`
}

// notification is the inbound logsNotification shape: spec.md §4.2's
// params.result.value.{signature, logs}. A bare {"result": <id>} response
// (no "params") is the subscription-ack and must be ignored.
type notification struct {
	Params *struct {
		Result struct {
			Value struct {
				Signature string   `json:"signature"`
				Logs      []string `json:"logs"`
				Err       any      `json:"err"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// Client runs the resilient logsSubscribe WebSocket connection described in
// spec.md §4.2's state machine, publishing LogEvent onto a bounded
// broadcast bus. Grounded on pumpguard-rs/src/utils/solana.rs's
// start_log_subscription for protocol/timing constants, and
// go-server/pkg/websocket/client.go for the idiomatic Go read-loop shape.
type Client struct {
	url       string
	programID string
	logger    zerolog.Logger
	metrics   *metrics.Registry

	bus *Broadcast[LogEvent]

	received atomic.Uint64
	running  atomic.Bool
}

// NewClient constructs a log-stream client publishing onto a fresh,
// capacity-10000 broadcast bus (spec.md §4.2).
func NewClient(wsURL, programID string, logger zerolog.Logger, reg *metrics.Registry) *Client {
	return &Client{
		url:       wsURL,
		programID: programID,
		logger:    logger.With().Str("component", "logstream").Logger(),
		metrics:   reg,
		bus:       NewBroadcast[LogEvent](busCapacity),
	}
}

// Subscribe registers a new LogEvent subscriber. Must be called before Run
// for subscribers that need every event from process start (spec.md §4.7's
// ordering contract between C5's new-token bus and C8 applies symmetrically
// here: C8 must also subscribe to this bus, via C5/C6/C7, before Run is
// invoked).
func (c *Client) Subscribe() (<-chan any, int) {
	return c.bus.Subscribe()
}

// Unsubscribe removes a subscriber registered via Subscribe.
func (c *Client) Unsubscribe(id int) {
	c.bus.Unsubscribe(id)
}

// Run drives the Disconnected -> Connecting -> Subscribed -> Streaming ->
// {Closed|Stale|Errored} -> Backoff -> Connecting state machine until ctx
// is cancelled.
func (c *Client) Run(ctx context.Context) {
	defer logging.RecoverPanic(&c.logger, "logstream")
	c.running.Store(true)
	defer c.running.Store(false)

	backoff := initialBackoff
	for ctx.Err() == nil {
		err := c.connectAndStream(ctx, &backoff)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.logger.Warn().Err(err).Dur("backoff", backoff).Msg("log stream disconnected, reconnecting")
		}
		c.metrics.WSReconnects.Inc()

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// IsRunning reports whether Run's loop is active, for the dashboard's
// start/stop control verbs (spec.md §6).
func (c *Client) IsRunning() bool { return c.running.Load() }

func (c *Client) connectAndStream(ctx context.Context, backoff *time.Duration) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.url, err)
	}
	defer conn.Close()

	// A successful dial ends whatever failure streak drove backoff up;
	// the next reconnect (if any) starts fresh at initialBackoff, per
	// spec.md §4.2.
	*backoff = initialBackoff

	req := logsSubscribeRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "logsSubscribe",
		Params: []interface{}{
			logsSubscribeFilter{Mentions: []string{c.programID}},
			logsSubscribeOptions{Commitment: "confirmed"},
		},
	}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("sending logsSubscribe: %w", err)
	}

	msgCh := make(chan []byte, 256)
	errCh := make(chan error, 1)
	go c.readLoop(conn, msgCh, errCh)

	keepAlive := time.NewTicker(keepAliveEvery)
	defer keepAlive.Stop()
	staleTimer := time.NewTimer(staleTimeout)
	defer staleTimer.Stop()

	ackSeen := false
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-staleTimer.C:
			c.metrics.WSStaleDrops.Inc()
			return fmt.Errorf("no frames received within %s, treating connection as stale", staleTimeout)

		case <-keepAlive.C:
			c.logger.Info().Uint64("received_total", c.received.Load()).Msg("log stream keep-alive")

		case err := <-errCh:
			return err

		case raw := <-msgCh:
			if !staleTimer.Stop() {
				<-staleTimer.C
			}
			staleTimer.Reset(staleTimeout)

			var note notification
			if err := json.Unmarshal(raw, &note); err != nil {
				c.logger.Debug().Err(err).Msg("failed to parse notification, dropping")
				continue
			}
			if note.Params == nil {
				// subscription-ack response carrying only a result id
				if !ackSeen {
					ackSeen = true
					c.logger.Info().Msg("logsSubscribe acknowledged")
				}
				continue
			}

			c.received.Add(1)
			value := note.Params.Result.Value
			c.bus.Publish(LogEvent{Signature: value.Signature, Logs: value.Logs})
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn, msgCh chan<- []byte, errCh chan<- error) {
	defer logging.RecoverPanic(&c.logger, "logstream-read")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			errCh <- err
			return
		}
		select {
		case msgCh <- data:
		default:
			c.logger.Warn().Msg("log stream internal read buffer full, dropping frame")
		}
	}
}
