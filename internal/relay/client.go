// Package relay implements the websocket client side of the relay
// protocol: EVENT publishing acknowledged by OK frames, and REQ
// subscriptions yielding EVENT/EOSE frames until closed.
package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr"
)

const writeTimeout = 10 * time.Second

// Subscription is a live REQ. Events delivers matching events until the
// subscription is closed; EOSE is closed once the relay signals the end
// of stored events.
type Subscription struct {
	ID     string
	Events chan *nostr.Event
	EOSE   chan struct{}

	client   *Client
	done     chan struct{}
	closeOne sync.Once
	eoseOne  sync.Once
}

// Done is closed when the subscription ends, whether by Close or by the
// relay connection tearing down.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close terminates the subscription. No events are delivered after Close
// returns, even if frames were already in flight.
func (s *Subscription) Close() {
	s.closeOne.Do(func() {
		close(s.done)
		s.client.removeSubscription(s.ID)
		s.client.send([]interface{}{"CLOSE", s.ID})
	})
}

type publishAck struct {
	ok     bool
	reason string
}

// Client is a connection to a single relay.
type Client struct {
	URL string

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	subs    map[string]*Subscription
	pending map[string]chan publishAck

	closed atomic.Bool
}

// Connect dials the relay and starts the read loop.
func Connect(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to relay %s", url)
	}

	c := &Client{
		URL:     url,
		conn:    conn,
		subs:    make(map[string]*Subscription),
		pending: make(map[string]chan publishAck),
	}

	go c.readLoop()

	return c, nil
}

// Close tears down the connection and every live subscription.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	subs := make([]*Subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}

	return c.conn.Close()
}

// Publish sends the event and waits for the relay's OK acknowledgement.
func (c *Client) Publish(ctx context.Context, ev *nostr.Event) error {
	ackCh := make(chan publishAck, 1)

	c.mu.Lock()
	c.pending[ev.ID] = ackCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, ev.ID)
		c.mu.Unlock()
	}()

	if err := c.send([]interface{}{"EVENT", ev}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "publish not acknowledged")
	case ack := <-ackCh:
		if !ack.ok {
			return errors.Errorf("relay %s rejected event: %s", c.URL, ack.reason)
		}
		return nil
	}
}

// Subscribe opens a REQ for the given filters.
func (c *Client) Subscribe(filters ...Filter) (*Subscription, error) {
	sub := &Subscription{
		ID:     uuid.New().String(),
		Events: make(chan *nostr.Event, 64),
		EOSE:   make(chan struct{}),
		client: c,
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	c.subs[sub.ID] = sub
	c.mu.Unlock()

	msg := make([]interface{}, 0, 2+len(filters))
	msg = append(msg, "REQ", sub.ID)
	for _, f := range filters {
		msg = append(msg, f)
	}
	if err := c.send(msg); err != nil {
		c.removeSubscription(sub.ID)
		return nil, err
	}

	return sub, nil
}

func (c *Client) send(msg []interface{}) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal frame")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return errors.Wrap(err, "failed to set write deadline")
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return errors.Wrapf(err, "failed to write to relay %s", c.URL)
	}

	return nil
}

func (c *Client) removeSubscription(id string) {
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				log.Debug().Err(err).Str("relay", c.URL).Msg("Relay connection closed")
			}
			c.Close()
			return
		}
		c.dispatch(payload)
	}
}

func (c *Client) dispatch(payload []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(payload, &frame); err != nil || len(frame) == 0 {
		log.Debug().Str("relay", c.URL).Msg("Dropping malformed frame")
		return
	}

	var label string
	if err := json.Unmarshal(frame[0], &label); err != nil {
		return
	}

	switch label {
	case "EVENT":
		if len(frame) < 3 {
			return
		}
		var subID string
		if err := json.Unmarshal(frame[1], &subID); err != nil {
			return
		}
		var ev nostr.Event
		if err := json.Unmarshal(frame[2], &ev); err != nil {
			log.Debug().Str("relay", c.URL).Msg("Dropping malformed event")
			return
		}

		c.mu.Lock()
		sub := c.subs[subID]
		c.mu.Unlock()
		if sub == nil {
			return
		}

		select {
		case sub.Events <- &ev:
		case <-sub.done:
		}

	case "EOSE":
		if len(frame) < 2 {
			return
		}
		var subID string
		if err := json.Unmarshal(frame[1], &subID); err != nil {
			return
		}

		c.mu.Lock()
		sub := c.subs[subID]
		c.mu.Unlock()
		if sub != nil {
			sub.eoseOne.Do(func() { close(sub.EOSE) })
		}

	case "OK":
		if len(frame) < 3 {
			return
		}
		var eventID string
		var ok bool
		if err := json.Unmarshal(frame[1], &eventID); err != nil {
			return
		}
		if err := json.Unmarshal(frame[2], &ok); err != nil {
			return
		}
		var reason string
		if len(frame) >= 4 {
			_ = json.Unmarshal(frame[3], &reason)
		}

		c.mu.Lock()
		ch := c.pending[eventID]
		c.mu.Unlock()
		if ch != nil {
			select {
			case ch <- publishAck{ok: ok, reason: reason}:
			default:
			}
		}

	case "CLOSED":
		if len(frame) < 2 {
			return
		}
		var subID string
		if err := json.Unmarshal(frame[1], &subID); err != nil {
			return
		}
		c.mu.Lock()
		sub := c.subs[subID]
		c.mu.Unlock()
		if sub != nil {
			sub.Close()
		}

	case "NOTICE":
		var notice string
		if len(frame) >= 2 {
			_ = json.Unmarshal(frame[1], &notice)
		}
		log.Debug().Str("relay", c.URL).Str("notice", notice).Msg("Relay notice")
	}
}
