package relay

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr"
)

// Publisher publishes a signed event. Satisfied by *Pool and by test
// doubles.
type Publisher interface {
	Publish(ctx context.Context, ev *nostr.Event) error
}

// Pool fans queries, publishes and subscriptions out over a fixed relay
// set. Connections are established lazily and reused.
type Pool struct {
	urls           []string
	connectTimeout time.Duration
	publishTimeout time.Duration

	mu      sync.Mutex
	clients map[string]*Client
}

// NewPool creates a pool over the given relay URLs. A zero publishTimeout
// leaves publishes bounded only by the caller's context.
func NewPool(urls []string, connectTimeout, publishTimeout time.Duration) *Pool {
	return &Pool{
		urls:           urls,
		connectTimeout: connectTimeout,
		publishTimeout: publishTimeout,
		clients:        make(map[string]*Client),
	}
}

// Close tears down every open connection.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for url, c := range p.clients {
		if err := c.Close(); err != nil {
			log.Debug().Err(err).Str("relay", url).Msg("Failed to close relay connection")
		}
		delete(p.clients, url)
	}
}

func (p *Pool) client(ctx context.Context, url string) (*Client, error) {
	p.mu.Lock()
	if c, ok := p.clients[url]; ok && !c.closed.Load() {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()

	c, err := Connect(dialCtx, url)
	if err != nil {
		return nil, err
	}

	if winner := p.storeClient(url, c); winner != c {
		// another dial for this URL won the race
		if err := c.Close(); err != nil {
			log.Debug().Err(err).Str("relay", url).Msg("Failed to close redundant connection")
		}
		return winner, nil
	}

	return c, nil
}

// storeClient records a freshly dialed client unless an open client for
// the same URL already exists, in which case the existing one is kept.
func (p *Pool) storeClient(url string, c *Client) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.clients[url]; ok && !existing.closed.Load() {
		return existing
	}
	p.clients[url] = c
	return c
}

// Publish sends the event to every relay in the pool. It succeeds when at
// least one relay acknowledges the event.
func (p *Pool) Publish(ctx context.Context, ev *nostr.Event) error {
	if p.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.publishTimeout)
		defer cancel()
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		lastErr error
		acked   bool
	)

	for _, url := range p.urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()

			c, err := p.client(ctx, url)
			if err == nil {
				err = c.Publish(ctx, ev)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Debug().Err(err).Str("relay", url).Msg("Publish failed")
				lastErr = err
				return
			}
			acked = true
		}(url)
	}
	wg.Wait()

	if !acked {
		if lastErr != nil {
			return errors.Wrap(lastErr, "no relay accepted the event")
		}
		return errors.New("no relay accepted the event")
	}

	return nil
}

// Query collects stored events matching the filters from every relay,
// returning once each reachable relay has signalled EOSE or the context
// expires. Duplicates (same event id from several relays) are dropped.
func (p *Pool) Query(ctx context.Context, filters ...Filter) ([]*nostr.Event, error) {
	sub, err := p.Subscribe(ctx, filters...)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	var events []*nostr.Event
	drain := func() []*nostr.Event {
		for {
			select {
			case ev := <-sub.Events:
				events = append(events, ev)
			default:
				return events
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return events, nil
		case <-sub.Done:
			// every relay dropped before EOSE; return what arrived
			return drain(), nil
		case <-sub.EOSE:
			return drain(), nil
		case ev := <-sub.Events:
			events = append(events, ev)
		}
	}
}

// PoolSubscription merges subscriptions across the pool's relays.
type PoolSubscription struct {
	Events chan *nostr.Event
	EOSE   chan struct{}
	// Done is closed once no further events can arrive: after Close, or
	// after every underlying relay connection has torn down.
	Done chan struct{}

	subs     []*Subscription
	done     chan struct{}
	closeOne sync.Once
	doneOne  sync.Once
}

// Close terminates every underlying subscription. No events are delivered
// after Close returns.
func (s *PoolSubscription) Close() {
	s.closeOne.Do(func() {
		if s.done != nil {
			close(s.done)
		}
		for _, sub := range s.subs {
			sub.Close()
		}
	})
}

// Subscribe opens the filters on every reachable relay and merges the
// resulting streams. EOSE is closed once every participating relay has
// signalled it. Events seen from several relays are delivered once.
func (p *Pool) Subscribe(ctx context.Context, filters ...Filter) (*PoolSubscription, error) {
	merged := &PoolSubscription{
		Events: make(chan *nostr.Event, 64),
		EOSE:   make(chan struct{}),
		Done:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	var lastErr error
	for _, url := range p.urls {
		c, err := p.client(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		sub, err := c.Subscribe(filters...)
		if err != nil {
			lastErr = err
			continue
		}
		merged.subs = append(merged.subs, sub)
	}

	if len(merged.subs) == 0 {
		if lastErr != nil {
			return nil, errors.Wrap(lastErr, "no relay reachable")
		}
		return nil, errors.New("no relay reachable")
	}

	go merged.forward()

	return merged, nil
}

func (s *PoolSubscription) forward() {
	defer s.doneOne.Do(func() { close(s.Done) })

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{})
	)

	eoseLeft := len(s.subs)
	eoseCh := make(chan struct{}, len(s.subs))

	for _, sub := range s.subs {
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()
			signalled := false
			signalEOSE := func() {
				if !signalled {
					signalled = true
					eoseCh <- struct{}{}
				}
			}
			for {
				select {
				case <-s.done:
					return
				case <-sub.Done():
					// the relay connection died; hand off anything still
					// buffered, then count the sub as terminal
					for {
						select {
						case ev := <-sub.Events:
							s.deliver(ev, &mu, seen)
						default:
							signalEOSE()
							return
						}
					}
				case <-sub.EOSE:
					signalEOSE()
					// keep forwarding live events after EOSE
					select {
					case <-s.done:
						return
					case <-sub.Done():
						return
					case ev := <-sub.Events:
						s.deliver(ev, &mu, seen)
					}
				case ev := <-sub.Events:
					s.deliver(ev, &mu, seen)
				}
			}
		}(sub)
	}

	go func() {
		for range eoseCh {
			eoseLeft--
			if eoseLeft == 0 {
				close(s.EOSE)
				return
			}
		}
	}()

	wg.Wait()
	close(eoseCh)
}

func (s *PoolSubscription) deliver(ev *nostr.Event, mu *sync.Mutex, seen map[string]struct{}) {
	if ev == nil {
		return
	}

	mu.Lock()
	if _, dup := seen[ev.ID]; dup {
		mu.Unlock()
		return
	}
	seen[ev.ID] = struct{}{}
	mu.Unlock()

	select {
	case s.Events <- ev:
	case <-s.done:
	}
}
