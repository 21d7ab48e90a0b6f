// Package events fans challenge activity out to websocket subscribers.
package events

import (
	"sync"
	"time"
)

const (
	TypeTradeOpened     = "trade_opened"
	TypeTradeClosed     = "trade_closed"
	TypeChallengeStatus = "challenge_status"
	TypeDailyReset      = "daily_reset"
)

const subscriberBuffer = 100

type Event struct {
	Type        string    `json:"type"`
	OwnerID     string    `json:"-"`
	ChallengeID string    `json:"challenge_id"`
	Data        any       `json:"data"`
	At          time.Time `json:"at"`
}

// Publisher is what the engine needs from the bus.
type Publisher interface {
	Publish(evt Event)
}

type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish never blocks; a subscriber whose buffer is full misses the event.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.RUnlock()
}

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}
