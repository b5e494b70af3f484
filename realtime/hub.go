// Package realtime fans out change notifications to live query subscribers.
//
// Writers call Publish with the topics their write touched. Every
// subscription on those topics re-runs its query on its own goroutine and
// hands the full current result to its callback. Signals coalesce: a
// subscriber that is busy when several writes land runs its query once more,
// not once per write.
package realtime

import (
	"fmt"
	"sync"
	"time"
)

// Hub maintains the set of active subscriptions per topic.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers deliver on topic. deliver runs once right away and
// again after every Publish on the topic, until Close.
func (h *Hub) Subscribe(topic string, deliver func()) *Subscription {
	return h.SubscribeHandle(topic, func(*Subscription) { deliver() })
}

// SubscribeHandle is Subscribe for callbacks that need their own
// subscription, e.g. to schedule a NotifyAfter.
func (h *Hub) SubscribeHandle(topic string, deliver func(*Subscription)) *Subscription {
	s := &Subscription{
		hub:     h,
		topic:   topic,
		deliver: deliver,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.topics[topic] = subs
	}
	subs[s] = struct{}{}
	h.mu.Unlock()

	s.signal <- struct{}{}
	go s.run()
	return s
}

// Publish wakes every subscription on the given topics. It never blocks.
func (h *Hub) Publish(topics ...string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, topic := range topics {
		for s := range h.topics[topic] {
			s.Notify()
		}
	}
}

// Count returns the number of live subscriptions on topic.
func (h *Hub) Count(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.topics[s.topic]
	delete(subs, s)
	if len(subs) == 0 {
		delete(h.topics, s.topic)
	}
}

// Subscription is the disposer handle of a live query. Owners must Close it.
type Subscription struct {
	hub     *Hub
	topic   string
	deliver func(*Subscription)
	signal  chan struct{}
	done    chan struct{}
	once    sync.Once

	timerMu sync.Mutex
	timer   *time.Timer
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
			select {
			case <-s.done:
				return
			default:
			}
			s.deliver(s)
		}
	}
}

// Notify schedules a re-delivery.
func (s *Subscription) Notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// NotifyAfter schedules a re-delivery after d, replacing any earlier
// pending one. Used for state that expires without a write.
func (s *Subscription) NotifyAfter(d time.Duration) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(d, s.Notify)
}

// Close stops delivery. Safe to call more than once and from inside the
// callback.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.hub.remove(s)
		s.timerMu.Lock()
		if s.timer != nil {
			s.timer.Stop()
		}
		s.timerMu.Unlock()
	})
}

// Done is closed once the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Topic() string { return s.topic }

// Topic helpers.

func RequestsTopic(role string, userID uint) string {
	return fmt.Sprintf("requests:%s:%d", role, userID)
}

func MessagesTopic(chatID uint) string {
	return fmt.Sprintf("messages:%d", chatID)
}

func TypingTopic(chatID uint) string {
	return fmt.Sprintf("typing:%d", chatID)
}

func ChatsTopic(userID uint) string {
	return fmt.Sprintf("chats:%d", userID)
}

func PresenceTopic(userID uint) string {
	return fmt.Sprintf("presence:%d", userID)
}

func NotificationsTopic(userID uint) string {
	return fmt.Sprintf("notifications:%d", userID)
}

const (
	OpenDatesTopic = "dates:open"
	ProfilesTopic  = "profiles"
)
