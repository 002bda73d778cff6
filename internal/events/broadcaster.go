package events

import (
	"strings"
	"sync"
	"sync/atomic"
)

// subscriberBuffer is the per-subscriber backlog. A subscriber that falls
// further behind loses events rather than stalling Emit.
const subscriberBuffer = 64

// Subscriber receives broadcast events.
type Subscriber chan Event

type fanout struct {
	mu          sync.RWMutex
	subscribers map[Subscriber][]string
	dropped     atomic.Uint64
}

var broadcaster = &fanout{
	subscribers: make(map[Subscriber][]string),
}

// Subscribe registers a subscriber. With prefixes, only events whose name
// starts with one of them are delivered ("step." receives step.entered
// and step.skipped).
func Subscribe(prefixes ...string) Subscriber {
	ch := make(Subscriber, subscriberBuffer)
	broadcaster.mu.Lock()
	broadcaster.subscribers[ch] = prefixes
	broadcaster.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Subscribers
// already closed by CloseAllSubscribers are ignored.
func Unsubscribe(sub Subscriber) {
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	if _, ok := broadcaster.subscribers[sub]; !ok {
		return
	}
	delete(broadcaster.subscribers, sub)
	close(sub)
}

// Matches reports whether an event name passes a prefix filter. An empty
// filter matches everything.
func Matches(name string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func broadcast(e Event) {
	broadcaster.mu.RLock()
	defer broadcaster.mu.RUnlock()

	for sub, prefixes := range broadcaster.subscribers {
		if !Matches(e.Name, prefixes) {
			continue
		}
		select {
		case sub <- e:
		default:
			broadcaster.dropped.Add(1)
		}
	}
}

// CloseAllSubscribers closes and removes every subscriber. Used on shutdown
// so WebSocket writers exit.
func CloseAllSubscribers() {
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	for sub := range broadcaster.subscribers {
		close(sub)
		delete(broadcaster.subscribers, sub)
	}
}

// SubscriberCount returns the current number of subscribers.
func SubscriberCount() int {
	broadcaster.mu.RLock()
	defer broadcaster.mu.RUnlock()
	return len(broadcaster.subscribers)
}

// DroppedCount is the number of deliveries skipped because a subscriber's
// backlog was full.
func DroppedCount() uint64 {
	return broadcaster.dropped.Load()
}

// RecentEvents returns up to the last n buffered events that pass the
// prefix filter, oldest first. n <= 0 returns all of them.
func RecentEvents(n int, prefixes ...string) []Event {
	all := buffer.Snapshot()
	if len(prefixes) > 0 {
		kept := all[:0]
		for _, e := range all {
			if Matches(e.Name, prefixes) {
				kept = append(kept, e)
			}
		}
		all = kept
	}
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}
