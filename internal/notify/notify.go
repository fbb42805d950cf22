// Package notify 提供进程内的事件发布/订阅，以及"谁在输入"的
// 临时状态跟踪。状态是进程级的，通过显式的 TTL 清扫任务过期，
// 通过显式的订阅接口对外暴露，而不是共享的可变全局变量。
package notify

import (
	"context"
	"sort"
	"sync"
	"time"
)

// 事件类型。
const (
	EventTypeTyping          = "whoIsTyping"
	EventTypeDocumentIndexed = "documentIndexed"
)

// Event 是推送给订阅者的一条通知。
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Bus 是进程内的事件总线。
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewBus 创建一个事件总线。
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Subscribe 注册一个订阅者，返回接收事件的通道。
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe 注销订阅者并关闭其通道。
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Publish 把事件广播给所有订阅者。慢订阅者的通道满时丢弃该事件，
// 通知属于尽力而为，不能阻塞发布方。
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// TypingTracker 跟踪正在输入的用户名，条目超过 TTL 未刷新即过期。
type TypingTracker struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	bus     *Bus
}

// NewTypingTracker 创建一个输入状态跟踪器。
func NewTypingTracker(bus *Bus, ttl time.Duration) *TypingTracker {
	return &TypingTracker{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		bus:     bus,
	}
}

// Start 启动后台清扫任务，ctx 取消时退出。
func (t *TypingTracker) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if t.sweep(time.Now()) {
					t.publish()
				}
			}
		}
	}()
}

// SetTyping 更新某个名字的输入状态并广播最新快照。
func (t *TypingTracker) SetTyping(name string, typing bool) {
	t.mu.Lock()
	if typing {
		t.entries[name] = time.Now()
	} else {
		delete(t.entries, name)
	}
	t.mu.Unlock()
	t.publish()
}

// Snapshot 返回当前正在输入的名字，按字典序排序。
func (t *TypingTracker) Snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sweep 清理超过 TTL 的条目，返回是否有变化。
func (t *TypingTracker) sweep(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := false
	for name, lastTyped := range t.entries {
		if now.Sub(lastTyped) > t.ttl {
			delete(t.entries, name)
			changed = true
		}
	}
	return changed
}

func (t *TypingTracker) publish() {
	t.bus.Publish(Event{Type: EventTypeTyping, Payload: t.Snapshot()})
}
