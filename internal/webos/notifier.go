package webos

import (
	"sync"

	"webos_remote/internal/device"
)

// StateListener receives connection state transitions
type StateListener func(device.ConnectionState)

type listenerEntry struct {
	id    int
	fn    StateListener
	since uint64 // first sequence number this listener receives
}

type notification struct {
	seq    uint64
	state  device.ConnectionState
	target int // 0 delivers to every listener
}

// notifier delivers state transitions to listeners from a single goroutine,
// in the order they were published. Listeners run outside the client lock,
// so they may call back into the client.
type notifier struct {
	mu        sync.Mutex
	cond      *sync.Cond
	queue     []notification
	listeners []listenerEntry
	nextID    int
	seq       uint64
	closed    bool
	done      chan struct{}
}

func newNotifier() *notifier {
	n := &notifier{done: make(chan struct{})}
	n.cond = sync.NewCond(&n.mu)
	go n.run()
	return n
}

func (n *notifier) publish(state device.ConnectionState) {
	n.enqueue(notification{state: state})
}

func (n *notifier) publishTo(id int, state device.ConnectionState) {
	n.enqueue(notification{state: state, target: id})
}

func (n *notifier) enqueue(item notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.seq++
	item.seq = n.seq
	n.queue = append(n.queue, item)
	n.cond.Signal()
}

func (n *notifier) subscribe(fn StateListener) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	n.listeners = append(n.listeners, listenerEntry{id: n.nextID, fn: fn, since: n.seq + 1})
	return n.nextID
}

func (n *notifier) unsubscribe(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, l := range n.listeners {
		if l.id == id {
			n.listeners = append(n.listeners[:i:i], n.listeners[i+1:]...)
			return
		}
	}
}

func (n *notifier) run() {
	defer close(n.done)
	for {
		n.mu.Lock()
		for len(n.queue) == 0 && !n.closed {
			n.cond.Wait()
		}
		if len(n.queue) == 0 {
			n.mu.Unlock()
			return
		}
		item := n.queue[0]
		n.queue = n.queue[1:]
		targets := make([]StateListener, 0, len(n.listeners))
		for _, l := range n.listeners {
			if item.seq < l.since {
				// Queued before this listener subscribed
				continue
			}
			if item.target == 0 || item.target == l.id {
				targets = append(targets, l.fn)
			}
		}
		n.mu.Unlock()

		for _, fn := range targets {
			fn(item.state)
		}
	}
}

// close drains pending notifications and stops the delivery goroutine
func (n *notifier) close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		<-n.done
		return
	}
	n.closed = true
	n.cond.Broadcast()
	n.mu.Unlock()
	<-n.done
}
