package chat

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
)

type emitted struct {
	Event   string
	Payload interface{}
}

// fakeTransport records emitted frames and lets tests deliver inbound events
type fakeTransport struct {
	mu        sync.Mutex
	frames    []emitted
	handlers  map[string][]func(json.RawMessage)
	reconnect []func()
	fail      bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string][]func(json.RawMessage))}
}

func (f *fakeTransport) Emit(event string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("connection lost")
	}
	f.frames = append(f.frames, emitted{Event: event, Payload: payload})
	return nil
}

func (f *fakeTransport) On(event string, handler func(json.RawMessage)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], handler)
	idx := len(f.handlers[event]) - 1
	return func() {
		f.mu.Lock()
		f.handlers[event][idx] = nil
		f.mu.Unlock()
	}
}

func (f *fakeTransport) OnReconnect(hook func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnect = append(f.reconnect, hook)
	idx := len(f.reconnect) - 1
	return func() {
		f.mu.Lock()
		f.reconnect[idx] = nil
		f.mu.Unlock()
	}
}

func (f *fakeTransport) deliver(event string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	hs := append(([]func(json.RawMessage))(nil), f.handlers[event]...)
	f.mu.Unlock()
	for _, h := range hs {
		if h != nil {
			h(raw)
		}
	}
}

func (f *fakeTransport) reconnected() {
	f.mu.Lock()
	hooks := append(([]func())(nil), f.reconnect...)
	f.mu.Unlock()
	for _, h := range hooks {
		if h != nil {
			h()
		}
	}
}

func (f *fakeTransport) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *fakeTransport) sent(event string) []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []interface{}
	for _, fr := range f.frames {
		if fr.Event == event {
			out = append(out, fr.Payload)
		}
	}
	return out
}

func (f *fakeTransport) handlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, hs := range f.handlers {
		for _, h := range hs {
			if h != nil {
				n++
			}
		}
	}
	for _, h := range f.reconnect {
		if h != nil {
			n++
		}
	}
	return n
}

// members is a Membership backed by maps
type members struct {
	orders map[string]string // order id -> owner
	events map[string][]string
}

func (m members) OwnsOrder(viewerID, orderID string) bool {
	return m.orders[orderID] == viewerID
}

func (m members) JoinedEvent(viewerID, eventID string) bool {
	for _, id := range m.events[eventID] {
		if id == viewerID {
			return true
		}
	}
	return false
}
