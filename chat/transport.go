package chat

import "encoding/json"

// Transport is the shared bidirectional connection to the relay.
// transport.Conn satisfies it.
type Transport interface {
	Emit(event string, payload interface{}) error
	On(event string, handler func(data json.RawMessage)) (off func())
	OnReconnect(hook func()) (off func())
}
