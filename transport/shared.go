package transport

import (
	"context"
	"sync"
)

var (
	sharedMu   sync.Mutex
	sharedConn *Conn
	sharedURL  string
)

// Shared returns the process wide relay connection, dialing it on first use.
// Every chat surface uses the same connection.
func Shared(ctx context.Context, wsURL string, opts Options) (*Conn, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedConn != nil && !sharedConn.isClosed() && sharedURL == wsURL {
		return sharedConn, nil
	}
	if sharedConn != nil {
		_ = sharedConn.Close()
	}
	c, err := Dial(ctx, wsURL, opts)
	if err != nil {
		return nil, err
	}
	sharedConn, sharedURL = c, wsURL
	return c, nil
}

// CloseShared closes the shared connection, typically on logout
func CloseShared() error {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedConn == nil {
		return nil
	}
	err := sharedConn.Close()
	sharedConn, sharedURL = nil, ""
	return err
}
