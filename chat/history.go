package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/darkconsole/console-chat/models"
)

// HistoryLoader fetches the persisted backlog of a room, oldest first
type HistoryLoader interface {
	LoadHistory(ctx context.Context, roomID string) ([]Message, error)
}

// HistoryFunc adapts a function to HistoryLoader
type HistoryFunc func(ctx context.Context, roomID string) ([]Message, error)

// LoadHistory implements HistoryLoader
func (f HistoryFunc) LoadHistory(ctx context.Context, roomID string) ([]Message, error) {
	return f(ctx, roomID)
}

// HTTPHistory loads history from the relay's REST endpoint GET /api/v1/chats/{roomId}
type HTTPHistory struct {
	BaseURL string
	Token   string
	Limit   int
	Client  *http.Client
}

// LoadHistory implements HistoryLoader
func (h HTTPHistory) LoadHistory(ctx context.Context, roomID string) ([]Message, error) {
	u := strings.TrimRight(h.BaseURL, "/") + "/api/v1/chats/" + url.PathEscape(roomID)
	if h.Limit > 0 {
		u += fmt.Sprintf("?limit=%d", h.Limit)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(ErrHistoryFetchFailed, err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if h.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.Token)
	}

	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(ErrHistoryFetchFailed, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ErrHistoryFetchFailed, "%s returned %s", roomID, resp.Status)
	}

	var envs []models.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&envs); err != nil {
		return nil, errors.Wrap(ErrHistoryFetchFailed, err.Error())
	}
	msgs := make([]Message, 0, len(envs))
	for _, e := range envs {
		if e.Room == "" {
			e.Room = roomID
		}
		msgs = append(msgs, FromEnvelope(e))
	}
	return msgs, nil
}
