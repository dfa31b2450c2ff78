package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/darkconsole/console-chat/chat"
)

// printer writes each message of a room once, in order, and notes deletions of
// messages it already printed
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	printed map[string]bool
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, printed: make(map[string]bool)}
}

func (p *printer) update(views []chat.View) {
	p.mu.Lock()
	defer p.mu.Unlock()

	present := make(map[string]bool, len(views))
	for _, v := range views {
		key := messageKey(v.Message)
		present[key] = true
		if p.printed[key] {
			continue
		}
		p.printed[key] = true
		fmt.Fprintln(p.out, formatView(v))
	}
	for key := range p.printed {
		if !present[key] {
			delete(p.printed, key)
			fmt.Fprintf(p.out, "-- message %s deleted\n", key)
		}
	}
}

func messageKey(m chat.Message) string {
	if m.ID != "" {
		return m.ID
	}
	return m.ClientID
}

// formatView renders one line: time, side, author with its staff badge, reply
// preview and body
func formatView(v chat.View) string {
	var b strings.Builder
	b.WriteString(v.CreatedAt.Local().Format("15:04:05"))
	if v.Side.IsSelf {
		b.WriteString(" [me] ")
	} else {
		b.WriteString(" [them] ")
	}
	name := v.SenderName
	if name == "" {
		name = "anonymous"
	}
	b.WriteString(name)
	if v.Side.Role == chat.RoleStaff {
		b.WriteString(" (staff)")
	}
	b.WriteString(": ")
	if v.ReplyTo != nil {
		fmt.Fprintf(&b, "(re %s: %s) ", v.ReplyTo.SenderName, clip(v.ReplyTo.Body, 40))
	}
	b.WriteString(v.Snapshot().Body)
	return b.String()
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
