// Package render produces outbound notification messages.
package render

import (
	"fmt"
	"strings"

	"dealalert/internal/model"
)

// Message is a rendered notification, produced just before dispatch and
// never persisted.
type Message struct {
	Subject string
	Body    string
}

// Immediate renders a single-item notification.
func Immediate(item model.Item) Message {
	var b strings.Builder
	b.WriteString(item.Title)
	if item.Category != "" {
		fmt.Fprintf(&b, "\n[%s]", item.Category)
	}
	if item.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(truncate(item.Description, 300))
	}
	return Message{
		Subject: "New deal: " + item.Title,
		Body:    b.String(),
	}
}

// Digest renders one batched message enumerating all of a recipient's
// matched items, in the order given.
func Digest(items []model.Item) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Your deal digest (%d new)\n", len(items))
	for i, item := range items {
		fmt.Fprintf(&b, "\n%d. %s", i+1, item.Title)
		if item.Category != "" {
			fmt.Fprintf(&b, " [%s]", item.Category)
		}
		if item.Description != "" {
			b.WriteString("\n   ")
			b.WriteString(truncate(item.Description, 200))
		}
	}
	return Message{
		Subject: fmt.Sprintf("Deal digest: %d new deals for you", len(items)),
		Body:    b.String(),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
