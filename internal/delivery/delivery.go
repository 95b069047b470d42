// Package delivery defines the outbound transport used to deliver
// rendered notifications.
package delivery

import "context"

// Message is one outbound notification addressed to a recipient.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Client is the transport for sending a rendered message. A nil error is
// a confirmed delivery; any error (including a timeout) is a failure and
// the message must be considered unsent.
type Client interface {
	Send(ctx context.Context, msg Message) error
}
