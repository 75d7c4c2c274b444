package notifier

import (
	"context"
	"time"
)

// Config controls delivery policy. Transport settings live with each Sender.
type Config struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	// SendTimeout bounds a single transport call.
	SendTimeout time.Duration
	HistorySize int
}

// Message is a composed reminder.
type Message struct {
	Subject string
	Body    string

	Text string
	Hour int
	Date string
}

// Sender is one delivery transport.
type Sender interface {
	Name() string
	Send(ctx context.Context, m Message) error
}
