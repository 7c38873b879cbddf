// Package notify carries messages between the bot and its operator.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Reply is one incoming operator message.
type Reply struct {
	Text string
	At   time.Time
}

// Notifier sends operator notifications and exposes the stream of operator
// replies. The reply stream is append-only; each reply must be consumed at
// most once.
type Notifier interface {
	Send(ctx context.Context, text string) error
	Replies() <-chan Reply
	Close()
}

// LogNotifier writes notifications to the log and never receives replies.
// Used when no Telegram token is configured; manual confirmation mode is
// unusable with it, which config validation rejects up front.
type LogNotifier struct {
	log     zerolog.Logger
	replies chan Reply
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log, replies: make(chan Reply)}
}

func (n *LogNotifier) Send(_ context.Context, text string) error {
	n.log.Info().Str("channel", "log").Msg(text)
	return nil
}

func (n *LogNotifier) Replies() <-chan Reply { return n.replies }

func (n *LogNotifier) Close() {}
