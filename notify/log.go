package notify

import (
	"context"
	"log/slog"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// Log records each message as a structured log line. Codes and links are
// never written, only whether they were present.
type Log struct {
	logger *slog.Logger
}

var _ goIdentity.Notifier = (*Log)(nil)

// NewLog returns a Log notifier. A nil logger uses slog.Default.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Notify implements goIdentity.Notifier.
func (l *Log) Notify(ctx context.Context, msg goIdentity.Message) error {
	l.logger.LogAttrs(ctx, slog.LevelInfo, "notification",
		slog.String("kind", string(msg.Kind)),
		slog.String("to", msg.To),
		slog.String("user_id", msg.UserID),
		slog.Bool("has_code", msg.Code != ""),
		slog.Bool("has_link", msg.Link != ""),
	)
	return nil
}
