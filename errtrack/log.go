package errtrack

import (
	"context"
	"log/slog"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// Log writes each report as an error-level log line.
type Log struct {
	logger *slog.Logger
}

var _ goIdentity.ErrorReporter = (*Log)(nil)

// NewLog returns a Log reporter. A nil logger uses slog.Default.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Report implements goIdentity.ErrorReporter.
func (l *Log) Report(ctx context.Context, report goIdentity.ErrorReport) {
	attrs := []slog.Attr{
		slog.String("operation", report.Operation),
		slog.Any("error", report.Err),
	}
	if report.UserID != "" {
		attrs = append(attrs, slog.String("user_id", report.UserID))
	}
	for k, v := range report.Tags {
		attrs = append(attrs, slog.String("tag."+k, v))
	}
	for k, v := range report.Extra {
		attrs = append(attrs, slog.Any("extra."+k, v))
	}
	if report.Request != nil {
		attrs = append(attrs,
			slog.String("method", report.Request.Method),
			slog.String("path", report.Request.URL.Path),
		)
	}
	l.logger.LogAttrs(ctx, slog.LevelError, "goIdentity: error reported", attrs...)
}
