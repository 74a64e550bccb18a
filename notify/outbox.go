package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultStream = "goidentity:outbox"
	DefaultMaxLen = 100_000
)

// Outbox appends messages to a Redis stream with XADD. The stream is
// trimmed approximately to MaxLen entries.
type Outbox struct {
	client redis.UniversalClient
	stream string
	maxLen int64
	now    func() time.Time
}

var _ goIdentity.Notifier = (*Outbox)(nil)

// OutboxOption configures an Outbox.
type OutboxOption func(*Outbox)

// WithStream overrides the stream key.
func WithStream(stream string) OutboxOption {
	return func(o *Outbox) {
		if s := strings.TrimSpace(stream); s != "" {
			o.stream = s
		}
	}
}

// WithMaxLen overrides the approximate stream length cap. Zero disables
// trimming.
func WithMaxLen(n int64) OutboxOption {
	return func(o *Outbox) {
		if n >= 0 {
			o.maxLen = n
		}
	}
}

// NewOutbox returns an Outbox writing through client.
func NewOutbox(client redis.UniversalClient, opts ...OutboxOption) (*Outbox, error) {
	if client == nil {
		return nil, errors.New("notify: redis client is nil")
	}
	o := &Outbox{
		client: client,
		stream: DefaultStream,
		maxLen: DefaultMaxLen,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Notify appends msg to the stream. The entry id is returned by Redis and
// not surfaced.
func (o *Outbox) Notify(ctx context.Context, msg goIdentity.Message) error {
	if msg.Kind == "" || msg.To == "" {
		return errors.New("notify: message requires kind and recipient")
	}
	values := map[string]any{
		"kind":      string(msg.Kind),
		"to":        msg.To,
		"queued_at": o.now().UTC().Format(time.RFC3339Nano),
	}
	if msg.UserID != "" {
		values["user_id"] = msg.UserID
	}
	if msg.Code != "" {
		values["code"] = msg.Code
	}
	if msg.Link != "" {
		values["link"] = msg.Link
	}
	if len(msg.Data) > 0 {
		data, err := json.Marshal(msg.Data)
		if err != nil {
			return fmt.Errorf("notify: encode data: %w", err)
		}
		values["data"] = string(data)
	}

	args := &redis.XAddArgs{
		Stream: o.stream,
		Values: values,
	}
	if o.maxLen > 0 {
		args.MaxLen = o.maxLen
		args.Approx = true
	}
	if err := o.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("notify: xadd %s: %w", o.stream, err)
	}
	return nil
}
