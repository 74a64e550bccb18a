package goIdentity

import (
	"context"
	"errors"

	"github.com/MrEthical07/goIdentity/internal/outbound"
)

const (
	jobVerificationEmail = "verification_email"
	jobPasswordReset     = "password_reset"
	jobEmailChangedOld   = "email_changed_old"
	jobEmailChangedNew   = "email_changed_new"
)

// sendNow delivers msg synchronously within the notification timeout.
func (e *Engine) sendNow(ctx context.Context, msg Message) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.Notifications.SendTimeout)
	defer cancel()
	return e.notifier.Notify(ctx, msg)
}

// enqueue submits a fire-and-forget job. The job runs on a context detached
// from the request.
func (e *Engine) enqueue(ctx context.Context, name string, run func(ctx context.Context) error) bool {
	queued := e.outbound.Submit(ctx, outbound.Job{Name: name, Run: run})
	if !queued {
		e.metricInc(MetricNotificationFailed)
		e.logger.Warn("goIdentity: notification not queued", "job", name)
	}
	return queued
}

func (e *Engine) onNotificationError(name string, err error) {
	e.metricInc(MetricNotificationFailed)
	if errors.Is(err, ErrIdentityNotFound) {
		e.logger.Debug("goIdentity: notification skipped, no identity", "job", name)
		return
	}
	e.logger.Warn("goIdentity: notification failed", "job", name, "error", err)
	e.report(context.Background(), "notify."+name, "", err, map[string]string{"job": name})
}

func (e *Engine) queueVerificationEmail(ctx context.Context, uid, email string) bool {
	return e.enqueue(ctx, jobVerificationEmail, func(ctx context.Context) error {
		link, err := e.withGateway(ctx, func(gctx context.Context) (string, error) {
			return e.gateway.EmailVerificationLink(gctx, email)
		})
		if err != nil {
			return err
		}
		return e.notifier.Notify(ctx, Message{
			Kind:   MessageEmailVerification,
			To:     email,
			UserID: uid,
			Link:   link,
		})
	})
}

func (e *Engine) queuePasswordReset(ctx context.Context, email string) bool {
	return e.enqueue(ctx, jobPasswordReset, func(ctx context.Context) error {
		link, err := e.withGateway(ctx, func(gctx context.Context) (string, error) {
			return e.gateway.PasswordResetLink(gctx, email)
		})
		if err != nil {
			return err
		}
		return e.notifier.Notify(ctx, Message{
			Kind: MessagePasswordReset,
			To:   email,
			Link: link,
		})
	})
}

func (e *Engine) queueEmailChangedNotices(ctx context.Context, uid, oldEmail, newEmail string) {
	data := map[string]string{
		"old_email": oldEmail,
		"new_email": newEmail,
	}
	e.enqueue(ctx, jobEmailChangedOld, func(ctx context.Context) error {
		return e.notifier.Notify(ctx, Message{
			Kind:   MessageEmailChangedOld,
			To:     oldEmail,
			UserID: uid,
			Data:   data,
		})
	})
	e.enqueue(ctx, jobEmailChangedNew, func(ctx context.Context) error {
		return e.notifier.Notify(ctx, Message{
			Kind:   MessageEmailChangedNew,
			To:     newEmail,
			UserID: uid,
			Data:   data,
		})
	})
}

func (e *Engine) withGateway(ctx context.Context, call func(context.Context) (string, error)) (string, error) {
	gctx, cancel := e.gatewayContext(ctx)
	defer cancel()
	return call(gctx)
}
