// Package notify provides goIdentity.Notifier implementations.
//
// [Outbox] appends each message to a Redis stream for a mail worker to
// consume. [Log] writes a structured line per message and is meant for
// development. Neither renders templates; the message kind names the
// template the consumer applies.
package notify
