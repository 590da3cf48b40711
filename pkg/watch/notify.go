package watch

import (
	"context"

	"github.com/gen2brain/beeep"
	"github.com/rotisserie/eris"
)

// Notifier shows a message to the developer.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, title, message string) error

func (f NotifierFunc) Notify(ctx context.Context, title, message string) error {
	return f(ctx, title, message)
}

// notify is replaced in tests.
var notify = beeep.Notify

// DesktopNotifier shows a native desktop notification.
type DesktopNotifier struct {
	// Icon is an optional path to an image shown next to the message.
	Icon string
}

func (n DesktopNotifier) Notify(ctx context.Context, title, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := notify(title, message, n.Icon); err != nil {
		return eris.Wrap(err, "failed to show notification")
	}
	return nil
}
