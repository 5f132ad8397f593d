// Package notify delivers user-visible feedback for failed optimistic mutations.
//
// Background revalidation failures never reach a Notifier; only actions the user
// just took do. Messages come from a small localized catalog keyed like the host
// application's toast constants.
package notify

import (
	"context"

	"github.com/unkn0wn-root/swrcache/errclass"
)

// MessageKey identifies a catalog message.
type MessageKey string

const (
	SaveError       MessageKey = "SAVE_ERROR"
	PermissionError MessageKey = "PERMISSION_ERROR"
	NetworkError    MessageKey = "NETWORK_ERROR"
	NotFound        MessageKey = "NOT_FOUND"
	ServerError     MessageKey = "SERVER_ERROR"
	LoadError       MessageKey = "LOAD_ERROR"
)

// Notification is one user-facing message.
type Notification struct {
	Kind    errclass.Kind
	Keys    []string // cache keys the failed action touched
	Message MessageKey
	Text    string // localized Message
	Err     error
}

// Notifier shows notifications to the user. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notification)

func (f Func) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Nop drops notifications.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) {}

// KeyFor picks the message for a failure kind.
func KeyFor(kind errclass.Kind) MessageKey {
	switch kind {
	case errclass.Auth:
		return PermissionError
	case errclass.Network:
		return NetworkError
	case errclass.NotFound:
		return NotFound
	case errclass.Server:
		return ServerError
	}
	return SaveError
}
