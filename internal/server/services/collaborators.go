package services

import (
	"context"
)

// ObjectStorage keeps binary blobs under a namespace ("images", "users").
type ObjectStorage interface {
	Put(ctx context.Context, data []byte, key, namespace string) error
	Delete(ctx context.Context, key, namespace string) error
}

// Notifier pushes a payload to the live connections of an account.
// Delivery is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, userName, channel string, payload any) error
}

// Mailer delivers a plain-text email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// AvatarGenerator renders a default profile picture for a seed string.
type AvatarGenerator interface {
	Generate(seed string) ([]byte, error)
}
