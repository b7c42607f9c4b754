package welcome

import (
	"context"
	"time"
)

type SettingsStore interface {
	// GetSettings returns ErrNotFound when the guild+kind was never configured.
	GetSettings(ctx context.Context, guildID string, kind Kind) (*Settings, error)
	PutSettings(ctx context.Context, s Settings) error
}

type TemplateStore interface {
	// InsertTemplate assigns and returns the next id for the guild+kind.
	// Ids are allocated from a counter and never reused after removal.
	InsertTemplate(ctx context.Context, guildID string, kind Kind, body string) (int, error)
	// DeleteTemplate returns ErrNotFound when no such id exists.
	DeleteTemplate(ctx context.Context, guildID string, kind Kind, id int) error
	// ListTemplates returns templates ordered by id ascending.
	ListTemplates(ctx context.Context, guildID string, kind Kind) ([]Template, error)
}

type NotificationStore interface {
	PutNotification(ctx context.Context, n Notification) error
	// GetNotification returns ErrNotFound for unknown ids.
	GetNotification(ctx context.Context, id string) (*Notification, error)
	// AddGreeter inserts the greeter into the notification's set and
	// reports whether it was newly added. The insert must be atomic:
	// concurrent calls for the same pair yield exactly one true.
	AddGreeter(ctx context.Context, notificationID, greeterID string) (bool, error)
	CountGreeters(ctx context.Context, notificationID string) (int, error)
	// PurgeNotifications drops notifications expired before the given
	// time, along with their greeter sets.
	PurgeNotifications(ctx context.Context, before time.Time) (int, error)
}

type GreetCountStore interface {
	IncrementGreetCount(ctx context.Context, guildID, greeterID string) error
	GetGreetCount(ctx context.Context, guildID, greeterID string) (int, error)
}

type Store interface {
	SettingsStore
	TemplateStore
	NotificationStore
	GreetCountStore
}
