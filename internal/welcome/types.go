package welcome

import (
	"errors"
	"time"
)

// MaxTemplateLength is Discord's message size bound.
const MaxTemplateLength = 2000

var ErrNotFound = errors.New("not found")

type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return e.Reason
}

// Settings holds the per guild+kind notification configuration. The zero
// value (enabled false, nothing set) is what an unconfigured guild gets.
type Settings struct {
	GuildID       string
	Kind          Kind
	ChannelID     string
	Title         string
	Enabled       bool
	GreetDuration time.Duration
}

// SettingsPatch carries a partial update; nil fields retain prior values.
type SettingsPatch struct {
	ChannelID     *string
	Title         *string
	Enabled       *bool
	GreetDuration *time.Duration
}

type Template struct {
	ID   int
	Body string
}

// Notification is one posted join message carrying a greet control.
// A nil ExpiresAt means the control never expires.
type Notification struct {
	ID        string
	GuildID   string
	ChannelID string
	MemberID  string
	ExpiresAt *time.Time
	Created   time.Time
}

func (n *Notification) ExpiredAt(t time.Time) bool {
	return n.ExpiresAt != nil && !t.Before(*n.ExpiresAt)
}

// Member is the identity snapshot handed in by the gateway layer.
type Member struct {
	ID          string
	Mention     string
	DisplayName string
	AvatarURL   string
	GuildID     string
	GuildName   string
	MemberCount int
}

// RenderedNotification is what the bot layer posts. Notification is
// non-nil when a greet control should be attached, and DeleteAfter is
// how long the posted message should live (zero keeps it forever).
type RenderedNotification struct {
	Kind         Kind
	ChannelID    string
	Title        string
	Text         string
	Member       Member
	Notification *Notification
	DeleteAfter  time.Duration
}

type Outcome int

const (
	Accepted Outcome = iota
	AlreadyGreeted
	Expired
	SelfGreet
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case AlreadyGreeted:
		return "already_greeted"
	case Expired:
		return "expired"
	case SelfGreet:
		return "self_greet"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Activation is the result of a greet control press. Notification is set
// for every outcome except NotFound; Greeters only for Accepted.
type Activation struct {
	Outcome      Outcome
	Notification *Notification
	Greeters     int
}

// MemberGreeted is emitted exactly once per accepted activation, after
// the greeter set is durably updated.
type MemberGreeted struct {
	GuildID     string
	NewMemberID string
	GreeterID   string
	Timestamp   time.Time
}
