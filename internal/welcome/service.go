package welcome

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/glotchimo/herald/internal/utils"
	"github.com/graxinc/errutil"
)

// Service is the surface the bot layer drives: settings and template
// management, join/leave notification assembly, and greet activations.
type Service struct {
	store Store
	bus   *Bus
	l     *slog.Logger

	mu    sync.Mutex
	locks map[scopeKey]*sync.Mutex

	now   func() time.Time
	intn  func(n int) int
	newID func() string
}

func NewService(store Store, bus *Bus, l *slog.Logger) *Service {
	return &Service{
		store: store,
		bus:   bus,
		l:     l,
		locks: make(map[scopeKey]*sync.Mutex),
		now:   time.Now,
		intn:  rand.IntN,
		newID: utils.GenerateID,
	}
}

// settingsLock serializes settings writes per guild+kind so concurrent
// partial updates cannot drop each other's fields.
func (svc *Service) settingsLock(guildID string, kind Kind) *sync.Mutex {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	key := scopeKey{guildID, kind}
	m, ok := svc.locks[key]
	if !ok {
		m = &sync.Mutex{}
		svc.locks[key] = m
	}

	return m
}

// Settings returns the stored configuration for the guild+kind, or the
// zero-value defaults when it was never configured. It never fails on
// absence.
func (svc *Service) Settings(ctx context.Context, guildID string, kind Kind) (Settings, error) {
	s, err := svc.store.GetSettings(ctx, guildID, kind)
	if errors.Is(err, ErrNotFound) {
		return Settings{GuildID: guildID, Kind: kind}, nil
	} else if err != nil {
		return Settings{}, errutil.With(err)
	}

	return *s, nil
}

// UpdateSettings merges the patch over the current settings and persists
// the result, holding the guild+kind lock across the read-merge-write.
// Enabling notifications without a configured channel is rejected at
// write time.
func (svc *Service) UpdateSettings(ctx context.Context, guildID string, kind Kind, patch SettingsPatch) (Settings, error) {
	lock := svc.settingsLock(guildID, kind)
	lock.Lock()
	defer lock.Unlock()

	cur, err := svc.Settings(ctx, guildID, kind)
	if err != nil {
		return Settings{}, errutil.With(err)
	}

	if patch.ChannelID != nil {
		cur.ChannelID = *patch.ChannelID
	}
	if patch.Title != nil {
		cur.Title = *patch.Title
	}
	if patch.Enabled != nil {
		cur.Enabled = *patch.Enabled
	}
	if patch.GreetDuration != nil {
		if *patch.GreetDuration < 0 {
			return Settings{}, ValidationError{Reason: "duration must not be negative"}
		}
		cur.GreetDuration = *patch.GreetDuration
	}

	if cur.Enabled && cur.ChannelID == "" {
		return Settings{}, ValidationError{Reason: "cannot enable notifications without a channel"}
	}

	if err := svc.store.PutSettings(ctx, cur); err != nil {
		return Settings{}, errutil.With(err)
	}

	return cur, nil
}

func (svc *Service) AddTemplate(ctx context.Context, guildID string, kind Kind, body string) (int, error) {
	if strings.TrimSpace(body) == "" {
		return 0, ValidationError{Reason: "template body must not be empty"}
	}
	if len(body) > MaxTemplateLength {
		return 0, ValidationError{Reason: "template body exceeds the message size limit"}
	}

	id, err := svc.store.InsertTemplate(ctx, guildID, kind, body)
	if err != nil {
		return 0, errutil.With(err)
	}

	return id, nil
}

func (svc *Service) RemoveTemplate(ctx context.Context, guildID string, kind Kind, id int) error {
	return svc.store.DeleteTemplate(ctx, guildID, kind, id)
}

func (svc *Service) ListTemplates(ctx context.Context, guildID string, kind Kind) ([]Template, error) {
	ts, err := svc.store.ListTemplates(ctx, guildID, kind)
	if err != nil {
		return nil, errutil.With(err)
	}

	return ts, nil
}

// OnMemberJoin assembles the join notification for a member, records the
// greet notification backing its control, and hands the result back for
// posting. It returns nil when join notifications are disabled or have
// no target channel.
func (svc *Service) OnMemberJoin(ctx context.Context, m Member) (*RenderedNotification, error) {
	s, err := svc.Settings(ctx, m.GuildID, KindJoin)
	if err != nil {
		return nil, errutil.With(err)
	}
	if !s.Enabled || s.ChannelID == "" {
		return nil, nil
	}

	text, err := svc.compose(ctx, m, KindJoin)
	if err != nil {
		return nil, errutil.With(err)
	}

	n := Notification{
		ID:        svc.newID(),
		GuildID:   m.GuildID,
		ChannelID: s.ChannelID,
		MemberID:  m.ID,
		Created:   svc.now(),
	}
	if s.GreetDuration > 0 {
		t := n.Created.Add(s.GreetDuration)
		n.ExpiresAt = &t
	}

	if err := svc.store.PutNotification(ctx, n); err != nil {
		return nil, errutil.With(err)
	}

	return &RenderedNotification{
		Kind:         KindJoin,
		ChannelID:    s.ChannelID,
		Title:        title(s),
		Text:         text,
		Member:       m,
		Notification: &n,
		DeleteAfter:  s.GreetDuration,
	}, nil
}

// OnMemberLeave assembles the leave notification, or nil when leave
// notifications are disabled or have no target channel.
func (svc *Service) OnMemberLeave(ctx context.Context, m Member) (*RenderedNotification, error) {
	s, err := svc.Settings(ctx, m.GuildID, KindLeave)
	if err != nil {
		return nil, errutil.With(err)
	}
	if !s.Enabled || s.ChannelID == "" {
		return nil, nil
	}

	text, err := svc.compose(ctx, m, KindLeave)
	if err != nil {
		return nil, errutil.With(err)
	}

	return &RenderedNotification{
		Kind:        KindLeave,
		ChannelID:   s.ChannelID,
		Title:       title(s),
		Text:        text,
		Member:      m,
		DeleteAfter: s.GreetDuration,
	}, nil
}

func (svc *Service) compose(ctx context.Context, m Member, kind Kind) (string, error) {
	templates, err := svc.store.ListTemplates(ctx, m.GuildID, kind)
	if err != nil {
		return "", errutil.With(err)
	}

	return Render(Choose(kind, templates, svc.intn), m.Context()), nil
}

func title(s Settings) string {
	if s.Title != "" {
		return s.Title
	}
	return DefaultTitle(s.Kind)
}

// Activate records a greet control press. Each member may greet a given
// notification at most once; the new member cannot greet themselves.
// The de-duplication rides on the store's atomic set insert, so
// concurrent presses by the same greeter yield exactly one Accepted.
func (svc *Service) Activate(ctx context.Context, notificationID, greeterID string) (Activation, error) {
	n, err := svc.store.GetNotification(ctx, notificationID)
	if errors.Is(err, ErrNotFound) {
		return Activation{Outcome: NotFound}, nil
	} else if err != nil {
		return Activation{}, errutil.With(err)
	}

	if n.ExpiredAt(svc.now()) {
		return Activation{Outcome: Expired, Notification: n}, nil
	}

	if greeterID == n.MemberID {
		return Activation{Outcome: SelfGreet, Notification: n}, nil
	}

	added, err := svc.store.AddGreeter(ctx, notificationID, greeterID)
	if err != nil {
		return Activation{}, errutil.With(err)
	}
	if !added {
		return Activation{Outcome: AlreadyGreeted, Notification: n}, nil
	}

	if err := svc.store.IncrementGreetCount(ctx, n.GuildID, greeterID); err != nil {
		return Activation{}, errutil.With(err)
	}

	count, err := svc.store.CountGreeters(ctx, notificationID)
	if err != nil {
		return Activation{}, errutil.With(err)
	}

	if svc.bus != nil {
		svc.bus.Publish(MemberGreeted{
			GuildID:     n.GuildID,
			NewMemberID: n.MemberID,
			GreeterID:   greeterID,
			Timestamp:   svc.now(),
		})
	}

	return Activation{Outcome: Accepted, Notification: n, Greeters: count}, nil
}

func (svc *Service) GreetCount(ctx context.Context, guildID, memberID string) (int, error) {
	count, err := svc.store.GetGreetCount(ctx, guildID, memberID)
	if err != nil {
		return 0, errutil.With(err)
	}

	return count, nil
}

// PurgeExpired garbage-collects tracker entries whose controls have
// expired. Expiry itself is enforced on activation; cleanup has no
// deadline and runs opportunistically.
func (svc *Service) PurgeExpired(ctx context.Context) (int, error) {
	purged, err := svc.store.PurgeNotifications(ctx, svc.now())
	if err != nil {
		return 0, errutil.With(err)
	}

	if purged > 0 {
		svc.l.Info("purged expired greet notifications", "count", purged)
	}

	return purged, nil
}
