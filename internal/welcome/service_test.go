package welcome

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()

	store := NewMemoryStore()
	bus := NewBus(8)
	t.Cleanup(bus.Close)

	svc := NewService(store, bus, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return testTime }

	return svc, store
}

func testMember() Member {
	return Member{
		ID:          "m1",
		Mention:     "<@m1>",
		DisplayName: "Newbie",
		AvatarURL:   "https://cdn.example/m1.png",
		GuildID:     "g1",
		GuildName:   "Testers",
		MemberCount: 42,
	}
}

func strPtr(s string) *string               { return &s }
func boolPtr(b bool) *bool                  { return &b }
func durPtr(d time.Duration) *time.Duration { return &d }

func TestSettings_DefaultsWhenUnconfigured(t *testing.T) {
	svc, _ := newTestService(t)

	s, err := svc.Settings(context.Background(), "g1", KindJoin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.Enabled {
		t.Error("expected notifications disabled by default")
	}
	if s.ChannelID != "" || s.Title != "" || s.GreetDuration != 0 {
		t.Errorf("expected unset defaults, got %+v", s)
	}
}

func TestUpdateSettings_EnableWithoutChannelFails(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.UpdateSettings(context.Background(), "g1", KindJoin, SettingsPatch{Enabled: boolPtr(true)})

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	// Nothing should have been persisted.
	if _, err := svc.store.GetSettings(context.Background(), "g1", KindJoin); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected no persisted settings, got err %v", err)
	}
}

func TestUpdateSettings_PartialMerge(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.UpdateSettings(ctx, "g1", KindJoin, SettingsPatch{ChannelID: strPtr("c1")}); err != nil {
		t.Fatalf("unexpected error setting channel: %v", err)
	}

	s, err := svc.UpdateSettings(ctx, "g1", KindJoin, SettingsPatch{Enabled: boolPtr(true)})
	if err != nil {
		t.Fatalf("unexpected error enabling: %v", err)
	}

	if s.ChannelID != "c1" {
		t.Errorf("expected channel retained through partial update, got %q", s.ChannelID)
	}
	if !s.Enabled {
		t.Error("expected enabled after update")
	}

	s, err = svc.UpdateSettings(ctx, "g1", KindJoin, SettingsPatch{Title: strPtr("Hello")})
	if err != nil {
		t.Fatalf("unexpected error setting title: %v", err)
	}
	if s.ChannelID != "c1" || !s.Enabled || s.Title != "Hello" {
		t.Errorf("expected merged settings, got %+v", s)
	}
}

// slowSettingsStore widens the window between reading settings and
// writing them back, so unserialized read-merge-write cycles overlap.
type slowSettingsStore struct {
	Store
	delay time.Duration
}

func (s slowSettingsStore) GetSettings(ctx context.Context, guildID string, kind Kind) (*Settings, error) {
	time.Sleep(s.delay)
	return s.Store.GetSettings(ctx, guildID, kind)
}

func TestUpdateSettings_ConcurrentPatchesBothRetained(t *testing.T) {
	store := NewMemoryStore()
	bus := NewBus(8)
	t.Cleanup(bus.Close)

	svc := NewService(slowSettingsStore{Store: store, delay: 20 * time.Millisecond}, bus, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, patch := range []SettingsPatch{
		{ChannelID: strPtr("c1")},
		{Title: strPtr("Welcome")},
	} {
		wg.Add(1)
		go func(p SettingsPatch) {
			defer wg.Done()
			if _, err := svc.UpdateSettings(ctx, "g1", KindJoin, p); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}(patch)
	}
	wg.Wait()

	s, err := svc.Settings(ctx, "g1", KindJoin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ChannelID != "c1" || s.Title != "Welcome" {
		t.Errorf("expected both concurrent patches retained, got %+v", s)
	}
}

func TestUpdateSettings_NegativeDurationFails(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.UpdateSettings(context.Background(), "g1", KindJoin, SettingsPatch{GreetDuration: durPtr(-time.Second)})

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestUpdateSettings_KindsAreIndependent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.UpdateSettings(ctx, "g1", KindJoin, SettingsPatch{ChannelID: strPtr("c1"), Enabled: boolPtr(true)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s, err := svc.Settings(ctx, "g1", KindLeave)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Enabled || s.ChannelID != "" {
		t.Errorf("expected leave settings untouched by join update, got %+v", s)
	}
}

func TestAddTemplate_AssignsSequentialIDs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	id1, err := svc.AddTemplate(ctx, "g1", KindJoin, "first")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id2, err := svc.AddTemplate(ctx, "g1", KindJoin, "second")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if id1 != 1 || id2 != 2 {
		t.Errorf("expected ids 1 and 2, got %d and %d", id1, id2)
	}

	templates, err := svc.ListTemplates(ctx, "g1", KindJoin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(templates) != 2 || templates[0].Body != "first" || templates[1].Body != "second" {
		t.Errorf("unexpected listing: %+v", templates)
	}
}

func TestAddTemplate_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"too long", strings.Repeat("x", MaxTemplateLength+1)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AddTemplate(ctx, "g1", KindJoin, tc.body)
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestRemoveTemplate_IDsNeverReused(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddTemplate(ctx, "g1", KindJoin, "first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id2, err := svc.AddTemplate(ctx, "g1", KindJoin, "second")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.RemoveTemplate(ctx, "g1", KindJoin, id2); err != nil {
		t.Fatalf("unexpected error removing: %v", err)
	}

	templates, err := svc.ListTemplates(ctx, "g1", KindJoin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, tpl := range templates {
		if tpl.ID == id2 {
			t.Errorf("expected id %d gone from listing", id2)
		}
	}

	id3, err := svc.AddTemplate(ctx, "g1", KindJoin, "third")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id3 == id2 {
		t.Errorf("expected removed id %d to never be reused, got it back", id2)
	}
	if id3 != 3 {
		t.Errorf("expected id 3, got %d", id3)
	}
}

func TestRemoveTemplate_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.RemoveTemplate(context.Background(), "g1", KindJoin, 99)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOnMemberJoin_DisabledReturnsNil(t *testing.T) {
	svc, _ := newTestService(t)

	rendered, err := svc.OnMemberJoin(context.Background(), testMember())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rendered != nil {
		t.Errorf("expected nil notification when unconfigured, got %+v", rendered)
	}
}

func TestOnMemberJoin_DefaultBodyWhenNoTemplates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.UpdateSettings(ctx, "g1", KindJoin, SettingsPatch{ChannelID: strPtr("c1"), Enabled: boolPtr(true)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rendered, err := svc.OnMemberJoin(ctx, testMember())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rendered == nil {
		t.Fatal("expected a rendered notification")
	}

	want := Render(DefaultJoinBody, testMember().Context())
	if rendered.Text != want {
		t.Errorf("expected default body rendered to %q, got %q", want, rendered.Text)
	}
	if rendered.Title != DefaultJoinTitle {
		t.Errorf("expected default title %q, got %q", DefaultJoinTitle, rendered.Title)
	}
	if rendered.Notification == nil {
		t.Fatal("expected a greet notification attached")
	}
	if rendered.Notification.ExpiresAt != nil {
		t.Error("expected a persistent control when no duration is set")
	}
}

func TestOnMemberJoin_Scenario(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if _, err := svc.UpdateSettings(ctx, "g1", KindJoin, SettingsPatch{
		ChannelID:     strPtr("c1"),
		Title:         strPtr("Welcome"),
		Enabled:       boolPtr(true),
		GreetDuration: durPtr(60 * time.Second),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.AddTemplate(ctx, "g1", KindJoin, "Hi {mention}!"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rendered, err := svc.OnMemberJoin(ctx, testMember())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rendered == nil {
		t.Fatal("expected a rendered notification")
	}

	if rendered.ChannelID != "c1" {
		t.Errorf("expected channel c1, got %q", rendered.ChannelID)
	}
	if rendered.Title != "Welcome" {
		t.Errorf("expected title Welcome, got %q", rendered.Title)
	}
	if rendered.Text != "Hi <@m1>!" {
		t.Errorf("expected substituted mention, got %q", rendered.Text)
	}
	if rendered.DeleteAfter != 60*time.Second {
		t.Errorf("expected 60s deletion, got %s", rendered.DeleteAfter)
	}

	n := rendered.Notification
	if n == nil {
		t.Fatal("expected a greet notification attached")
	}
	if n.ExpiresAt == nil || !n.ExpiresAt.Equal(testTime.Add(60*time.Second)) {
		t.Errorf("expected expiry 60s after post, got %v", n.ExpiresAt)
	}

	// The notification must be durably tracked under its id.
	stored, err := store.GetNotification(ctx, n.ID)
	if err != nil {
		t.Fatalf("expected stored notification: %v", err)
	}
	if stored.MemberID != "m1" || stored.GuildID != "g1" {
		t.Errorf("unexpected stored notification: %+v", stored)
	}
}

func TestOnMemberLeave_DisabledReturnsNil(t *testing.T) {
	svc, _ := newTestService(t)

	rendered, err := svc.OnMemberLeave(context.Background(), testMember())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rendered != nil {
		t.Errorf("expected nil notification when unconfigured, got %+v", rendered)
	}
}

func TestOnMemberLeave_NoGreetControl(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.UpdateSettings(ctx, "g1", KindLeave, SettingsPatch{ChannelID: strPtr("c2"), Enabled: boolPtr(true)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rendered, err := svc.OnMemberLeave(ctx, testMember())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rendered == nil {
		t.Fatal("expected a rendered notification")
	}
	if rendered.Notification != nil {
		t.Error("expected no greet control on leave notifications")
	}
	if rendered.Title != DefaultLeaveTitle {
		t.Errorf("expected default title %q, got %q", DefaultLeaveTitle, rendered.Title)
	}
}
