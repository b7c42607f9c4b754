package bot

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	dg "github.com/bwmarrin/discordgo"
	"github.com/glotchimo/herald/internal/cache"
	"github.com/glotchimo/herald/internal/database"
	"github.com/glotchimo/herald/internal/handlers"
	"github.com/glotchimo/herald/internal/handlers/commands"
	"github.com/glotchimo/herald/internal/models"
	"github.com/glotchimo/herald/internal/response"
	"github.com/glotchimo/herald/internal/utils"
	"github.com/glotchimo/herald/internal/welcome"
	"github.com/graxinc/errutil"
)

var lookup map[string]handlers.Handler = map[string]handlers.Handler{
	"ping":          &commands.Ping{},
	"welcome":       &commands.Welcome{},
	"welcome-count": &commands.Count{},
}

type EventType int

const (
	EventTypeGuildUpdate EventType = iota
	EventTypeInteraction
	EventTypeMemberAdd
	EventTypeMemberRemove
)

type GuildEvent struct {
	Type EventType

	GuildUpdate  *dg.GuildUpdate
	Interaction  *dg.InteractionCreate
	MemberAdd    *dg.GuildMemberAdd
	MemberRemove *dg.GuildMemberRemove
}

type GuildContext struct {
	Context context.Context
	Cancel  context.CancelFunc
	Events  chan GuildEvent
	Relay   chan string
}

// joinPost is a posted join notification pending timed deletion; it is
// removed early when the joining member leaves before the timer fires.
type joinPost struct {
	channelID string
	messageID string
	timer     *time.Timer
}

type Bot struct {
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc

	s *dg.Session
	d *database.Database
	c *cache.Cache
	l *slog.Logger
	r *response.Responder
	w *welcome.Service

	bus *welcome.Bus

	events   chan GuildEvent
	contexts map[string]*GuildContext

	jmu   sync.Mutex
	joins map[string]map[string]joinPost
}

func NewBot(debug bool, dbURL, cacheURL, token string, shardID, shardCount, intents int) (*Bot, error) {
	b := Bot{
		events:   make(chan GuildEvent),
		contexts: make(map[string]*GuildContext),
		joins:    make(map[string]map[string]joinPost),
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.ctx = ctx
	b.cancel = cancel

	if debug {
		b.l = slog.Default()
	} else {
		b.l = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	}

	database, err := database.NewDatabase(b.l, dbURL)
	if err != nil {
		return nil, errutil.With(err)
	}
	b.d = database

	session, err := dg.New("Bot " + token)
	if err != nil {
		return nil, errutil.With(err)
	}
	b.s = session

	b.s.Identify.Intents = dg.Intent(intents)

	b.s.ShardID = shardID
	b.s.ShardCount = shardCount
	b.l.Info("sharding enabled", "shard_id", shardID, "shard_count", shardCount)

	c, err := cache.NewCache(cacheURL, b.l)
	if err != nil {
		return nil, errutil.With(err)
	}
	b.c = c

	b.r = response.NewSessionResponder(b.s, b.l)

	b.bus = welcome.NewBus(0)
	b.bus.Subscribe(func(ctx context.Context, e welcome.MemberGreeted) {
		b.l.Info("member greeted", "guild", e.GuildID, "member", e.NewMemberID, "greeter", e.GreeterID)
	})

	b.w = welcome.NewService(cache.NewStore(b.d, b.c, b.l), b.bus, b.l)

	b.s.AddHandler(func(s *dg.Session, r *dg.Ready) {
		b.l.Info("bot connected to gateway",
			"bot", fmt.Sprintf("%s#%s", r.User.Username, r.User.Discriminator),
			"guilds", len(s.State.Guilds),
			"version", utils.GetCommit(),
			"shard_id", shardID,
			"shard_count", shardCount,
		)
	})

	if err := b.s.Open(); err != nil {
		return nil, errutil.With(err)
	}

	b.s.AddHandler(func(s *dg.Session, g *dg.GuildCreate) { b.register(g.Guild) })
	b.s.AddHandler(func(s *dg.Session, g *dg.GuildDelete) { b.remove(g.Guild) })

	b.s.AddHandler(func(s *dg.Session, i *dg.InteractionCreate) {
		b.enqueue(i.GuildID, GuildEvent{Type: EventTypeInteraction, Interaction: i})
	})
	b.s.AddHandler(func(s *dg.Session, m *dg.GuildMemberAdd) {
		b.enqueue(m.GuildID, GuildEvent{Type: EventTypeMemberAdd, MemberAdd: m})
	})
	b.s.AddHandler(func(s *dg.Session, m *dg.GuildMemberRemove) {
		b.enqueue(m.GuildID, GuildEvent{Type: EventTypeMemberRemove, MemberRemove: m})
	})

	go b.route()
	go b.status()
	go b.purge()

	return &b, nil
}

// Greetings exposes the domain event stream so other extensions can
// react when one member greets another.
func (b *Bot) Greetings() *welcome.Bus {
	return b.bus
}

func (b *Bot) Close() {
	defer b.s.Close()
	defer b.d.Close()
	defer b.c.Close()
	defer b.bus.Close()

	b.cancel()
	close(b.events)
}

func (b *Bot) route() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case e := <-b.events:
			switch e.Type {
			case EventTypeGuildUpdate:
				b.register(e.GuildUpdate.Guild)
			default:
				guildID := ""
				switch e.Type {
				case EventTypeInteraction:
					guildID = e.Interaction.GuildID
				case EventTypeMemberAdd:
					guildID = e.MemberAdd.GuildID
				case EventTypeMemberRemove:
					guildID = e.MemberRemove.GuildID
				}

				b.mu.RLock()
				ctx, ok := b.contexts[guildID]
				b.mu.RUnlock()
				if ok {
					ctx.Events <- e
				}
			}
		}
	}
}

func (b *Bot) status() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	s := 0
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			var msg string
			switch s {
			case 0:
				count, err := b.d.Count(b.ctx, models.TableGuilds, nil)
				if err != nil {
					b.l.Error("error counting known guilds", "error", err)
					continue
				}
				msg = fmt.Sprintf("Greeting %d servers", count)

			case 1:
				count, err := b.d.Count(b.ctx, models.TableWelcomeGreeters, nil)
				if err != nil {
					b.l.Error("error counting greetings", "error", err)
					continue
				}
				msg = fmt.Sprintf("%d welcomes given", count)

			default:
				s = -1
			}

			if err := b.s.UpdateStatusComplex(dg.UpdateStatusData{
				Status: string(dg.StatusOnline),
				Activities: []*dg.Activity{
					{
						Name:  b.s.State.User.Username,
						Type:  dg.ActivityTypeCustom,
						State: msg,
					},
				},
			}); err != nil {
				b.l.Error("error setting bot status", "error", err)
			}

			s++
		}
	}
}

// purge garbage-collects expired greet notifications. Expiry is
// enforced on activation; this only trims dead tracker entries.
func (b *Bot) purge() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.w.PurgeExpired(b.ctx); err != nil {
				b.l.Error("error purging expired notifications", "error", err)
			}
		}
	}
}

func (b *Bot) ensure(guildID string) *GuildContext {
	b.mu.RLock()
	if guildCtx, exists := b.contexts[guildID]; exists {
		b.mu.RUnlock()
		return guildCtx
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	if guildCtx, exists := b.contexts[guildID]; exists {
		return guildCtx
	}

	ctx, cancel := context.WithCancel(b.ctx)
	guildCtx := &GuildContext{
		Context: ctx,
		Cancel:  cancel,
		Events:  make(chan GuildEvent, 1000),
		Relay:   make(chan string, 500),
	}

	b.contexts[guildID] = guildCtx
	return guildCtx
}

func (b *Bot) dispatch(guildID string) {
	defer func() {
		if r := recover(); r != nil {
			stack := make([]byte, 4096)
			stack = stack[:runtime.Stack(stack, false)]
			b.l.Error("panic recovered", "guild", guildID, "recovered", r, "stack", stack)
			go b.dispatch(guildID)
		}
	}()

	ctx := b.ensure(guildID)

	g, err := b.d.GetGuild(b.ctx, guildID)
	if err != nil {
		b.l.Error("error getting guild", "guild", guildID, "error", err)
	}

	go b.monitor(guildID, ctx)

	for {
		select {
		case <-ctx.Context.Done():
			return
		case e := <-ctx.Events:
			b.mu.RLock()
			gc, ok := b.contexts[guildID]
			b.mu.RUnlock()
			if !ok {
				b.l.Error("missing guild context entry", "guild", guildID)
				continue
			}

			switch e.Type {
			case EventTypeMemberAdd:
				b.memberAdd(gc, e.MemberAdd)

			case EventTypeMemberRemove:
				b.memberRemove(gc, e.MemberRemove)

			case EventTypeInteraction:
				i := e.Interaction
				if i == nil {
					b.l.Warn("received nil interaction in dispatch")
					continue
				}

				if err := b.d.Create(b.ctx, models.Interaction{
					Interaction: i.Interaction,
				}); err != nil {
					b.l.Warn("error storing interaction", "error", err)
				}

				switch i.Type {
				case dg.InteractionApplicationCommand:
					g, err = b.d.GetGuild(b.ctx, guildID)
					if err != nil {
						b.r.Fail(i, utils.Failure{
							Type:    utils.ErrInternal,
							Message: "Failed to fetch guild",
							Data:    map[string]any{"error": err, "guild": i.GuildID},
						})
						continue
					}

					data := i.ApplicationCommandData()
					opts := utils.MapOptions(i)

					h, ok := lookup[data.Name]
					if !ok {
						b.r.Fail(i, utils.Failure{
							Type:    utils.ErrNotFound,
							Message: "No registered command",
						})
						continue
					}

					b.l.Info("command issued", "user", i.Member.User.Username, "called", utils.FormatInteraction(b.s, i))

					go func() {
						defer func() {
							if r := recover(); r != nil {
								stack := make([]byte, 4096)
								stack = stack[:runtime.Stack(stack, false)]
								b.l.Error("panic recovered", "command", h.Metadata().Name, "guild", guildID, "recovered", r, "stack", stack)
							}
						}()

						if err := h.Handle(gc.Context, handlers.Dependencies{
							Session:     b.s,
							Database:    b.d,
							Welcome:     b.w,
							Responder:   b.r,
							Logger:      b.l,
							Guild:       g,
							Interaction: i,
							Options:     &opts,
						}); err != nil {
							b.l.Error("error handling command", "error", err, "command", data.Name, "guild", guildID)
							b.r.Fail(i, utils.Failure{
								Type:    utils.ErrInternal,
								Message: "Failed to handle command",
								Data:    map[string]any{"error": err},
							})
						}
					}()

				case dg.InteractionMessageComponent:
					b.greet(gc, i)
				}
			}
		}
	}
}

func (b *Bot) memberAdd(gc *GuildContext, e *dg.GuildMemberAdd) {
	member := handlers.BuildMember(b.s, e.GuildID, e.Member)

	rendered, err := b.w.OnMemberJoin(gc.Context, member)
	if err != nil {
		b.l.Error("error composing join notification", "error", err, "guild", e.GuildID, "member", member.ID)
		return
	}
	if rendered == nil {
		return
	}

	msg, err := b.r.PostNotification(rendered)
	if err != nil {
		b.l.Error("error posting join notification", "error", err, "guild", e.GuildID, "channel", rendered.ChannelID)
		return
	}

	if rendered.DeleteAfter > 0 {
		timer := b.r.DeleteAfter(msg.ChannelID, msg.ID, rendered.DeleteAfter)
		b.trackJoin(e.GuildID, member.ID, joinPost{channelID: msg.ChannelID, messageID: msg.ID, timer: timer})
	}
}

func (b *Bot) memberRemove(gc *GuildContext, e *dg.GuildMemberRemove) {
	// If the member's join message is still pending deletion, drop it now.
	if post, ok := b.popJoin(e.GuildID, e.User.ID); ok {
		post.timer.Stop()
		if err := b.r.DeleteMessage(post.channelID, post.messageID); err != nil {
			b.l.Warn("error deleting join message for leaving member", "error", err, "guild", e.GuildID)
		}
	}

	member := welcome.Member{
		ID:          e.User.ID,
		Mention:     e.User.Mention(),
		DisplayName: e.User.Username,
		AvatarURL:   e.User.AvatarURL("128"),
		GuildID:     e.GuildID,
	}
	if e.User.GlobalName != "" {
		member.DisplayName = e.User.GlobalName
	}
	if g, err := b.s.State.Guild(e.GuildID); err == nil {
		member.GuildName = g.Name
		member.MemberCount = g.MemberCount
	}

	rendered, err := b.w.OnMemberLeave(gc.Context, member)
	if err != nil {
		b.l.Error("error composing leave notification", "error", err, "guild", e.GuildID, "member", member.ID)
		return
	}
	if rendered == nil {
		return
	}

	msg, err := b.r.PostNotification(rendered)
	if err != nil {
		b.l.Error("error posting leave notification", "error", err, "guild", e.GuildID, "channel", rendered.ChannelID)
		return
	}

	if rendered.DeleteAfter > 0 {
		b.r.DeleteAfter(msg.ChannelID, msg.ID, rendered.DeleteAfter)
	}
}

func (b *Bot) greet(gc *GuildContext, i *dg.InteractionCreate) {
	id, ok := response.ParseGreetCustomID(i.MessageComponentData().CustomID)
	if !ok {
		return
	}

	act, err := b.w.Activate(gc.Context, id, i.Member.User.ID)
	if err != nil {
		b.l.Error("error activating greet", "error", err, "notification", id)
		if err := b.r.Ephemeral(i, "Something went wrong recording your welcome. Try again in a moment."); err != nil {
			b.l.Warn("error sending greet feedback", "error", err)
		}
		return
	}

	var feedback string
	switch act.Outcome {
	case welcome.Accepted:
		if err := b.r.UpdateComponents(i, []dg.MessageComponent{response.GreetRow(id, act.Greeters)}); err != nil {
			b.l.Warn("error updating greet control", "error", err, "notification", id)
		}
		return
	case welcome.AlreadyGreeted:
		feedback = "You have already welcomed this member!"
	case welcome.SelfGreet:
		feedback = "You cannot welcome yourself!"
	case welcome.Expired:
		feedback = "This welcome has expired."
		if act.Notification != nil && act.Notification.ExpiresAt != nil {
			feedback = fmt.Sprintf("This welcome expired %s.", utils.FormatTimestamp(*act.Notification.ExpiresAt, utils.TimestampRelative))
		}
	case welcome.NotFound:
		feedback = "This welcome is no longer active."
	}

	if err := b.r.Ephemeral(i, feedback); err != nil {
		b.l.Warn("error sending greet feedback", "error", err, "notification", id)
	}
}

func (b *Bot) trackJoin(guildID, memberID string, post joinPost) {
	b.jmu.Lock()
	defer b.jmu.Unlock()

	if _, ok := b.joins[guildID]; !ok {
		b.joins[guildID] = make(map[string]joinPost)
	}
	b.joins[guildID][memberID] = post
}

func (b *Bot) popJoin(guildID, memberID string) (joinPost, bool) {
	b.jmu.Lock()
	defer b.jmu.Unlock()

	post, ok := b.joins[guildID][memberID]
	if ok {
		delete(b.joins[guildID], memberID)
	}

	return post, ok
}

func (b *Bot) load(guildID string) {
	b.ensure(guildID)

	start := time.Now()

	g, err := b.d.GetGuild(b.ctx, guildID)
	if err != nil {
		b.l.Error("error getting guild", "error", err, "guild", guildID)
		return
	}

	var commands []*dg.ApplicationCommand

	for _, h := range lookup {
		cmd := h.Metadata()
		commands = append(commands, &cmd)
	}

	for i, cmd := range commands {
		result := utils.ValidateCommand(cmd)
		if result.WasModified {
			commands[i] = result.Command
			b.l.Warn("command was modified during validation", "command", cmd.Name, "errors", result.Errors, "guild", guildID)
		}
	}

	var newHash string
	bytes, err := json.Marshal(commands)
	if err == nil {
		hash := sha256.Sum256(bytes)
		newHash = fmt.Sprintf("%x", hash)
	}

	oldHash := g.Settings.CommandSetHash
	if newHash == oldHash {
		b.l.Info("command set unchanged", "guild", guildID)
		return
	}

	if _, err := b.s.ApplicationCommandBulkOverwrite(b.s.State.User.ID, guildID, commands); err != nil {
		b.l.Error("error loading guild commands", "error", err, "guild", guildID)
		return
	}

	if err := b.d.Update(b.ctx, models.TableGuilds, sq.Eq{"id": guildID}, map[string]any{
		"settings": sq.Expr("jsonb_set(COALESCE(settings, '{}'::jsonb), '{command_set_hash}', to_jsonb(?::text))", newHash),
	}); err != nil {
		b.l.Warn("error updating command set hash", "error", err, "guild", guildID, "hash", newHash)
	}

	b.l.Info("command set loaded", "loaded", len(commands), "duration", time.Since(start))
}

func (b *Bot) enqueue(guildID string, event GuildEvent) {
	b.mu.RLock()
	ctx, ok := b.contexts[guildID]
	b.mu.RUnlock()

	if !ok {
		b.l.Warn("attempted to enqueue event for unknown guild", "guild", guildID)
		return
	}

	select {
	case ctx.Events <- event:
	case <-ctx.Context.Done():
		b.l.Debug("dropped event for cancelled guild context", "guild", guildID)
	default:
		b.l.Warn("event channel full, dropping event", "guild", guildID)
	}
}

func (b *Bot) register(g *dg.Guild) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.contexts[g.ID]; ok {
		existing.Cancel()
	}

	ctx, cancel := context.WithCancel(b.ctx)

	guildCtx := &GuildContext{
		Context: ctx,
		Cancel:  cancel,
		Events:  make(chan GuildEvent, 1000),
		Relay:   make(chan string, 500),
	}

	b.contexts[g.ID] = guildCtx

	stored, err := b.d.GetGuild(b.ctx, g.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if err := b.d.PutGuild(b.ctx, models.Guild{ID: g.ID, Name: g.Name}); err != nil {
				b.l.Error("error storing new guild", "error", err)
				return
			}
		} else {
			b.l.Error("error fetching guild", "error", err)
			return
		}
	} else {
		stored.Name = g.Name
		if err := b.d.Update(b.ctx, models.TableGuilds, sq.Eq{"id": g.ID}, map[string]any{
			"name":     g.Name,
			"settings": sq.Expr("jsonb_set(COALESCE(settings, '{}'::jsonb), '{command_set_hash}', to_jsonb(?::text))", stored.Settings.CommandSetHash),
		}); err != nil {
			b.l.Error("error updating guild", "error", err)
			return
		}
	}

	b.l.Info("registered guild", "id", g.ID, "name", g.Name)

	go b.load(g.ID)
	go b.dispatch(g.ID)
}

func (b *Bot) remove(g *dg.Guild) {
	b.mu.Lock()
	if guildCtx, ok := b.contexts[g.ID]; ok {
		guildCtx.Cancel()
		delete(b.contexts, g.ID)
	}
	b.mu.Unlock()

	// Soft delete; the guilds table keeps the row under its deleted mark.
	if err := b.d.Delete(b.ctx, models.TableGuilds, sq.Eq{"id": g.ID}); err != nil {
		b.l.Warn("error marking guild deleted", "error", err, "guild", g.ID)
	}

	b.l.Info("removed guild", "id", g.ID)
}

func (b *Bot) monitor(guildID string, ctx *GuildContext) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	var lastWarningTime time.Time
	var consecutiveWarnings int

	for {
		select {
		case <-ctx.Context.Done():
			return
		case <-ticker.C:
			currentLen := len(ctx.Events)
			capacity := cap(ctx.Events)
			fillPercentage := float64(currentLen) / float64(capacity) * 100

			if fillPercentage > 60 {
				now := time.Now()
				if now.Sub(lastWarningTime) > 5*time.Minute {
					consecutiveWarnings = 0
					lastWarningTime = now
				}

				consecutiveWarnings++

				b.l.Warn("event channel filling up",
					"guild", guildID,
					"size", currentLen,
					"capacity", capacity,
					"percentage", fmt.Sprintf("%.1f%%", fillPercentage),
					"consecutive_warnings", consecutiveWarnings)

				if consecutiveWarnings >= 3 {
					b.l.Error("potential stuck handler detected; event channel consistently full",
						"guild", guildID,
						"size", currentLen,
						"capacity", capacity,
						"warnings", consecutiveWarnings)
				}
			}
		}
	}
}
