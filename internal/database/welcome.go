package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/glotchimo/herald/internal/models"
	"github.com/glotchimo/herald/internal/welcome"
	"github.com/graxinc/errutil"
)

var _ welcome.Store = (*Database)(nil)

func (db *Database) GetSettings(ctx context.Context, guildID string, kind welcome.Kind) (*welcome.Settings, error) {
	var s welcome.Settings
	var seconds int64

	q := db.builder.
		Select("guild_id", "kind", "channel_id", "title", "enabled", "greet_duration").
		From(string(models.TableWelcomeSettings)).
		Where(sq.Eq{"guild_id": guildID, "kind": string(kind)})

	if err := q.QueryRowContext(ctx).Scan(
		&s.GuildID,
		&s.Kind,
		&s.ChannelID,
		&s.Title,
		&s.Enabled,
		&seconds,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, welcome.ErrNotFound
		}
		return nil, errutil.With(err)
	}

	s.GreetDuration = time.Duration(seconds) * time.Second

	return &s, nil
}

func (db *Database) PutSettings(ctx context.Context, s welcome.Settings) error {
	q := db.builder.
		Insert(string(models.TableWelcomeSettings)).
		SetMap(map[string]any{
			"guild_id":       s.GuildID,
			"kind":           string(s.Kind),
			"channel_id":     s.ChannelID,
			"title":          s.Title,
			"enabled":        s.Enabled,
			"greet_duration": int64(s.GreetDuration / time.Second),
			"created":        time.Now().UTC(),
		}).
		Suffix(`ON CONFLICT (guild_id, kind) DO UPDATE SET
			channel_id = EXCLUDED.channel_id,
			title = EXCLUDED.title,
			enabled = EXCLUDED.enabled,
			greet_duration = EXCLUDED.greet_duration,
			updated = NOW()`)

	if _, err := q.ExecContext(ctx); err != nil {
		return errutil.With(err)
	}

	return nil
}

// InsertTemplate allocates the next id from the per-guild+kind counter
// row and inserts the template under it, in one transaction. The counter
// only moves forward, so removed ids are never reassigned.
func (db *Database) InsertTemplate(ctx context.Context, guildID string, kind welcome.Kind, body string) (int, error) {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return 0, errutil.With(err)
	}
	defer tx.Rollback()

	var id int
	seq := tx.builder.
		Insert(string(models.TableWelcomeTemplateSeq)).
		Columns("guild_id", "kind", "next_id").
		Values(guildID, string(kind), 1).
		Suffix(`ON CONFLICT (guild_id, kind) DO UPDATE SET
			next_id = welcome_template_seq.next_id + 1
			RETURNING next_id`)

	if err := seq.QueryRowContext(ctx).Scan(&id); err != nil {
		return 0, errutil.With(err)
	}

	ins := tx.builder.
		Insert(string(models.TableWelcomeTemplates)).
		SetMap(map[string]any{
			"guild_id":    guildID,
			"kind":        string(kind),
			"template_id": id,
			"body":        body,
			"created":     time.Now().UTC(),
		})

	if _, err := ins.ExecContext(ctx); err != nil {
		return 0, errutil.With(err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errutil.With(err)
	}

	return id, nil
}

func (db *Database) DeleteTemplate(ctx context.Context, guildID string, kind welcome.Kind, id int) error {
	q := db.builder.
		Delete(string(models.TableWelcomeTemplates)).
		Where(sq.Eq{"guild_id": guildID, "kind": string(kind), "template_id": id})

	result, err := q.ExecContext(ctx)
	if err != nil {
		return errutil.With(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errutil.With(err)
	}
	if affected == 0 {
		return welcome.ErrNotFound
	}

	return nil
}

func (db *Database) ListTemplates(ctx context.Context, guildID string, kind welcome.Kind) ([]welcome.Template, error) {
	q := db.builder.
		Select("template_id", "body").
		From(string(models.TableWelcomeTemplates)).
		Where(sq.Eq{"guild_id": guildID, "kind": string(kind)}).
		OrderBy("template_id ASC")

	rows, err := q.QueryContext(ctx)
	if err != nil {
		return nil, errutil.With(err)
	}
	defer rows.Close()

	var templates []welcome.Template
	for rows.Next() {
		var t welcome.Template
		if err := rows.Scan(&t.ID, &t.Body); err != nil {
			return nil, errutil.With(err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errutil.With(err)
	}

	return templates, nil
}

func (db *Database) PutNotification(ctx context.Context, n welcome.Notification) error {
	q := db.builder.
		Insert(string(models.TableWelcomeNotifications)).
		SetMap(map[string]any{
			"id":         n.ID,
			"guild_id":   n.GuildID,
			"channel_id": n.ChannelID,
			"member_id":  n.MemberID,
			"expires_at": n.ExpiresAt,
			"created":    n.Created.UTC(),
		})

	if _, err := q.ExecContext(ctx); err != nil {
		return errutil.With(err)
	}

	return nil
}

func (db *Database) GetNotification(ctx context.Context, id string) (*welcome.Notification, error) {
	var n welcome.Notification

	q := db.builder.
		Select("id", "guild_id", "channel_id", "member_id", "expires_at", "created").
		From(string(models.TableWelcomeNotifications)).
		Where(sq.Eq{"id": id})

	if err := q.QueryRowContext(ctx).Scan(
		&n.ID,
		&n.GuildID,
		&n.ChannelID,
		&n.MemberID,
		&n.ExpiresAt,
		&n.Created,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, welcome.ErrNotFound
		}
		return nil, errutil.With(err)
	}

	return &n, nil
}

// AddGreeter is the tracker's de-duplication primitive: the conflict
// target makes the membership check and the insert one atomic statement,
// and the row count tells whether the greeter was newly added.
func (db *Database) AddGreeter(ctx context.Context, notificationID, greeterID string) (bool, error) {
	q := db.builder.
		Insert(string(models.TableWelcomeGreeters)).
		SetMap(map[string]any{
			"notification_id": notificationID,
			"greeter_id":      greeterID,
			"created":         time.Now().UTC(),
		}).
		Suffix(`ON CONFLICT (notification_id, greeter_id) DO NOTHING`)

	result, err := q.ExecContext(ctx)
	if err != nil {
		return false, errutil.With(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, errutil.With(err)
	}

	return affected == 1, nil
}

func (db *Database) CountGreeters(ctx context.Context, notificationID string) (int, error) {
	return db.Count(ctx, models.TableWelcomeGreeters, sq.Eq{"notification_id": notificationID})
}

func (db *Database) PurgeNotifications(ctx context.Context, before time.Time) (int, error) {
	q := db.builder.
		Delete(string(models.TableWelcomeNotifications)).
		Where(sq.And{
			sq.NotEq{"expires_at": nil},
			sq.LtOrEq{"expires_at": before.UTC()},
		})

	result, err := q.ExecContext(ctx)
	if err != nil {
		return 0, errutil.With(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errutil.With(err)
	}

	return int(affected), nil
}

func (db *Database) IncrementGreetCount(ctx context.Context, guildID, greeterID string) error {
	q := db.builder.
		Insert(string(models.TableWelcomeGreetCounts)).
		SetMap(map[string]any{
			"guild_id":   guildID,
			"greeter_id": greeterID,
			"count":      1,
			"created":    time.Now().UTC(),
		}).
		Suffix(`ON CONFLICT (guild_id, greeter_id) DO UPDATE SET
			count = welcome_greet_counts.count + 1,
			updated = NOW()`)

	if _, err := q.ExecContext(ctx); err != nil {
		return errutil.With(err)
	}

	return nil
}

func (db *Database) GetGreetCount(ctx context.Context, guildID, greeterID string) (int, error) {
	var count int

	q := db.builder.
		Select("count").
		From(string(models.TableWelcomeGreetCounts)).
		Where(sq.Eq{"guild_id": guildID, "greeter_id": greeterID})

	if err := q.QueryRowContext(ctx).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, errutil.With(err)
	}

	return count, nil
}
