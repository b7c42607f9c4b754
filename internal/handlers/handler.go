package handlers

import (
	"context"
	"log/slog"

	dg "github.com/bwmarrin/discordgo"
	db "github.com/glotchimo/herald/internal/database"
	md "github.com/glotchimo/herald/internal/models"
	rp "github.com/glotchimo/herald/internal/response"
	wl "github.com/glotchimo/herald/internal/welcome"
)

type Dependencies struct {
	Session     *dg.Session
	Database    *db.Database
	Welcome     *wl.Service
	Responder   *rp.Responder
	Logger      *slog.Logger
	Guild       *md.Guild
	Interaction *dg.InteractionCreate
	Options     *map[string]*dg.ApplicationCommandInteractionDataOption
}

type Handler interface {
	Metadata() dg.ApplicationCommand
	Handle(context.Context, Dependencies) error
}

// BuildMember snapshots the identity data welcome templates can
// reference. Guild name and member count come from session state.
func BuildMember(s *dg.Session, guildID string, m *dg.Member) wl.Member {
	member := wl.Member{
		ID:          m.User.ID,
		Mention:     m.User.Mention(),
		DisplayName: m.User.Username,
		AvatarURL:   m.AvatarURL("128"),
		GuildID:     guildID,
	}

	if m.Nick != "" {
		member.DisplayName = m.Nick
	} else if m.User.GlobalName != "" {
		member.DisplayName = m.User.GlobalName
	}

	if g, err := s.State.Guild(guildID); err == nil {
		member.GuildName = g.Name
		member.MemberCount = g.MemberCount
	}

	return member
}
