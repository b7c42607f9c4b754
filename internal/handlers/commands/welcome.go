package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	dg "github.com/bwmarrin/discordgo"
	"github.com/glotchimo/herald/internal/handlers"
	rp "github.com/glotchimo/herald/internal/response"
	"github.com/glotchimo/herald/internal/utils"
	wl "github.com/glotchimo/herald/internal/welcome"
)

// Welcome manages per-guild join/leave notifications: configuration,
// the template collection, and test posts.
type Welcome struct{}

var manageServer int64 = dg.PermissionManageServer

func (w *Welcome) Metadata() dg.ApplicationCommand {
	return dg.ApplicationCommand{
		Name:                     "welcome",
		Description:              "Manage join and leave notifications",
		DefaultMemberPermissions: &manageServer,
		Options: []*dg.ApplicationCommandOption{
			{
				Type:        dg.ApplicationCommandOptionSubCommandGroup,
				Name:        string(wl.KindJoin),
				Description: "Manage join notifications",
				Options:     groupOptions("join"),
			},
			{
				Type:        dg.ApplicationCommandOptionSubCommandGroup,
				Name:        string(wl.KindLeave),
				Description: "Manage leave notifications",
				Options:     groupOptions("leave"),
			},
		},
	}
}

func groupOptions(kind string) []*dg.ApplicationCommandOption {
	var minDuration float64 = 0

	return []*dg.ApplicationCommandOption{
		{
			Type:        dg.ApplicationCommandOptionSubCommand,
			Name:        "settings",
			Description: fmt.Sprintf("Show or change %s notification settings", kind),
			Options: []*dg.ApplicationCommandOption{
				{
					Type:         dg.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "Channel to post notifications in",
					ChannelTypes: []dg.ChannelType{dg.ChannelTypeGuildText},
				},
				{
					Type:        dg.ApplicationCommandOptionString,
					Name:        "title",
					Description: "Embed title for notifications",
				},
				{
					Type:        dg.ApplicationCommandOptionBoolean,
					Name:        "enabled",
					Description: "Whether notifications are posted",
				},
				{
					Type:        dg.ApplicationCommandOptionInteger,
					Name:        "duration",
					Description: "Seconds before the notification is deleted (0 keeps it forever)",
					MinValue:    &minDuration,
				},
			},
		},
		{
			Type:        dg.ApplicationCommandOptionSubCommand,
			Name:        "add-message",
			Description: fmt.Sprintf("Add a %s message template", kind),
			Options: []*dg.ApplicationCommandOption{
				{
					Type:        dg.ApplicationCommandOptionString,
					Name:        "message",
					Description: "Template body; {mention}, {member}, {server}, and {count} are substituted",
					Required:    true,
				},
			},
		},
		{
			Type:        dg.ApplicationCommandOptionSubCommand,
			Name:        "remove-message",
			Description: fmt.Sprintf("Remove a %s message template by id", kind),
			Options: []*dg.ApplicationCommandOption{
				{
					Type:        dg.ApplicationCommandOptionInteger,
					Name:        "id",
					Description: "Template id from list-message",
					Required:    true,
				},
			},
		},
		{
			Type:        dg.ApplicationCommandOptionSubCommand,
			Name:        "list-message",
			Description: fmt.Sprintf("List all %s message templates", kind),
		},
		{
			Type:        dg.ApplicationCommandOptionSubCommand,
			Name:        "test",
			Description: fmt.Sprintf("Post a test %s notification", kind),
			Options: []*dg.ApplicationCommandOption{
				{
					Type:        dg.ApplicationCommandOptionUser,
					Name:        "member",
					Description: "Member to run the notification for (defaults to you)",
				},
			},
		},
	}
}

func (w *Welcome) Handle(ctx context.Context, dep handlers.Dependencies) error {
	if err := dep.Responder.Defer(dep.Interaction, true); err != nil {
		return err
	}

	data := dep.Interaction.ApplicationCommandData()
	group := data.Options[0]

	kind, err := wl.ParseKind(group.Name)
	if err != nil {
		return dep.Responder.Fail(dep.Interaction, utils.Failure{
			Type:    utils.ErrBadInput,
			Message: err.Error(),
		})
	}

	sub := group.Options[0]
	opts := make(map[string]*dg.ApplicationCommandInteractionDataOption, len(sub.Options))
	for _, o := range sub.Options {
		opts[o.Name] = o
	}

	switch sub.Name {
	case "settings":
		return w.settings(ctx, dep, kind, opts)
	case "add-message":
		return w.addMessage(ctx, dep, kind, opts)
	case "remove-message":
		return w.removeMessage(ctx, dep, kind, opts)
	case "list-message":
		return w.listMessages(ctx, dep, kind)
	case "test":
		return w.test(ctx, dep, kind, opts)
	default:
		return dep.Responder.Fail(dep.Interaction, utils.Failure{
			Type:    utils.ErrNotFound,
			Message: "No such subcommand",
		})
	}
}

func (w *Welcome) settings(ctx context.Context, dep handlers.Dependencies, kind wl.Kind, opts map[string]*dg.ApplicationCommandInteractionDataOption) error {
	guildID := dep.Interaction.GuildID

	// No options means readback.
	if len(opts) == 0 {
		s, err := dep.Welcome.Settings(ctx, guildID, kind)
		if err != nil {
			return err
		}

		channel := "not set"
		if s.ChannelID != "" {
			channel = utils.FormatChannelMention(s.ChannelID)
		}
		duration := "keep forever"
		if s.GreetDuration > 0 {
			duration = utils.FormatDuration(s.GreetDuration)
		}
		title := s.Title
		if title == "" {
			title = wl.DefaultTitle(kind)
		}

		embed := dg.MessageEmbed{
			Title: fmt.Sprintf("Current %s settings", kind),
			Description: fmt.Sprintf(
				"Channel: %s\nTitle: %s\nEnabled: %t\nDuration: %s",
				channel, title, s.Enabled, duration,
			),
		}

		return dep.Responder.Send(dep.Interaction, rp.MessageOptions{Embeds: []*dg.MessageEmbed{&embed}, Ephemeral: true})
	}

	var patch wl.SettingsPatch
	if o, ok := opts["channel"]; ok {
		id := o.ChannelValue(dep.Session).ID
		patch.ChannelID = &id
	}
	if o, ok := opts["title"]; ok {
		title := o.StringValue()
		patch.Title = &title
	}
	if o, ok := opts["enabled"]; ok {
		enabled := o.BoolValue()
		patch.Enabled = &enabled
	}
	if o, ok := opts["duration"]; ok {
		d := time.Duration(o.IntValue()) * time.Second
		patch.GreetDuration = &d
	}

	if _, err := dep.Welcome.UpdateSettings(ctx, guildID, kind, patch); err != nil {
		var verr wl.ValidationError
		if errors.As(err, &verr) {
			return dep.Responder.Fail(dep.Interaction, utils.Failure{
				Type:    utils.ErrBadInput,
				Message: verr.Reason,
			})
		}
		return err
	}

	embed := dg.MessageEmbed{
		Title: fmt.Sprintf("Updated %s settings", kind),
	}

	return dep.Responder.Send(dep.Interaction, rp.MessageOptions{Embeds: []*dg.MessageEmbed{&embed}, Ephemeral: true})
}

func (w *Welcome) addMessage(ctx context.Context, dep handlers.Dependencies, kind wl.Kind, opts map[string]*dg.ApplicationCommandInteractionDataOption) error {
	body := opts["message"].StringValue()

	id, err := dep.Welcome.AddTemplate(ctx, dep.Interaction.GuildID, kind, body)
	if err != nil {
		var verr wl.ValidationError
		if errors.As(err, &verr) {
			return dep.Responder.Fail(dep.Interaction, utils.Failure{
				Type:    utils.ErrBadInput,
				Message: verr.Reason,
			})
		}
		return err
	}

	embed := dg.MessageEmbed{
		Title:       fmt.Sprintf("Added %s message %d", kind, id),
		Description: body,
	}

	return dep.Responder.Send(dep.Interaction, rp.MessageOptions{Embeds: []*dg.MessageEmbed{&embed}, Ephemeral: true})
}

func (w *Welcome) removeMessage(ctx context.Context, dep handlers.Dependencies, kind wl.Kind, opts map[string]*dg.ApplicationCommandInteractionDataOption) error {
	id := int(opts["id"].IntValue())

	if err := dep.Welcome.RemoveTemplate(ctx, dep.Interaction.GuildID, kind, id); err != nil {
		if errors.Is(err, wl.ErrNotFound) {
			return dep.Responder.Fail(dep.Interaction, utils.Failure{
				Type:    utils.ErrNotFound,
				Message: fmt.Sprintf("No %s message with id %d", kind, id),
			})
		}
		return err
	}

	embed := dg.MessageEmbed{
		Title: fmt.Sprintf("Removed %s message %d", kind, id),
	}

	return dep.Responder.Send(dep.Interaction, rp.MessageOptions{Embeds: []*dg.MessageEmbed{&embed}, Ephemeral: true})
}

func (w *Welcome) listMessages(ctx context.Context, dep handlers.Dependencies, kind wl.Kind) error {
	templates, err := dep.Welcome.ListTemplates(ctx, dep.Interaction.GuildID, kind)
	if err != nil {
		return err
	}

	if len(templates) == 0 {
		return dep.Responder.Send(dep.Interaction, rp.MessageOptions{
			Content:   fmt.Sprintf("No %s messages configured; the built-in default is used.", kind),
			Ephemeral: true,
		})
	}

	var b strings.Builder
	for _, t := range templates {
		fmt.Fprintf(&b, "%d: %s\n", t.ID, t.Body)
	}

	embed := dg.MessageEmbed{
		Title:       fmt.Sprintf("Configured %s messages", kind),
		Description: b.String(),
	}

	return dep.Responder.Send(dep.Interaction, rp.MessageOptions{Embeds: []*dg.MessageEmbed{&embed}, Ephemeral: true})
}

func (w *Welcome) test(ctx context.Context, dep handlers.Dependencies, kind wl.Kind, opts map[string]*dg.ApplicationCommandInteractionDataOption) error {
	guildID := dep.Interaction.GuildID

	target := dep.Interaction.Member
	if o, ok := opts["member"]; ok {
		user := o.UserValue(dep.Session)
		m, err := dep.Session.State.Member(guildID, user.ID)
		if err != nil {
			m, err = dep.Session.GuildMember(guildID, user.ID)
			if err != nil {
				return dep.Responder.Fail(dep.Interaction, utils.Failure{
					Type:    utils.ErrNotFound,
					Message: "That member could not be found in this server",
				})
			}
		}
		target = m
	}

	member := handlers.BuildMember(dep.Session, guildID, target)

	var rendered *wl.RenderedNotification
	var err error
	if kind == wl.KindJoin {
		rendered, err = dep.Welcome.OnMemberJoin(ctx, member)
	} else {
		rendered, err = dep.Welcome.OnMemberLeave(ctx, member)
	}
	if err != nil {
		return err
	}

	if rendered == nil {
		return dep.Responder.Send(dep.Interaction, rp.MessageOptions{
			Content:   fmt.Sprintf("Notifications for %s are disabled or have no channel; nothing posted.", kind),
			Ephemeral: true,
		})
	}

	msg, err := dep.Responder.PostNotification(rendered)
	if err != nil {
		return err
	}

	if rendered.DeleteAfter > 0 {
		dep.Responder.DeleteAfter(msg.ChannelID, msg.ID, rendered.DeleteAfter)
	}

	return dep.Responder.Send(dep.Interaction, rp.MessageOptions{
		Content:   fmt.Sprintf("Posted a test %s notification for %s in %s.", kind, member.Mention, utils.FormatChannelMention(rendered.ChannelID)),
		Ephemeral: true,
	})
}
