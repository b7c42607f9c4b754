package response

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	dg "github.com/bwmarrin/discordgo"
	"github.com/glotchimo/herald/internal/utils"
	"github.com/glotchimo/herald/internal/welcome"
)

const (
	ColorJoin  = 0x57F287
	ColorLeave = 0xED4245

	greetCustomIDPrefix = "greet:"
)

type MessageOptions struct {
	Content    string
	Embeds     []*dg.MessageEmbed
	Files      []*dg.File
	Components []dg.MessageComponent
	Ephemeral  bool
}

type Responder struct {
	s *dg.Session
	l *slog.Logger
}

func NewSessionResponder(s *dg.Session, l *slog.Logger) *Responder {
	return &Responder{
		s: s,
		l: l,
	}
}

func (r *Responder) Defer(i *dg.InteractionCreate, ephemeral bool) error {
	var err error
	if ephemeral {
		err = r.s.InteractionRespond(i.Interaction, &dg.InteractionResponse{
			Type: dg.InteractionResponseDeferredChannelMessageWithSource,
			Data: &dg.InteractionResponseData{
				Flags: dg.MessageFlagsEphemeral,
			},
		})
	} else {
		err = r.s.InteractionRespond(i.Interaction, &dg.InteractionResponse{
			Type: dg.InteractionResponseDeferredChannelMessageWithSource,
		})
	}

	return err
}

func (r *Responder) Send(i *dg.InteractionCreate, opts MessageOptions) error {
	params := &dg.WebhookParams{
		Content:    opts.Content,
		Embeds:     opts.Embeds,
		Files:      opts.Files,
		Components: opts.Components,
	}

	if opts.Ephemeral {
		params.Flags = dg.MessageFlagsEphemeral
	}

	_, err := r.s.FollowupMessageCreate(i.Interaction, true, params)
	return err
}

// Ephemeral answers an interaction directly with a message only the
// invoker can see. Greet button feedback goes through here, undeferred.
func (r *Responder) Ephemeral(i *dg.InteractionCreate, content string) error {
	return r.s.InteractionRespond(i.Interaction, &dg.InteractionResponse{
		Type: dg.InteractionResponseChannelMessageWithSource,
		Data: &dg.InteractionResponseData{
			Content: content,
			Flags:   dg.MessageFlagsEphemeral,
		},
	})
}

// UpdateComponents answers a component interaction by editing the
// message the component lives on, keeping its embeds intact.
func (r *Responder) UpdateComponents(i *dg.InteractionCreate, components []dg.MessageComponent) error {
	return r.s.InteractionRespond(i.Interaction, &dg.InteractionResponse{
		Type: dg.InteractionResponseUpdateMessage,
		Data: &dg.InteractionResponseData{
			Embeds:     i.Message.Embeds,
			Components: components,
		},
	})
}

// PostNotification posts a rendered join/leave notification as an embed,
// attaching a greet button when the notification carries a control.
func (r *Responder) PostNotification(n *welcome.RenderedNotification) (*dg.Message, error) {
	color := ColorJoin
	if n.Kind == welcome.KindLeave {
		color = ColorLeave
	}

	embed := &dg.MessageEmbed{
		Title:       n.Title,
		Description: n.Text,
		Color:       color,
		Author: &dg.MessageEmbedAuthor{
			Name:    n.Member.DisplayName,
			IconURL: n.Member.AvatarURL,
		},
	}

	send := &dg.MessageSend{
		Embeds: []*dg.MessageEmbed{embed},
	}
	if n.Notification != nil {
		send.Components = []dg.MessageComponent{GreetRow(n.Notification.ID, 0)}
	}

	return r.s.ChannelMessageSendComplex(n.ChannelID, send)
}

// DeleteAfter schedules a posted message for deletion. The returned
// timer lets the caller delete early and cancel the pending removal.
func (r *Responder) DeleteAfter(channelID, messageID string, d time.Duration) *time.Timer {
	return time.AfterFunc(d, func() {
		if err := r.s.ChannelMessageDelete(channelID, messageID); err != nil {
			r.l.Warn("error deleting timed notification", "channel", channelID, "message", messageID, "error", err)
		}
	})
}

func (r *Responder) DeleteMessage(channelID, messageID string) error {
	return r.s.ChannelMessageDelete(channelID, messageID)
}

// GreetRow builds the greet control row. The notification id rides in
// the custom id so activations survive process restarts.
func GreetRow(notificationID string, greeters int) dg.MessageComponent {
	label := "👋 Welcome"
	if greeters > 0 {
		label = fmt.Sprintf("👋 Welcomed (%d)", greeters)
	}

	return dg.ActionsRow{
		Components: []dg.MessageComponent{
			dg.Button{
				Label:    label,
				Style:    dg.SecondaryButton,
				CustomID: greetCustomIDPrefix + notificationID,
			},
		},
	}
}

// ParseGreetCustomID extracts the notification id from a greet button's
// custom id, reporting whether the component is a greet control at all.
func ParseGreetCustomID(customID string) (string, bool) {
	id, ok := strings.CutPrefix(customID, greetCustomIDPrefix)
	if !ok || id == "" {
		return "", false
	}

	return id, true
}

func (r *Responder) Fail(i *dg.InteractionCreate, ctx utils.Failure) error {
	r.l.Warn("handler failure", "type", ctx.Type, "message", ctx.Message, "data", ctx.Data)

	var title, description string
	var color int
	switch ctx.Type {
	case utils.ErrInternal:
		error, ok := ctx.Data["error"]
		if !ok {
			error = "An unexpected error occurred. Our team has been notified."
		}

		str, ok := error.(string)
		if !ok {
			str = fmt.Sprintf("%v", error)
		}

		description = fmt.Sprintf("%s\n\nError Details (please share with support):\n```%s```", ctx.Message, str)
		color = 0xFF0000

	case utils.ErrBadInput:
		title = "Invalid Input"
		description = fmt.Sprintf("%s\n\nDouble-check your input and try again.", ctx.Message)
		color = 0xFFA500

	case utils.ErrNotAllowed:
		title = "Permission Denied"
		description = fmt.Sprintf("%s\n\nIf this doesn't seem right, let an admin know.", ctx.Message)
		color = 0xFF0000

	case utils.ErrNotFound:
		title = "Not Found"
		description = ctx.Message
		color = 0xFFA500

	case utils.ErrTooLarge:
		title = "Response Too Large"
		description = "The output exceeds Discord's message size limit. Try narrowing down your request or breaking it into smaller parts."
		color = 0xFFEF00
	}

	embed := &dg.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
	}

	_, err := r.s.FollowupMessageCreate(i.Interaction, true, &dg.WebhookParams{
		Embeds: []*dg.MessageEmbed{embed},
	})
	return err
}
