package commands

import (
	"context"
	"fmt"

	dg "github.com/bwmarrin/discordgo"
	"github.com/glotchimo/herald/internal/handlers"
	rp "github.com/glotchimo/herald/internal/response"
	"github.com/glotchimo/herald/internal/utils"
)

// Count reports how many members someone has welcomed in this guild.
type Count struct{}

func (c *Count) Metadata() dg.ApplicationCommand {
	return dg.ApplicationCommand{
		Name:        "welcome-count",
		Description: "Check how many members you (or someone else) have welcomed",
		Options: []*dg.ApplicationCommandOption{
			{
				Type:        dg.ApplicationCommandOptionUser,
				Name:        "member",
				Description: "Member to check (defaults to you)",
			},
		},
	}
}

func (c *Count) Handle(ctx context.Context, dep handlers.Dependencies) error {
	if err := dep.Responder.Defer(dep.Interaction, true); err != nil {
		return err
	}

	invoker := dep.Interaction.Member.User
	target := invoker
	if o, ok := (*dep.Options)["member"]; ok {
		target = o.UserValue(dep.Session)
	}

	count, err := dep.Welcome.GreetCount(ctx, dep.Interaction.GuildID, target.ID)
	if err != nil {
		return err
	}

	who := "You have"
	if target.ID != invoker.ID {
		who = utils.FormatUserMention(target.ID) + " has"
	}

	var content string
	switch count {
	case 0:
		content = fmt.Sprintf("%s not welcomed anyone in this server.", who)
	case 1:
		content = fmt.Sprintf("%s welcomed 1 member in this server.", who)
	default:
		content = fmt.Sprintf("%s welcomed %d members in this server.", who, count)
	}

	return dep.Responder.Send(dep.Interaction, rp.MessageOptions{Content: content, Ephemeral: true})
}
