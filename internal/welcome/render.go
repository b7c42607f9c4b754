package welcome

import (
	"strconv"
	"strings"
)

// Context carries the values templates can reference.
type Context struct {
	MemberMention string
	MemberName    string
	GuildName     string
	MemberCount   int
}

func (m Member) Context() Context {
	return Context{
		MemberMention: m.Mention,
		MemberName:    m.DisplayName,
		GuildName:     m.GuildName,
		MemberCount:   m.MemberCount,
	}
}

// Render substitutes recognized placeholders and translates literal \n
// sequences into newlines. Unrecognized or malformed placeholder syntax
// passes through verbatim, so templates written against older
// placeholder sets keep working.
func Render(template string, ctx Context) string {
	r := strings.NewReplacer(
		"{mention}", ctx.MemberMention,
		"{member}", ctx.MemberName,
		"{server}", ctx.GuildName,
		"{count}", strconv.Itoa(ctx.MemberCount),
		`\n`, "\n",
	)
	return r.Replace(template)
}
