package welcome

import "testing"

func testContext() Context {
	return Context{
		MemberMention: "<@111>",
		MemberName:    "Newbie",
		GuildName:     "Testers",
		MemberCount:   42,
	}
}

func TestRender_SubstitutesPlaceholders(t *testing.T) {
	got := Render("Hi {mention}, welcome to {server}! You are member #{count}, {member}.", testContext())

	want := "Hi <@111>, welcome to Testers! You are member #42, Newbie."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestRender_UnknownPlaceholderLeftVerbatim(t *testing.T) {
	got := Render("Hello {member}, enjoy your {rank}!", testContext())

	want := "Hello Newbie, enjoy your {rank}!"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestRender_MalformedSyntaxIsLiteral(t *testing.T) {
	cases := []struct {
		name     string
		template string
		want     string
	}{
		{"unterminated", "welcome {mention", "welcome {mention"},
		{"empty braces", "hey {} there", "hey {} there"},
		{"stray close", "oops} {server}", "oops} Testers"},
		{"no placeholders", "plain text", "plain text"},
		{"empty template", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Render(tc.template, testContext()); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestRender_TranslatesNewlineEscapes(t *testing.T) {
	got := Render(`Welcome!\nGlad you made it, {member}.`, testContext())

	want := "Welcome!\nGlad you made it, Newbie."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
