package response

import (
	"testing"

	dg "github.com/bwmarrin/discordgo"
)

func TestGreetRow(t *testing.T) {
	cases := []struct {
		name     string
		greeters int
		label    string
	}{
		{"untouched", 0, "👋 Welcome"},
		{"one greeter", 1, "👋 Welcomed (1)"},
		{"several greeters", 12, "👋 Welcomed (12)"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row, ok := GreetRow("n1", tc.greeters).(dg.ActionsRow)
			if !ok {
				t.Fatal("expected an actions row")
			}
			if len(row.Components) != 1 {
				t.Fatalf("expected one component, got %d", len(row.Components))
			}

			button, ok := row.Components[0].(dg.Button)
			if !ok {
				t.Fatal("expected a button")
			}
			if button.Label != tc.label {
				t.Errorf("expected label %q, got %q", tc.label, button.Label)
			}
			if button.CustomID != "greet:n1" {
				t.Errorf("expected custom id greet:n1, got %q", button.CustomID)
			}
			if button.Style != dg.SecondaryButton {
				t.Errorf("expected secondary style, got %v", button.Style)
			}
		})
	}
}

func TestParseGreetCustomID(t *testing.T) {
	cases := []struct {
		customID string
		id       string
		ok       bool
	}{
		{"greet:abc123", "abc123", true},
		{"greet:", "", false},
		{"vote:abc123", "", false},
		{"", "", false},
		{"abc123", "", false},
	}

	for _, tc := range cases {
		id, ok := ParseGreetCustomID(tc.customID)
		if id != tc.id || ok != tc.ok {
			t.Errorf("ParseGreetCustomID(%q) = (%q, %v), expected (%q, %v)", tc.customID, id, ok, tc.id, tc.ok)
		}
	}
}
