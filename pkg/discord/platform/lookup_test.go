package platform

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestRoleNamesAndHasAnyRole(t *testing.T) {
	roles := []*discordgo.Role{{ID: "1", Name: "Server Mod"}, {ID: "2", Name: "Member"}, nil}
	names := RoleNames(roles, []string{"2", "1", "404"})
	if len(names) != 2 || names[0] != "Member" || names[1] != "Server Mod" {
		t.Fatalf("unexpected names: %v", names)
	}
	if !HasAnyRole(names, []string{"server mod"}) {
		t.Fatalf("role match must ignore case")
	}
	if HasAnyRole(names, []string{"Administrator"}) {
		t.Fatalf("unexpected match")
	}
}

func TestDisplayNameAndJumpLink(t *testing.T) {
	if DisplayName(&discordgo.User{Username: "bob", GlobalName: "Bobby"}) != "Bobby" {
		t.Fatalf("global name should win")
	}
	if DisplayName(nil) != "unknown" {
		t.Fatalf("nil user label")
	}
	if got := JumpLink("g", "c", "m"); got != "https://discord.com/channels/g/c/m" {
		t.Fatalf("unexpected link %q", got)
	}
	if got := JumpLink("", "c", "m"); got != "https://discord.com/channels/@me/c/m" {
		t.Fatalf("unexpected dm link %q", got)
	}
}

func TestTruncateReason(t *testing.T) {
	long := make([]rune, 600)
	for i := range long {
		long[i] = 'é'
	}
	if got := []rune(truncateReason(string(long))); len(got) != 512 {
		t.Fatalf("expected 512 runes, got %d", len(got))
	}
}
