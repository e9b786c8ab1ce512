package roles

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modwarden/pkg/discord/platform"
	"github.com/small-frappuccino/modwarden/pkg/files"
	"github.com/small-frappuccino/modwarden/pkg/theme"
)

// CheckButtonID is the custom ID of the self-service panel button.
const CheckButtonID = "check_roles_button"

// ChangeEmbed is posted to the role log channel after automatic changes.
func ChangeEmbed(member *discordgo.Member, added, removed []string, at time.Time) *discordgo.MessageEmbed {
	color := theme.Warning()
	if len(added) > 0 {
		color = theme.Success()
	}
	label := platform.DisplayName(member.User)
	if member.Nick != "" {
		label = member.Nick
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "User", Value: fmt.Sprintf("<@%s> (%s)", member.User.ID, label)},
	}
	if len(added) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "✅ Roles Added", Value: bullets(added), Inline: true})
	}
	if len(removed) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "❌ Roles Removed", Value: bullets(removed), Inline: true})
	}
	return &discordgo.MessageEmbed{
		Title:     "🤖 Automatic Role Update",
		Color:     color,
		Fields:    fields,
		Footer:    &discordgo.MessageEmbedFooter{Text: "User ID: " + member.User.ID},
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}

// PanelMessage is the self-service panel with its "Check My Roles" button.
func PanelMessage(combos []files.RoleCombination, cooldown time.Duration) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{
		Title: "🎭 Self-Service Role Check",
		Description: "**Having trouble with automatic roles?** Use the button below to check and update your roles.\n\n" +
			"This is helpful if you just got new roles, think you are missing one, or the bot was offline when your roles changed.",
		Color: theme.Primary(),
	}
	active := activeOnly(combos)
	if len(active) > 0 {
		var lines []string
		for i, c := range active {
			if i == 3 {
				lines = append(lines, fmt.Sprintf("*...and %d more combinations*", len(active)-3))
				break
			}
			lines = append(lines, fmt.Sprintf("• `%s` → **%s**", strings.Join(c.RequiredRoles, " + "), c.TargetRole))
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "🎯 Available Auto-Roles", Value: strings.Join(lines, "\n")})
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  "📝 How to Use",
		Value: fmt.Sprintf("Click **🔄 Check My Roles**. If you qualify for an automatic role you get it immediately.\n*There is a %s cooldown between checks.*", cooldown),
	})
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "This panel stays active"}

	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "🔄 Check My Roles",
					Style:    discordgo.PrimaryButton,
					CustomID: CheckButtonID,
				},
			}},
		},
	}
}

// CombinationsEmbed lists active and disabled combinations.
func CombinationsEmbed(enabled bool, combos []files.RoleCombination) *discordgo.MessageEmbed {
	status, color := "❌ No", theme.Error()
	if enabled {
		status, color = "✅ Yes", theme.Success()
	}
	embed := &discordgo.MessageEmbed{
		Title:       "🎭 Role Combinations Configuration",
		Description: "Auto-roles enabled: " + status,
		Color:       color,
	}
	var active, disabled []string
	for _, c := range combos {
		line := fmt.Sprintf("• **%s**: `%s` → `%s`", c.Name, strings.Join(c.RequiredRoles, " + "), c.TargetRole)
		if !c.Enabled {
			disabled = append(disabled, line)
			continue
		}
		if c.RemoveOnLoss {
			line += " (auto-remove)"
		} else {
			line += " (keep on loss)"
		}
		active = append(active, line)
	}
	if len(active) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "✅ Active Combinations", Value: strings.Join(active, "\n")})
	}
	if len(disabled) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "❌ Disabled Combinations", Value: strings.Join(disabled, "\n")})
	}
	if len(combos) == 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "No Combinations", Value: "No role combinations are configured."})
	}
	return embed
}

// SweepEmbed reports the outcome of a guild-wide check.
func SweepEmbed(rep SweepReport) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "✅ Role Check Complete",
		Color: theme.Success(),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Members Processed", Value: fmt.Sprint(rep.Processed), Inline: true},
			{Name: "Members Updated", Value: fmt.Sprint(rep.Updated), Inline: true},
			{Name: "Errors", Value: fmt.Sprint(rep.Errors), Inline: true},
		},
	}
}

// CheckResultEmbed answers a button press.
func CheckResultEmbed(res Result, lines []string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{Title: "🎭 Role Check Results", Color: theme.Info()}
	switch {
	case len(res.Added) > 0:
		embed.Color = theme.Success()
		embed.Description = "✅ **Great news!** You've been assigned: " + strings.Join(res.Added, ", ")
	case res.Errors > 0:
		embed.Color = theme.Warning()
		embed.Description = "⚠️ Some roles could not be updated. Please contact a moderator."
	default:
		embed.Description = "✅ **All good!** Your roles are already up to date."
	}
	if len(lines) > 0 {
		embed.Fields = []*discordgo.MessageEmbedField{{Name: "🎯 Available Role Combinations", Value: strings.Join(lines, "\n")}}
	}
	return embed
}

func activeOnly(combos []files.RoleCombination) []files.RoleCombination {
	var out []files.RoleCombination
	for _, c := range combos {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out
}

func bullets(items []string) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "• " + it
	}
	return strings.Join(lines, "\n")
}
