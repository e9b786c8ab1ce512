package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modwarden/pkg/discord/commands/core"
	"github.com/small-frappuccino/modwarden/pkg/moderation"
	"github.com/small-frappuccino/modwarden/pkg/task"
	"github.com/small-frappuccino/modwarden/pkg/theme"
)

// CaseCounter aggregates the case ledger.
type CaseCounter interface {
	CountCasesByKind(ctx context.Context, guildID string) (map[string]int, error)
}

// TaskStats reports task router state.
type TaskStats interface {
	Stats() task.Stats
}

// Commands serves the /modstats group.
type Commands struct {
	cases CaseCounter
	tasks TaskStats
}

func NewCommands(cases CaseCounter, tasks TaskStats) *Commands {
	return &Commands{cases: cases, tasks: tasks}
}

// RegisterCommands registers slash commands under the /modstats group.
func (c *Commands) RegisterCommands(router *core.CommandRouter) {
	group := core.NewGroupCommand("modstats", "Moderation statistics", router.PermissionChecker())
	if c.cases != nil {
		group.AddSubCommand(core.NewSimpleCommand("cases", "Count moderation cases in this server by action", nil, c.handleCases, true, true))
	}
	if c.tasks != nil {
		group.AddSubCommand(core.NewSimpleCommand("queue", "Show background task queue state", nil, c.handleQueue, false, true))
	}
	router.RegisterCommand(group)
}

func (c *Commands) handleCases(ctx *core.Context) error {
	counts, err := c.cases.CountCasesByKind(ctx.Ctx, ctx.GuildID)
	if err != nil {
		return fmt.Errorf("count cases in %s: %w", ctx.GuildID, err)
	}
	return ctx.Responder.Embed(ctx.Interaction, CasesEmbed(counts), nil, true)
}

func (c *Commands) handleQueue(ctx *core.Context) error {
	st := c.tasks.Stats()
	embed := &discordgo.MessageEmbed{
		Title: "Task queue",
		Color: theme.Info(),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Groups", Value: fmt.Sprintf("%d", st.GroupsCount), Inline: true},
			{Name: "In flight", Value: fmt.Sprintf("%d", st.InflightCount), Inline: true},
			{Name: "Handlers", Value: fmt.Sprintf("%d", st.RegisteredTypes), Inline: true},
		},
	}
	if st.RouterClosed {
		embed.Color = theme.Warning()
		embed.Description = "Router is closed."
	}
	return ctx.Responder.Embed(ctx.Interaction, embed, nil, true)
}

// CasesEmbed lists case counts, largest first, with a total.
func CasesEmbed(counts map[string]int) *discordgo.MessageEmbed {
	if len(counts) == 0 {
		return &discordgo.MessageEmbed{
			Title:       "Moderation cases",
			Description: "No cases recorded yet.",
			Color:       theme.Muted(),
		}
	}

	kinds := make([]string, 0, len(counts))
	total := 0
	for k, n := range counts {
		kinds = append(kinds, k)
		total += n
	}
	sort.Slice(kinds, func(i, j int) bool {
		if counts[kinds[i]] != counts[kinds[j]] {
			return counts[kinds[i]] > counts[kinds[j]]
		}
		return kinds[i] < kinds[j]
	})

	var b strings.Builder
	for _, k := range kinds {
		label := k
		if kind, ok := moderation.ParseKind(k); ok {
			label = kind.Title()
		}
		fmt.Fprintf(&b, "**%s**: %d\n", label, counts[k])
	}
	return &discordgo.MessageEmbed{
		Title:       "Moderation cases",
		Description: strings.TrimSpace(b.String()),
		Color:       theme.Info(),
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%d total", total)},
	}
}
