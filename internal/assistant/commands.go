package assistant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gutcheck/internal/dialog"
	"gutcheck/internal/insights"
	"gutcheck/internal/logging"
	"gutcheck/internal/memory"
	"gutcheck/internal/store"
	"gutcheck/internal/types"
)

// CommandCategory groups commands in help output.
type CommandCategory int

const (
	CategoryLog    CommandCategory = iota // record an entry with a fixed intent
	CategoryReview                        // look back at what was logged
	CategoryMeta                          // help, undo, cancel
)

// String returns the category heading.
func (c CommandCategory) String() string {
	names := []string{"Logging", "Review", "Other"}
	if int(c) < len(names) {
		return names[c]
	}
	return "Unknown"
}

// CommandInfo describes one slash command.
type CommandInfo struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Category    CommandCategory
	Intent      types.Intent // forced intent for logging commands
}

// CommandRegistry lists every slash command.
var CommandRegistry = []CommandInfo{
	{Name: "/food", Aliases: []string{"/ate", "/meal"}, Description: "Log food", Usage: "/food oatmeal with berries for breakfast", Category: CategoryLog, Intent: types.IntentFood},
	{Name: "/drink", Aliases: []string{"/drank"}, Description: "Log a drink", Usage: "/drink large coffee", Category: CategoryLog, Intent: types.IntentDrink},
	{Name: "/symptom", Aliases: []string{"/s"}, Description: "Log a symptom", Usage: "/symptom bloating 6", Category: CategoryLog, Intent: types.IntentSymptom},
	{Name: "/reflux", Description: "Log reflux or heartburn", Usage: "/reflux 4", Category: CategoryLog, Intent: types.IntentReflux},
	{Name: "/bm", Aliases: []string{"/poop"}, Description: "Log a bowel movement", Usage: "/bm bristol 4", Category: CategoryLog, Intent: types.IntentBM},
	{Name: "/summary", Aliases: []string{"/week"}, Description: "Counts and likely triggers", Usage: "/summary [days]", Category: CategoryReview},
	{Name: "/streak", Description: "Symptom-free days in a row", Usage: "/streak", Category: CategoryReview},
	{Name: "/undo", Description: "Remove the last entry", Usage: "/undo", Category: CategoryMeta},
	{Name: "/cancel", Description: "Drop the open question", Usage: "/cancel", Category: CategoryMeta},
	{Name: "/help", Aliases: []string{"/h", "/?"}, Description: "Show this help", Usage: "/help", Category: CategoryMeta},
}

// FindCommand looks a command up by name or alias.
func FindCommand(name string) *CommandInfo {
	name = strings.ToLower(name)
	for i := range CommandRegistry {
		cmd := &CommandRegistry[i]
		if cmd.Name == name {
			return cmd
		}
		for _, alias := range cmd.Aliases {
			if alias == name {
				return cmd
			}
		}
	}
	return nil
}

// HelpText renders the command reference as markdown.
func HelpText() string {
	var sb strings.Builder
	sb.WriteString("## gutcheck\n\n")
	sb.WriteString("Just tell me what you ate, drank or how you feel, e.g. *\"pizza for dinner\"* or *\"bloated, 6\"*.\n")
	sb.WriteString("Fix a misread with `correction: <food|drink|symptom|reflux|bm> [details]`.\n")
	for _, cat := range []CommandCategory{CategoryLog, CategoryReview, CategoryMeta} {
		fmt.Fprintf(&sb, "\n### %s\n\n| Command | Description | Example |\n|---|---|---|\n", cat)
		for _, cmd := range CommandRegistry {
			if cmd.Category == cat {
				fmt.Fprintf(&sb, "| %s | %s | `%s` |\n", cmd.Name, cmd.Description, cmd.Usage)
			}
		}
	}
	return sb.String()
}

func splitCommand(text string) (name, arg string) {
	name, arg, _ = strings.Cut(strings.TrimSpace(text), " ")
	return name, strings.TrimSpace(arg)
}

// =============================================================================
// COMMAND HANDLING
// =============================================================================

func (a *Assistant) command(ctx context.Context, t *turn, text string) {
	name, arg := splitCommand(text)
	cmd := FindCommand(name)
	if cmd == nil {
		t.say(KindInfo, fmt.Sprintf("I don't know %s. /help lists what I understand.", name))
		return
	}
	logging.AssistantDebug("command %s from user=%s", cmd.Name, t.msg.UserID)

	if cmd.Intent != "" {
		if arg == "" {
			t.say(KindInfo, "Usage: "+cmd.Usage)
			return
		}
		a.understand(ctx, t, arg, cmd.Intent)
		return
	}

	switch cmd.Name {
	case "/help":
		t.say(KindInfo, HelpText())
	case "/undo":
		a.undo(ctx, t)
	case "/cancel":
		for _, ct := range []string{memory.TypeNLUClarification, memory.TypeIntentClarification, memory.TypePostMealCheck, memory.TypePostMealSeverity} {
			_ = a.deps.Memory.ClearPendingOfType(ctx, t.msg.UserID, ct)
		}
		t.say(KindInfo, "Okay, nothing pending.")
	case "/summary":
		days := insights.DefaultWindowDays
		if arg != "" {
			n, err := strconv.Atoi(arg)
			if err != nil || n < 1 || n > 365 {
				t.say(KindInfo, "Usage: "+cmd.Usage)
				return
			}
			days = n
		}
		a.summary(ctx, t, days)
	case "/streak":
		a.streak(ctx, t)
	}
}

func (a *Assistant) undo(ctx context.Context, t *turn) {
	rows, err := a.deps.Store.Query(ctx, t.msg.UserID, store.Filter{Limit: 1})
	if err != nil {
		logging.AssistantError("undo lookup failed for user=%s: %v", t.msg.UserID, err)
		t.say(KindError, "Sorry, I couldn't reach the log just now.")
		return
	}
	if len(rows) == 0 {
		t.say(KindInfo, "There's nothing to undo.")
		return
	}
	row := rows[0]
	if err := a.deps.Store.Undo(ctx, row.Ref); err != nil && !errors.Is(err, store.ErrNotFound) {
		logging.AssistantError("undo of %s failed for user=%s: %v", row.Ref, t.msg.UserID, err)
		t.say(KindError, "Sorry, I couldn't remove that entry.")
		return
	}
	_ = a.deps.Memory.ClearPendingOfType(ctx, t.msg.UserID, memory.TypeLastParse)
	p := types.ParseResult{Intent: row.Intent, Slots: row.Slots}
	logging.Assistant("undid %s for user=%s", row.Ref, t.msg.UserID)
	t.say(KindInfo, "Removed "+dialog.Describe(p)+".")
}

func (a *Assistant) summary(ctx context.Context, t *turn, days int) {
	if a.deps.Insights == nil {
		t.say(KindInfo, "Summaries aren't available.")
		return
	}
	sum, err := a.deps.Insights.Summary(ctx, t.msg.UserID, days)
	if err != nil {
		logging.AssistantError("summary failed for user=%s: %v", t.msg.UserID, err)
		t.say(KindError, "Sorry, I couldn't build your summary.")
		return
	}
	t.say(KindInfo, RenderSummary(sum, days))
}

func (a *Assistant) streak(ctx context.Context, t *turn) {
	if a.deps.Insights == nil {
		t.say(KindInfo, "Streaks aren't available.")
		return
	}
	st, err := a.deps.Insights.Streak(ctx, t.msg.UserID, t.msg.Location)
	if err != nil {
		logging.AssistantError("streak failed for user=%s: %v", t.msg.UserID, err)
		t.say(KindError, "Sorry, I couldn't work out your streak.")
		return
	}
	t.say(KindInfo, RenderStreak(st))
}

// summaryOrder fixes the order intents appear in summaries.
var summaryOrder = []types.Intent{
	types.IntentFood, types.IntentDrink, types.IntentSymptom,
	types.IntentReflux, types.IntentBM, types.IntentCheckin,
}

var summaryNouns = map[types.Intent][2]string{
	types.IntentFood:    {"meal", "meals"},
	types.IntentDrink:   {"drink", "drinks"},
	types.IntentSymptom: {"symptom", "symptoms"},
	types.IntentReflux:  {"reflux episode", "reflux episodes"},
	types.IntentBM:      {"bowel movement", "bowel movements"},
	types.IntentCheckin: {"check-in", "check-ins"},
}

// RenderSummary formats a summary for chat.
func RenderSummary(sum insights.Summary, days int) string {
	var parts []string
	for _, in := range summaryOrder {
		n := sum.Counts[in]
		if n == 0 {
			continue
		}
		noun := summaryNouns[in][1]
		if n == 1 {
			noun = summaryNouns[in][0]
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, noun))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("Nothing logged in the last %d days.", days)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Last %d days: %s.", days, strings.Join(parts, ", "))
	if sum.AvgSeverity > 0 {
		fmt.Fprintf(&sb, " Average severity %.1f/10.", sum.AvgSeverity)
	}
	if len(sum.TopTriggers) > 0 {
		var tr []string
		for _, trig := range sum.TopTriggers {
			s := fmt.Sprintf("%s (%dx", trig.Item, trig.Count)
			if trig.AvgSeverity > 0 {
				s += fmt.Sprintf(", avg %.1f", trig.AvgSeverity)
			}
			tr = append(tr, s+")")
		}
		fmt.Fprintf(&sb, "\nMost often before symptoms: %s.", strings.Join(tr, ", "))
	}
	return sb.String()
}

// RenderStreak formats a streak for chat.
func RenderStreak(st insights.Streak) string {
	switch {
	case !st.HasHistory:
		return "Nothing logged yet, so no streak to report."
	case st.Days == 0:
		return "You logged a symptom today. Tomorrow is a fresh start."
	case st.Days == 1:
		return "1 symptom-free day so far."
	}
	return fmt.Sprintf("%d symptom-free days in a row.", st.Days)
}
