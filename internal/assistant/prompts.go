package assistant

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pathlight/pathlight/internal/memory"
)

const (
	careerSystem = "You are a pragmatic career coach. Ground every suggestion in the " +
		"user's stated goals, skills and history below. Be specific and brief."
	financeSystem = "You are a level-headed personal finance advisor. Use the spending " +
		"summary below. Never recommend specific investment products."
	motivationSystem = "You are an encouraging accountability partner. Reference the " +
		"user's actual habits and streaks below. Two or three sentences, warm but direct."
)

// FormatContext renders a context bundle as the prompt preamble. Empty
// sections are omitted so a degraded bundle still yields a usable prompt.
func FormatContext(b memory.ContextBundle) string {
	var sb strings.Builder
	sb.WriteString("Known context about the user:\n")

	if len(b.Preferences) > 0 {
		keys := make([]string, 0, len(b.Preferences))
		for k := range b.Preferences {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("Preferences:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %v\n", k, b.Preferences[k])
		}
	}

	if b.Career != nil {
		if len(b.Career.ActiveGoals) > 0 {
			sb.WriteString("Active goals:\n")
			for _, g := range b.Career.ActiveGoals {
				sb.WriteString("- " + g + "\n")
			}
		}
		if len(b.Career.Skills) > 0 {
			sb.WriteString("Skills in progress:\n")
			for _, s := range b.Career.Skills {
				sb.WriteString("- " + s + "\n")
			}
		}
	}

	if len(b.Habits) > 0 {
		sb.WriteString("Active habits:\n")
		for _, h := range b.Habits {
			sb.WriteString("- " + h + "\n")
		}
	}

	if b.Finance != nil && len(b.Finance.MonthSpend) > 0 {
		cats := make([]string, 0, len(b.Finance.MonthSpend))
		for c := range b.Finance.MonthSpend {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		sb.WriteString("Spending this month:\n")
		for _, c := range cats {
			fmt.Fprintf(&sb, "- %s: %.2f\n", c, b.Finance.MonthSpend[c])
		}
	}

	if len(b.RecentMemories) > 0 {
		sb.WriteString("Relevant memories:\n")
		for _, m := range b.RecentMemories {
			sb.WriteString("- " + m.Content + "\n")
		}
	}

	return sb.String()
}
