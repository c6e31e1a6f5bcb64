package capability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"discussion-agent/internal/discussion"
)

// Builtins returns the capabilities every deployment ships with.
func Builtins() []Capability {
	return []Capability{currentTime{}, listParticipants{}, discussionStats{}}
}

type currentTime struct{}

func (currentTime) Descriptor() Descriptor {
	return Descriptor{
		Name:        "current_time",
		Description: "Returns the current date and time.",
		Parameters:  map[string]string{"timezone": "optional IANA zone name, defaults to UTC"},
	}
}

func (currentTime) Execute(_ context.Context, actx ActionContext, params map[string]any) (string, error) {
	now := actx.Now
	if now.IsZero() {
		now = time.Now()
	}
	loc := time.UTC
	if zone, ok := params["timezone"].(string); ok && zone != "" {
		l, err := time.LoadLocation(zone)
		if err != nil {
			return "", fmt.Errorf("unknown timezone %q", zone)
		}
		loc = l
	}
	return now.In(loc).Format(time.RFC3339), nil
}

type listParticipants struct{}

func (listParticipants) Descriptor() Descriptor {
	return Descriptor{
		Name:        "list_participants",
		Description: "Lists every agent in the discussion with its role.",
		Roles:       []discussion.AgentRole{discussion.RoleModerator},
	}
}

func (listParticipants) Execute(_ context.Context, actx ActionContext, _ map[string]any) (string, error) {
	lines := make([]string, 0, len(actx.Agents))
	for _, agent := range actx.Agents {
		lines = append(lines, fmt.Sprintf("%s (%s)", agent.DisplayName(), agent.Role))
	}
	return strings.Join(lines, "\n"), nil
}

type discussionStats struct{}

func (discussionStats) Descriptor() Descriptor {
	return Descriptor{
		Name:        "discussion_stats",
		Description: "Counts the messages posted so far, per author.",
	}
}

func (discussionStats) Execute(_ context.Context, actx ActionContext, _ map[string]any) (string, error) {
	names := make(map[string]string, len(actx.Agents))
	for _, agent := range actx.Agents {
		names[agent.ID] = agent.DisplayName()
	}

	counts := map[string]int{}
	for _, msg := range actx.History {
		if msg.IsActionResult() {
			continue
		}
		author := msg.AgentID
		if name, ok := names[author]; ok {
			author = name
		}
		counts[author]++
	}

	authors := make([]string, 0, len(counts))
	for author := range counts {
		authors = append(authors, author)
	}
	sort.Strings(authors)

	var b strings.Builder
	fmt.Fprintf(&b, "total messages: %d", len(actx.History))
	for _, author := range authors {
		fmt.Fprintf(&b, "\n%s: %d", author, counts[author])
	}
	return b.String(), nil
}
