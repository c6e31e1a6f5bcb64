package prompt

import (
	"fmt"
	"sort"
	"strings"

	"discussion-agent/internal/capability"
	"discussion-agent/internal/discussion"
)

const (
	moderatorGuidance   = "Guide the conversation: keep it on topic, summarize when useful and invite quieter participants to contribute."
	participantGuidance = "Contribute your own perspective and respond directly to the points other participants raise."
)

// RolePrompt describes the agent's persona and the other members of the discussion.
func RolePrompt(agent discussion.AgentProfile, agents []discussion.AgentProfile) string {
	var b strings.Builder

	if agent.IsModerator() {
		fmt.Fprintf(&b, "You are %s, the moderator of this discussion.\n%s", agent.DisplayName(), moderatorGuidance)
	} else {
		fmt.Fprintf(&b, "You are %s, a participant in this discussion.\n%s", agent.DisplayName(), participantGuidance)
	}

	if p := strings.TrimSpace(agent.Personality); p != "" {
		b.WriteString("\n\n")
		b.WriteString(p)
	}
	if len(agent.Expertise) > 0 {
		fmt.Fprintf(&b, "\nYour areas of expertise: %s.", strings.Join(agent.Expertise, ", "))
	}
	if agent.Bias != "" {
		fmt.Fprintf(&b, "\nYour perspective: %s", agent.Bias)
	}
	if agent.ResponseStyle != "" {
		fmt.Fprintf(&b, "\nResponse style: %s", agent.ResponseStyle)
	}

	others := make([]string, 0, len(agents))
	for _, other := range agents {
		if other.ID == agent.ID {
			continue
		}
		others = append(others, fmt.Sprintf("- %s (%s)", other.DisplayName(), other.Role))
	}
	if len(others) > 0 {
		b.WriteString("\n\nOther participants:\n")
		b.WriteString(strings.Join(others, "\n"))
	}

	return b.String()
}

// CapabilityPrompt lists the actions available to role and explains the invocation syntax.
// It returns "" when nothing is available.
func CapabilityPrompt(descs []capability.Descriptor, role discussion.AgentRole) string {
	lines := make([]string, 0, len(descs))
	for _, d := range descs {
		if !d.AvailableTo(role) {
			continue
		}
		line := fmt.Sprintf("- %s: %s", d.Name, d.Description)
		if len(d.Parameters) > 0 {
			params := make([]string, 0, len(d.Parameters))
			for name, desc := range d.Parameters {
				params = append(params, fmt.Sprintf("%s (%s)", name, desc))
			}
			sort.Strings(params)
			line += "\n  params: " + strings.Join(params, "; ")
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return ""
	}

	return "You can use the following actions. To invoke one, add a block to your reply:\n" +
		`:::action {"name": "<action>", "params": {}} :::` + "\n\n" +
		strings.Join(lines, "\n")
}

// FormatActionResults renders capability results for inclusion in a prompt.
func FormatActionResults(results []discussion.ActionResult) string {
	if len(results) == 0 {
		return "Action results: none"
	}

	var b strings.Builder
	b.WriteString("Action results:")
	for _, res := range results {
		if res.Status == discussion.ActionError {
			fmt.Fprintf(&b, "\n[%s] error: %s", res.Capability, res.Error)
			continue
		}
		fmt.Fprintf(&b, "\n[%s] %s", res.Capability, res.Status)
		if res.Output != "" {
			b.WriteString("\n")
			b.WriteString(res.Output)
		}
	}
	return b.String()
}
