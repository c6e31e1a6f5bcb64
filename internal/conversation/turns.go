package conversation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"discussion-agent/internal/discussion"
)

// SelectSpeakers decides which agents reply to content, in order. Mentioned agents
// (@id or @name, case-insensitive) reply in mention order; without mentions moderators
// speak first, then participants, each in roster order. limit > 0 caps the result.
func SelectSpeakers(agents []discussion.AgentProfile, content string, limit int) []discussion.AgentProfile {
	speakers := mentioned(agents, content)
	if len(speakers) == 0 {
		for _, agent := range agents {
			if agent.IsModerator() {
				speakers = append(speakers, agent)
			}
		}
		for _, agent := range agents {
			if !agent.IsModerator() {
				speakers = append(speakers, agent)
			}
		}
	}

	if limit > 0 && len(speakers) > limit {
		speakers = speakers[:limit]
	}
	return speakers
}

// mentioned scans content for "@" followed by an agent id or display name. Names may contain
// spaces, so handles come from the roster rather than a token pattern. The longest handle
// wins ("@Ann Lee" over "@Ann") and must end at a word boundary.
func mentioned(agents []discussion.AgentProfile, content string) []discussion.AgentProfile {
	var out []discussion.AgentProfile
	seen := map[string]bool{}
	for i := 0; i < len(content); i++ {
		if content[i] != '@' {
			continue
		}
		rest := content[i+1:]
		best, bestLen := -1, 0
		for idx, agent := range agents {
			for _, handle := range []string{agent.ID, agent.Name} {
				if n := matchHandle(rest, handle); n > bestLen {
					best, bestLen = idx, n
				}
			}
		}
		if best < 0 {
			continue
		}
		i += bestLen
		if agent := agents[best]; !seen[agent.ID] {
			seen[agent.ID] = true
			out = append(out, agent)
		}
	}
	return out
}

// matchHandle reports how many bytes of text spell handle (case-insensitive) followed by a
// word boundary, or 0.
func matchHandle(text, handle string) int {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return 0
	}
	end := 0
	for range utf8.RuneCountInString(handle) {
		if end >= len(text) {
			return 0
		}
		_, size := utf8.DecodeRuneInString(text[end:])
		end += size
	}
	if !strings.EqualFold(text[:end], handle) {
		return 0
	}
	if next, _ := utf8.DecodeRuneInString(text[end:]); end < len(text) && isHandleRune(next) {
		return 0
	}
	return end
}

func isHandleRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-'
}
