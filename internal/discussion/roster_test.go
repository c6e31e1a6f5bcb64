package discussion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const agentsYAML = `
agents:
  - id: mod
    name: Mira
    role: moderator
    personality: Keep the discussion focused.
    can_use_actions: true
  - id: eco
    name: Eli
    expertise: [economics, policy]
    conversation:
      context_messages: 4
      response_delay: 1500ms
`

func TestParseRoster(t *testing.T) {
	roster, err := ParseRoster([]byte(agentsYAML))
	require.NoError(t, err)

	agents := roster.Agents()
	require.Len(t, agents, 2)
	assert.Equal(t, RoleModerator, agents[0].Role)
	assert.Equal(t, RoleParticipant, agents[1].Role, "role defaults to participant")
	assert.Equal(t, []string{"economics", "policy"}, agents[1].Expertise)
	assert.Equal(t, 4, agents[1].MinContextMessages())
	assert.Equal(t, 1500*time.Millisecond, agents[1].Conversation.ResponseDelay)
	assert.Equal(t, DefaultContextMessages, agents[0].MinContextMessages())

	eli, ok := roster.Lookup("eco")
	require.True(t, ok)
	assert.Equal(t, "Eli", eli.DisplayName())

	_, ok = roster.Lookup("ghost")
	assert.False(t, ok)
}

func TestNewRosterRejectsBadProfiles(t *testing.T) {
	tests := []struct {
		name   string
		agents []AgentProfile
	}{
		{"missing id", []AgentProfile{{Name: "x"}}},
		{"reserved id", []AgentProfile{{ID: UserID}}},
		{"duplicate", []AgentProfile{{ID: "a"}, {ID: "a"}}},
		{"bad role", []AgentProfile{{ID: "a", Role: "judge"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRoster(tt.agents)
			assert.Error(t, err)
		})
	}
}

func TestRosterSubsetKeepsRosterOrder(t *testing.T) {
	roster, err := NewRoster([]AgentProfile{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	require.NoError(t, err)

	subset, err := roster.Subset([]string{"c", "a"})
	require.NoError(t, err)
	require.Len(t, subset, 2)
	assert.Equal(t, "a", subset[0].ID)
	assert.Equal(t, "c", subset[1].ID)

	_, err = roster.Subset([]string{"zzz"})
	assert.Error(t, err)
}

func TestDisplayNameFallsBackToID(t *testing.T) {
	assert.Equal(t, "raw-id", AgentProfile{ID: "raw-id"}.DisplayName())
}
