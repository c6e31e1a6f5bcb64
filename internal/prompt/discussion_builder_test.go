package prompt

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discussion-agent/internal/capability"
	"discussion-agent/internal/discussion"
	"discussion-agent/internal/llm"
)

var (
	mira = discussion.AgentProfile{ID: "mod", Name: "Mira", Role: discussion.RoleModerator, Personality: "Stay neutral.", CanUseActions: true}
	eli  = discussion.AgentProfile{ID: "eco", Name: "Eli", Role: discussion.RoleParticipant, Expertise: []string{"economics"}}
)

func newBuilder(t *testing.T) *DiscussionBuilder {
	t.Helper()
	b, err := NewDiscussionBuilder(DiscussionBuilderConfig{Model: "test-model"})
	require.NoError(t, err)
	return b
}

func TestNewDiscussionBuilderRequiresModel(t *testing.T) {
	_, err := NewDiscussionBuilder(DiscussionBuilderConfig{})
	assert.Error(t, err)
}

func TestBuildFormatsHistoryFromAgentPerspective(t *testing.T) {
	history := []discussion.Message{
		{ID: "1", AgentID: discussion.UserID, Content: "Should we raise rates?", Type: discussion.MessageNormal},
		{ID: "2", AgentID: "eco", Content: "Inflation is cooling.", Type: discussion.MessageNormal},
		{ID: "3", AgentID: "mod", Content: "Let's hear more.", Type: discussion.MessageNormal},
		{ID: "4", AgentID: "ghost-7", Content: "Boo.", Type: discussion.MessageNormal},
	}

	res, err := newBuilder(t).Build(context.Background(), BuildContext{
		Agent:   eli,
		Agents:  []discussion.AgentProfile{mira, eli},
		History: history,
	})
	require.NoError(t, err)

	want := []llm.ChatMessage{
		{Role: llm.RoleUser, Content: "User said: Should we raise rates?"},
		{Role: llm.RoleUser, Content: "You said: Inflation is cooling."},
		{Role: llm.RoleUser, Content: "Mira said: Let's hear more."},
		{Role: llm.RoleUser, Content: "ghost-7 said: Boo."},
	}
	if diff := cmp.Diff(want, res.History); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, discussion.DefaultContextMessages, res.MinContextMessages)
	assert.Equal(t, "test-model", res.Params.Model)
	assert.Equal(t, 1024, res.Params.MaxTokens)
}

func TestBuildRendersActionResultsAsSystem(t *testing.T) {
	results := []discussion.ActionResult{
		{Capability: "current_time", Status: discussion.ActionSuccess, Output: "2026-01-01T00:00:00Z"},
		{Capability: "lookup", Status: discussion.ActionError, Error: "not found"},
	}
	res, err := newBuilder(t).Build(context.Background(), BuildContext{
		Agent:   mira,
		History: []discussion.Message{{AgentID: "mod", Type: discussion.MessageActionResult, ActionResults: results}},
	})
	require.NoError(t, err)

	require.Len(t, res.History, 1)
	assert.Equal(t, llm.RoleSystem, res.History[0].Role)
	assert.Equal(t, FormatActionResults(results), res.History[0].Content)
	assert.Equal(t, "Action results:\n[current_time] success\n2026-01-01T00:00:00Z\n[lookup] error: not found", res.History[0].Content)
}

func TestSystemMessageIncludesCapabilitiesOnlyWhenPermitted(t *testing.T) {
	descs := []capability.Descriptor{
		{Name: "current_time", Description: "Returns the time.", Parameters: map[string]string{"timezone": "zone"}},
		{Name: "list_participants", Description: "Lists agents.", Roles: []discussion.AgentRole{discussion.RoleModerator}},
	}

	withActions := SystemMessage(BuildContext{Agent: mira, Agents: []discussion.AgentProfile{mira, eli}, Capabilities: descs})
	assert.Equal(t, llm.RoleSystem, withActions.Role)
	assert.True(t, strings.HasPrefix(withActions.Content, "You are Mira, the moderator of this discussion."))
	assert.Contains(t, withActions.Content, "Stay neutral.")
	assert.Contains(t, withActions.Content, "Other participants:\n- Eli (participant)")
	assert.Contains(t, withActions.Content, "\n\nYou can use the following actions.")
	assert.Contains(t, withActions.Content, "- current_time: Returns the time.\n  params: timezone (zone)")
	assert.Contains(t, withActions.Content, "- list_participants: Lists agents.")

	without := SystemMessage(BuildContext{Agent: eli, Agents: []discussion.AgentProfile{mira, eli}, Capabilities: descs})
	assert.NotContains(t, without.Content, "following actions")
	assert.Contains(t, without.Content, "Your areas of expertise: economics.")
	assert.Equal(t, RolePrompt(eli, []discussion.AgentProfile{mira, eli}), without.Content)
}

func TestSystemMessageOmitsEmptyCapabilitySegment(t *testing.T) {
	participantWithActions := eli
	participantWithActions.CanUseActions = true
	descs := []capability.Descriptor{{Name: "moderate", Description: "x", Roles: []discussion.AgentRole{discussion.RoleModerator}}}

	msg := SystemMessage(BuildContext{Agent: participantWithActions, Capabilities: descs})
	assert.Equal(t, RolePrompt(participantWithActions, nil), msg.Content)
	assert.False(t, strings.HasSuffix(msg.Content, "\n\n"))
}

func TestBuildIsIdempotentAndDoesNotMutateInput(t *testing.T) {
	history := []discussion.Message{
		{ID: "1", AgentID: discussion.UserID, Content: "a"},
		{ID: "2", AgentID: "eco", Content: "b"},
	}
	snapshot := append([]discussion.Message(nil), history...)
	input := BuildContext{Agent: mira, Agents: []discussion.AgentProfile{mira, eli}, History: history}

	b := newBuilder(t)
	first, err := b.Build(context.Background(), input)
	require.NoError(t, err)
	second, err := b.Build(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, history)
}

func TestBuildHandlesNilInputs(t *testing.T) {
	res, err := newBuilder(t).Build(context.Background(), BuildContext{Agent: discussion.AgentProfile{ID: "solo"}})
	require.NoError(t, err)
	assert.Empty(t, res.History)
	assert.Equal(t, "You are solo, a participant in this discussion.\n"+participantGuidance, res.System.Content)
}
