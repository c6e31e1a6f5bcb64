package conversation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"discussion-agent/internal/capability"
	"discussion-agent/internal/contextmgr"
	"discussion-agent/internal/discussion"
	"discussion-agent/internal/history"
	"discussion-agent/internal/llm"
	"discussion-agent/internal/logging"
	"discussion-agent/internal/prompt"
)

type stubStream struct {
	mu     sync.Mutex
	chunks []ChatChunk
	failOn int
}

func (s *stubStream) SendChunk(_ context.Context, chunk ChatChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunk)
	if s.failOn > 0 && len(s.chunks) >= s.failOn {
		return errors.New("client went away")
	}
	return nil
}

func (s *stubStream) messages() []discussion.Message {
	var out []discussion.Message
	for _, c := range s.chunks {
		if c.Done {
			out = append(out, *c.Message)
		}
	}
	return out
}

// scriptedProvider replies with the next scripted answer and records each prompt it receives.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []string
	prompts [][]llm.ChatMessage
	err     error
}

func (p *scriptedProvider) StreamChat(ctx context.Context, messages []llm.ChatMessage, params llm.GenerationParams) (<-chan llm.PartialChunk, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if params.Model == "" {
		return nil, errors.New("missing model")
	}
	if p.err != nil {
		return nil, p.err
	}
	p.prompts = append(p.prompts, messages)

	reply := fmt.Sprintf("reply %d", len(p.prompts))
	if len(p.replies) > 0 {
		reply, p.replies = p.replies[0], p.replies[1:]
	}

	ch := make(chan llm.PartialChunk)
	go func() {
		defer close(ch)
		for _, word := range strings.SplitAfter(reply, " ") {
			select {
			case <-ctx.Done():
				return
			case ch <- llm.PartialChunk{Delta: word}:
			}
		}
	}()
	return ch, nil
}

var testAgents = []discussion.AgentProfile{
	{ID: "eco", Name: "Eli", Role: discussion.RoleParticipant},
	{ID: "mod", Name: "Mira", Role: discussion.RoleModerator, CanUseActions: true},
	{ID: "law", Name: "Lena", Role: discussion.RoleParticipant, Conversation: discussion.ConversationSettings{ContextMessages: 2}},
}

type fixture struct {
	orch     *Orchestrator
	store    history.Store
	provider *scriptedProvider
}

func newFixture(t *testing.T, cfg OrchestratorConfig, provider *scriptedProvider, overrides ...func(*Dependencies)) fixture {
	t.Helper()

	roster, err := discussion.NewRoster(testAgents)
	require.NoError(t, err)
	store, err := history.NewFileStore(t.TempDir())
	require.NoError(t, err)
	builder, err := prompt.NewDiscussionBuilder(prompt.DiscussionBuilderConfig{Model: "test-model"})
	require.NoError(t, err)
	registry, err := capability.NewRegistry(capability.Builtins()...)
	require.NoError(t, err)

	deps := Dependencies{
		Roster:       roster,
		Store:        store,
		Builder:      builder,
		Window:       contextmgr.NewWindowManager(contextmgr.WithTokenCounter(contextmgr.HeuristicCounter{})),
		Provider:     provider,
		Capabilities: registry,
		Logger:       logging.NewNop(),
	}
	for _, override := range overrides {
		override(&deps)
	}
	orch, err := NewOrchestrator(cfg, deps)
	require.NoError(t, err)
	return fixture{orch: orch, store: store, provider: provider}
}

var key = history.ConversationKey{TenantID: "acme", DiscussionID: "rates"}

func TestHandleMessageModeratorFirstThenParticipants(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(t, OrchestratorConfig{}, &scriptedProvider{replies: []string{"Welcome all.", "Rates should hold.", "Legally fine."}})
	stream := &stubStream{}

	require.NoError(t, f.orch.HandleMessage(context.Background(), TurnRequest{Key: key, Content: "  Should rates rise?  "}, stream))

	msgs := stream.messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, discussion.UserID, msgs[0].AgentID)
	assert.Equal(t, "Should rates rise?", msgs[0].Content)
	assert.Equal(t, []string{"mod", "eco", "law"}, []string{msgs[1].AgentID, msgs[2].AgentID, msgs[3].AgentID})
	assert.Equal(t, "Rates should hold.", msgs[2].Content)

	var streamed strings.Builder
	for _, c := range stream.chunks {
		if !c.Done && c.AgentID == "eco" {
			assert.Equal(t, msgs[2].ID, c.MessageID)
			streamed.WriteString(c.Text)
		}
	}
	assert.Equal(t, "Rates should hold.", streamed.String())

	stored, err := f.store.GetHistory(context.Background(), key, history.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, history.MessageBatch(msgs), stored)

	// The second speaker sees the moderator's reply; the third has a floor of 2 but gets +1.
	require.Len(t, f.provider.prompts, 3)
	eliPrompt := f.provider.prompts[1]
	assert.Equal(t, llm.RoleSystem, eliPrompt[0].Role)
	assert.Equal(t, []llm.ChatMessage{
		{Role: llm.RoleUser, Content: "User said: Should rates rise?"},
		{Role: llm.RoleUser, Content: "Mira said: Welcome all."},
	}, eliPrompt[1:])
	assert.Len(t, f.provider.prompts[2], 4)
	assert.Equal(t, "Eli said: Rates should hold.", f.provider.prompts[2][3].Content)
}

func TestHandleMessageMentionsSelectSpeakers(t *testing.T) {
	f := newFixture(t, OrchestratorConfig{}, &scriptedProvider{})
	stream := &stubStream{}

	require.NoError(t, f.orch.HandleMessage(context.Background(), TurnRequest{Key: key, Content: "@lena then @Eli, thoughts?"}, stream))

	msgs := stream.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "law", msgs[1].AgentID)
	assert.Equal(t, "eco", msgs[2].AgentID)
}

func TestHandleMessageRespectsSubsetAndLimit(t *testing.T) {
	f := newFixture(t, OrchestratorConfig{MaxRepliesPerTurn: 1}, &scriptedProvider{})
	stream := &stubStream{}

	require.NoError(t, f.orch.HandleMessage(context.Background(), TurnRequest{Key: key, Content: "hi", AgentIDs: []string{"law", "eco"}}, stream))

	msgs := stream.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "eco", msgs[1].AgentID)

	err := f.orch.HandleMessage(context.Background(), TurnRequest{Key: key, Content: "hi", AgentIDs: []string{"ghost"}}, stream)
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestHandleMessageExecutesActionsAndFollowsUp(t *testing.T) {
	now := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	provider := &scriptedProvider{replies: []string{
		`Checking. :::action {"name": "current_time"} :::`,
		"It is morning.",
		"ok",
		"ok",
	}}
	f := newFixture(t, OrchestratorConfig{Now: func() time.Time { return now }}, provider)
	stream := &stubStream{}

	require.NoError(t, f.orch.HandleMessage(context.Background(), TurnRequest{Key: key, Content: "What time is it?"}, stream))

	msgs := stream.messages()
	require.Len(t, msgs, 6)
	assert.Equal(t, "mod", msgs[1].AgentID)
	assert.Equal(t, "Checking.", msgs[1].Content)

	var streamed strings.Builder
	for _, c := range stream.chunks {
		if !c.Done && c.MessageID == msgs[1].ID {
			streamed.WriteString(c.Text)
		}
	}
	assert.Equal(t, msgs[1].Content, strings.TrimSpace(streamed.String()), "action blocks are not streamed")

	assert.Equal(t, discussion.MessageActionResult, msgs[2].Type)
	require.Len(t, msgs[2].ActionResults, 1)
	assert.Equal(t, discussion.ActionSuccess, msgs[2].ActionResults[0].Status)
	assert.Equal(t, "2026-10-19T08:30:00Z", msgs[2].ActionResults[0].Output)

	assert.Equal(t, "mod", msgs[3].AgentID)
	assert.Equal(t, "It is morning.", msgs[3].Content)

	followUp := provider.prompts[1]
	last := followUp[len(followUp)-1]
	assert.Equal(t, llm.RoleSystem, last.Role)
	assert.Equal(t, prompt.FormatActionResults(msgs[2].ActionResults), last.Content)
	assert.Contains(t, followUp[0].Content, "current_time")
}

func TestHandleMessageIgnoresActionsFromAgentsWithoutPermission(t *testing.T) {
	provider := &scriptedProvider{replies: []string{"fine", `:::action {"name": "current_time"} ::: done`, "ok"}}
	f := newFixture(t, OrchestratorConfig{}, provider)
	stream := &stubStream{}

	require.NoError(t, f.orch.HandleMessage(context.Background(), TurnRequest{Key: key, Content: "go"}, stream))

	msgs := stream.messages()
	require.Len(t, msgs, 4)
	for _, m := range msgs {
		assert.False(t, m.IsActionResult())
	}
	assert.Equal(t, `:::action {"name": "current_time"} ::: done`, msgs[2].Content)
	assert.NotContains(t, provider.prompts[1][0].Content, "following actions")
}

func TestHandleMessageValidation(t *testing.T) {
	f := newFixture(t, OrchestratorConfig{}, &scriptedProvider{})

	err := f.orch.HandleMessage(context.Background(), TurnRequest{}, &stubStream{})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	err = f.orch.HandleMessage(context.Background(), TurnRequest{Key: key, Content: "   "}, &stubStream{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestHandleMessagePropagatesProviderErrors(t *testing.T) {
	f := newFixture(t, OrchestratorConfig{}, &scriptedProvider{err: errors.New("quota exceeded")})
	stream := &stubStream{}

	err := f.orch.HandleMessage(context.Background(), TurnRequest{Key: key, Content: "hi"}, stream)
	assert.ErrorContains(t, err, "quota exceeded")

	stored, err := f.store.GetHistory(context.Background(), key, history.ReadOptions{})
	require.NoError(t, err)
	assert.Len(t, stored, 1, "user message is kept even when no agent could answer")
}

func TestHandleMessageStopsWhenClientGoesAway(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(t, OrchestratorConfig{}, &scriptedProvider{replies: []string{"a long moderator reply"}})
	stream := &stubStream{failOn: 2}

	err := f.orch.HandleMessage(context.Background(), TurnRequest{Key: key, Content: "hi"}, stream)
	assert.ErrorContains(t, err, "client went away")
}

func TestHandleMessageHonorsResponseDelayCancellation(t *testing.T) {
	roster, err := discussion.NewRoster([]discussion.AgentProfile{{ID: "slow", Conversation: discussion.ConversationSettings{ResponseDelay: time.Hour}}})
	require.NoError(t, err)
	store, err := history.NewFileStore(t.TempDir())
	require.NoError(t, err)
	builder, err := prompt.NewDiscussionBuilder(prompt.DiscussionBuilderConfig{Model: "m"})
	require.NoError(t, err)
	orch, err := NewOrchestrator(OrchestratorConfig{}, Dependencies{Roster: roster, Store: store, Builder: builder, Provider: &scriptedProvider{}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = orch.HandleMessage(ctx, TurnRequest{Key: key, Content: "hi"}, &stubStream{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPreviewPromptAppliesWindow(t *testing.T) {
	f := newFixture(t, OrchestratorConfig{}, &scriptedProvider{})
	ctx := context.Background()

	var batch history.MessageBatch
	for i := 0; i < 15; i++ {
		batch = append(batch, discussion.NewMessage("eco", strings.Repeat("x", 3000), time.Now()))
	}
	require.NoError(t, f.store.AppendMessages(ctx, key, batch))

	res, err := f.orch.PreviewPrompt(ctx, key, "law")
	require.NoError(t, err)
	// "Eli said: " + 3000 chars = 3010 per message, so six fit in 20000.
	assert.Equal(t, 6, res.Stats.WithinBudget)
	assert.Equal(t, 7, res.Stats.Included)
	assert.Len(t, res.Messages, 8)

	res, err = f.orch.PreviewPrompt(ctx, key, "mod")
	require.NoError(t, err)
	assert.Equal(t, 10, res.Stats.Included, "default floor of 10 wins over the budget")

	_, err = f.orch.PreviewPrompt(ctx, key, "ghost")
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestPreviewAllMatchesSequentialBuilds(t *testing.T) {
	f := newFixture(t, OrchestratorConfig{}, &scriptedProvider{})
	ctx := context.Background()
	require.NoError(t, f.store.AppendMessages(ctx, key, history.MessageBatch{
		discussion.NewMessage(discussion.UserID, "start", time.Now()),
		discussion.NewMessage("mod", "go on", time.Now()),
	}))

	all, err := f.orch.PreviewAll(ctx, key)
	require.NoError(t, err)
	require.Len(t, all, len(testAgents))

	for i, agent := range testAgents {
		assert.Equal(t, agent.ID, all[i].AgentID)
		single, err := f.orch.PreviewPrompt(ctx, key, agent.ID)
		require.NoError(t, err)
		assert.Equal(t, single, all[i].Result)
	}
}

func TestClearRemovesHistory(t *testing.T) {
	f := newFixture(t, OrchestratorConfig{}, &scriptedProvider{})
	ctx := context.Background()
	require.NoError(t, f.orch.HandleMessage(ctx, TurnRequest{Key: key, Content: "hi", AgentIDs: []string{"eco"}}, &stubStream{}))

	require.NoError(t, f.orch.Clear(ctx, key))
	hist, err := f.orch.History(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, hist)

	assert.ErrorIs(t, f.orch.Clear(ctx, history.ConversationKey{}), ErrInvalidRequest)
}

func TestConcurrentTurnsOnOneDiscussionDoNotInterleave(t *testing.T) {
	f := newFixture(t, OrchestratorConfig{}, &scriptedProvider{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.orch.HandleMessage(ctx, TurnRequest{Key: key, Content: fmt.Sprintf("turn %d", i), AgentIDs: []string{"eco"}}, &stubStream{}))
		}()
	}
	wg.Wait()

	hist, err := f.orch.History(ctx, key)
	require.NoError(t, err)
	require.Len(t, hist, 8)
	for i := 0; i < len(hist); i += 2 {
		assert.Equal(t, discussion.UserID, hist[i].AgentID)
		assert.Equal(t, "eco", hist[i+1].AgentID)
	}
}

func TestNewOrchestratorRequiresDependencies(t *testing.T) {
	_, err := NewOrchestrator(OrchestratorConfig{}, Dependencies{})
	assert.Error(t, err)
}

func TestHandleMessageLogsActionsBeyondLastRound(t *testing.T) {
	var logs bytes.Buffer
	provider := &scriptedProvider{replies: []string{
		`:::action {"name": "current_time"} :::`,
		`:::action {"name": "discussion_stats"} ::: later`,
	}}
	f := newFixture(t, OrchestratorConfig{}, provider, func(d *Dependencies) {
		d.Logger = logging.NewWithWriter(&logs)
	})
	stream := &stubStream{}

	require.NoError(t, f.orch.HandleMessage(context.Background(), TurnRequest{Key: key, Content: "stats?", AgentIDs: []string{"mod"}}, stream))

	msgs := stream.messages()
	require.Len(t, msgs, 4)
	assert.True(t, msgs[2].IsActionResult())
	assert.Equal(t, "later", msgs[3].Content)
	for _, c := range stream.chunks {
		assert.NotContains(t, c.Text, ":::")
	}

	assert.Contains(t, logs.String(), "invocations dropped")
	assert.Contains(t, logs.String(), "discussion_stats")
}

func TestHandleMessageResolvesNamesAcrossWholeRosterWhenRestricted(t *testing.T) {
	provider := &scriptedProvider{replies: []string{"eli speaks", "lena speaks"}}
	f := newFixture(t, OrchestratorConfig{}, provider)
	ctx := context.Background()

	require.NoError(t, f.orch.HandleMessage(ctx, TurnRequest{Key: key, Content: "@Eli hi"}, &stubStream{}))
	require.NoError(t, f.orch.HandleMessage(ctx, TurnRequest{Key: key, Content: "go on", AgentIDs: []string{"law"}}, &stubStream{}))

	require.Len(t, provider.prompts, 2)
	lenaPrompt := provider.prompts[1]
	assert.Contains(t, lenaPrompt, llm.ChatMessage{Role: llm.RoleUser, Content: "Eli said: eli speaks"})
	assert.Contains(t, lenaPrompt[0].Content, "Mira")
	assert.Contains(t, lenaPrompt[0].Content, "Eli")

	hist, err := f.orch.History(ctx, key)
	require.NoError(t, err)
	require.Len(t, hist, 4)
	law, ok := f.orch.roster.Lookup("law")
	require.True(t, ok)
	want, err := f.orch.BuildPrompt(ctx, law, f.orch.Agents(), hist[:3])
	require.NoError(t, err)
	assert.Equal(t, want.Messages, lenaPrompt, "a restricted turn sees the same prompt a preview would build")
}
