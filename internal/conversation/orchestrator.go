package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"discussion-agent/internal/capability"
	"discussion-agent/internal/contextmgr"
	"discussion-agent/internal/discussion"
	"discussion-agent/internal/history"
	"discussion-agent/internal/llm"
	"discussion-agent/internal/logging"
	"discussion-agent/internal/metrics"
	"discussion-agent/internal/prompt"
)

// OrchestratorConfig tunes turn taking.
type OrchestratorConfig struct {
	// MaxRepliesPerTurn caps how many agents answer one user message. 0 means no cap.
	MaxRepliesPerTurn int
	// MaxActionRounds bounds how many follow-up replies an agent produces after its actions ran.
	MaxActionRounds int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Dependencies are the collaborators the Orchestrator wires together.
type Dependencies struct {
	Roster       *discussion.Roster
	Store        history.Store
	Builder      prompt.Builder
	Window       contextmgr.Manager
	Provider     llm.StreamingProvider
	Capabilities *capability.Registry
	Metrics      *metrics.Metrics
	Logger       logging.Logger
}

// Orchestrator wires together the history store, prompt builder, context window, LLM provider
// and capability registry to run discussion turns.
type Orchestrator struct {
	cfg          OrchestratorConfig
	roster       *discussion.Roster
	historyStore history.Store
	builder      prompt.Builder
	window       contextmgr.Manager
	provider     llm.StreamingProvider
	capabilities *capability.Registry
	metrics      *metrics.Metrics
	logger       logging.Logger
	locks        *keyedMutex
}

// NewOrchestrator constructs a new Orchestrator instance with the required dependencies.
func NewOrchestrator(cfg OrchestratorConfig, deps Dependencies) (*Orchestrator, error) {
	switch {
	case deps.Roster == nil:
		return nil, errors.New("conversation: roster is required")
	case deps.Store == nil:
		return nil, errors.New("conversation: history store is required")
	case deps.Builder == nil:
		return nil, errors.New("conversation: prompt builder is required")
	case deps.Provider == nil:
		return nil, errors.New("conversation: llm provider is required")
	}
	if deps.Window == nil {
		deps.Window = contextmgr.NewWindowManager()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNop()
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if cfg.MaxActionRounds <= 0 {
		cfg.MaxActionRounds = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Orchestrator{
		cfg:          cfg,
		roster:       deps.Roster,
		historyStore: deps.Store,
		builder:      deps.Builder,
		window:       deps.Window,
		provider:     deps.Provider,
		capabilities: deps.Capabilities,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		locks:        newKeyedMutex(),
	}, nil
}

// BuildPrompt produces the windowed prompt agent would receive for hist: one system message
// followed by the selected history. It does not touch the store or the model.
func (o *Orchestrator) BuildPrompt(ctx context.Context, agent discussion.AgentProfile, agents []discussion.AgentProfile, hist []discussion.Message) (contextmgr.TruncationResult, error) {
	return Prompter{Builder: o.builder, Window: o.window, Capabilities: o.capabilities}.BuildPrompt(ctx, agent, agents, hist)
}

// HandleMessage appends the user's message and lets the selected agents reply in turn.
func (o *Orchestrator) HandleMessage(ctx context.Context, req TurnRequest, stream Stream) error {
	if err := o.validate(req); err != nil {
		return err
	}

	agents, err := o.roster.Subset(req.AgentIDs)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownAgent, err)
	}

	log := o.logger.With(logging.F("tenant_id", req.Key.TenantID), logging.F("discussion_id", req.Key.DiscussionID))
	log.Info("handling discussion turn")

	unlock := o.locks.Lock(req.Key.String())
	defer unlock()

	err = o.runTurn(ctx, log, req, agents, stream)
	if err != nil {
		o.metrics.ObserveTurn("error")
		log.With(logging.F("err", err)).Error("discussion turn failed")
		return err
	}
	o.metrics.ObserveTurn("ok")
	return nil
}

func (o *Orchestrator) runTurn(ctx context.Context, log logging.Logger, req TurnRequest, agents []discussion.AgentProfile, stream Stream) error {
	hist, err := o.historyStore.GetHistory(ctx, req.Key, history.ReadOptions{})
	if err != nil {
		return fmt.Errorf("conversation: load history: %w", err)
	}

	userMessage := discussion.NewMessage(discussion.UserID, strings.TrimSpace(req.Content), o.cfg.Now())
	if hist, err = o.persist(ctx, req.Key, hist, userMessage, stream); err != nil {
		return err
	}

	// the subset only limits who speaks; names and the roster prompt always use everyone
	speakers := SelectSpeakers(agents, userMessage.Content, o.cfg.MaxRepliesPerTurn)
	log.With(logging.F("speakers", len(speakers))).Debug("speakers selected")

	roster := o.roster.Agents()
	for _, agent := range speakers {
		if hist, err = o.runAgent(ctx, log, req.Key, agent, roster, hist, stream); err != nil {
			return err
		}
	}
	return nil
}

// runAgent produces one agent's reply and any follow-ups triggered by its actions.
func (o *Orchestrator) runAgent(ctx context.Context, log logging.Logger, key history.ConversationKey, agent discussion.AgentProfile, agents []discussion.AgentProfile, hist history.MessageBatch, stream Stream) (history.MessageBatch, error) {
	log = log.With(logging.F("agent_id", agent.ID))

	if err := wait(ctx, agent.Conversation.ResponseDelay); err != nil {
		return hist, err
	}

	canAct := agent.CanUseActions && o.capabilities != nil
	for round := 0; ; round++ {
		result, err := o.BuildPrompt(ctx, agent, agents, hist)
		if err != nil {
			return hist, err
		}
		o.metrics.ObservePrompt(result.Stats.Chars, result.Stats.EstimatedTokens, result.Stats.Included, result.Stats.WithinBudget)
		log.With(
			logging.F("history_total", result.Stats.Total),
			logging.F("history_included", result.Stats.Included),
			logging.F("within_budget", result.Stats.WithinBudget),
			logging.F("estimated_tokens", result.Stats.EstimatedTokens),
		).Debug("prompt assembled")

		reply := discussion.NewMessage(agent.ID, "", o.cfg.Now())
		text, err := o.generate(ctx, agent, reply.ID, result, canAct, stream)
		if err != nil {
			o.metrics.ObserveReply(agent.ID, "error")
			return hist, err
		}
		o.metrics.ObserveReply(agent.ID, "ok")

		parsed := capability.ParsedReply{Text: strings.TrimSpace(text)}
		if canAct {
			parsed = capability.ParseReply(text)
			if len(parsed.Invalid) > 0 {
				log.With(logging.F("invalid_blocks", len(parsed.Invalid))).Warn("ignored malformed action blocks")
			}
		}

		reply.Content = parsed.Text
		reply.CreatedAt = o.cfg.Now().UTC()
		if hist, err = o.persist(ctx, key, hist, reply, stream); err != nil {
			return hist, err
		}

		if len(parsed.Invocations) == 0 {
			return hist, nil
		}
		if round >= o.cfg.MaxActionRounds {
			names := make([]string, 0, len(parsed.Invocations))
			for _, inv := range parsed.Invocations {
				names = append(names, inv.Name)
			}
			log.With(logging.F("actions", names), logging.F("max_action_rounds", o.cfg.MaxActionRounds)).Warn("action rounds exhausted, invocations dropped")
			return hist, nil
		}

		results := o.capabilities.ExecuteAll(ctx, capability.ActionContext{
			Agent:   agent,
			Agents:  agents,
			History: hist,
			Now:     o.cfg.Now(),
		}, parsed.Invocations)
		for _, res := range results {
			o.metrics.ObserveAction(res.Capability, string(res.Status))
		}
		log.With(logging.F("actions", len(results))).Info("capabilities executed")

		resultMessage := discussion.NewActionResultMessage(agent.ID, results, o.cfg.Now())
		if hist, err = o.persist(ctx, key, hist, resultMessage, stream); err != nil {
			return hist, err
		}
	}
}

// generate streams one model reply to the caller and returns the full raw text. With
// hideActions set, action blocks are withheld from the stream so the streamed text matches
// the message that gets persisted.
func (o *Orchestrator) generate(ctx context.Context, agent discussion.AgentProfile, messageID string, result contextmgr.TruncationResult, hideActions bool, stream Stream) (string, error) {
	// cancelling on return releases the provider goroutine if the caller stops reading
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	streamCh, err := o.provider.StreamChat(ctx, result.Messages, result.Params)
	if err != nil {
		o.metrics.ObserveLLM("error", time.Since(start))
		return "", fmt.Errorf("conversation: llm stream for %s: %w", agent.ID, err)
	}

	var filter *capability.ReplyFilter
	if hideActions {
		filter = &capability.ReplyFilter{}
	}
	send := func(text string) error {
		if text == "" {
			return nil
		}
		if err := stream.SendChunk(ctx, ChatChunk{AgentID: agent.ID, MessageID: messageID, Text: text}); err != nil {
			o.metrics.ObserveLLM("aborted", time.Since(start))
			return fmt.Errorf("conversation: send chunk: %w", err)
		}
		return nil
	}

	var responseBuilder strings.Builder
	for chunk := range streamCh {
		if chunk.Err != nil {
			o.metrics.ObserveLLM("error", time.Since(start))
			return "", fmt.Errorf("conversation: llm stream for %s: %w", agent.ID, chunk.Err)
		}
		if chunk.Delta == "" {
			continue
		}
		responseBuilder.WriteString(chunk.Delta)

		visible := chunk.Delta
		if filter != nil {
			visible = filter.Push(chunk.Delta)
		}
		if err := send(visible); err != nil {
			return "", err
		}
	}
	if err := ctx.Err(); err != nil {
		o.metrics.ObserveLLM("aborted", time.Since(start))
		return "", err
	}
	if filter != nil {
		if err := send(filter.Flush()); err != nil {
			return "", err
		}
	}

	o.metrics.ObserveLLM("ok", time.Since(start))
	return responseBuilder.String(), nil
}

// persist stores msg, notifies the caller and returns the extended history.
func (o *Orchestrator) persist(ctx context.Context, key history.ConversationKey, hist history.MessageBatch, msg discussion.Message, stream Stream) (history.MessageBatch, error) {
	if err := o.historyStore.AppendMessages(ctx, key, history.MessageBatch{msg}); err != nil {
		return hist, fmt.Errorf("conversation: persist message: %w", err)
	}
	hist = append(hist, msg)

	if err := stream.SendChunk(ctx, ChatChunk{AgentID: msg.AgentID, MessageID: msg.ID, Done: true, Message: &msg}); err != nil {
		return hist, fmt.Errorf("conversation: send message: %w", err)
	}
	return hist, nil
}

// AgentPrompt pairs an agent with the prompt it would receive.
type AgentPrompt struct {
	AgentID string
	Result  contextmgr.TruncationResult
}

// PreviewPrompt builds the prompt agentID would receive right now, without calling the model.
func (o *Orchestrator) PreviewPrompt(ctx context.Context, key history.ConversationKey, agentID string) (contextmgr.TruncationResult, error) {
	agent, ok := o.roster.Lookup(agentID)
	if !ok {
		return contextmgr.TruncationResult{}, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	hist, err := o.History(ctx, key)
	if err != nil {
		return contextmgr.TruncationResult{}, err
	}
	return o.BuildPrompt(ctx, agent, o.roster.Agents(), hist)
}

// PreviewAll builds every agent's prompt concurrently from one history snapshot.
func (o *Orchestrator) PreviewAll(ctx context.Context, key history.ConversationKey) ([]AgentPrompt, error) {
	hist, err := o.History(ctx, key)
	if err != nil {
		return nil, err
	}

	agents := o.roster.Agents()
	out := make([]AgentPrompt, len(agents))

	g, gctx := errgroup.WithContext(ctx)
	for i, agent := range agents {
		g.Go(func() error {
			result, err := o.BuildPrompt(gctx, agent, agents, hist)
			if err != nil {
				return err
			}
			out[i] = AgentPrompt{AgentID: agent.ID, Result: result}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// History returns the stored messages of a discussion.
func (o *Orchestrator) History(ctx context.Context, key history.ConversationKey) (history.MessageBatch, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	hist, err := o.historyStore.GetHistory(ctx, key, history.ReadOptions{})
	if err != nil {
		return nil, fmt.Errorf("conversation: load history: %w", err)
	}
	return hist, nil
}

// Clear deletes a discussion's history.
func (o *Orchestrator) Clear(ctx context.Context, key history.ConversationKey) error {
	if err := key.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	unlock := o.locks.Lock(key.String())
	defer unlock()

	if err := o.historyStore.Clear(ctx, key); err != nil {
		return fmt.Errorf("conversation: clear history: %w", err)
	}
	return nil
}

// Agents lists the configured roster.
func (o *Orchestrator) Agents() []discussion.AgentProfile {
	return o.roster.Agents()
}

func (o *Orchestrator) validate(req TurnRequest) error {
	if err := req.Key.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if strings.TrimSpace(req.Content) == "" {
		return fmt.Errorf("%w: content must be provided", ErrInvalidRequest)
	}
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Manager = (*Orchestrator)(nil)
