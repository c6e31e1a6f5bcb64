package server

import (
	"discussion-agent/internal/contextmgr"
	"discussion-agent/internal/llm"
)

type postMessageRequest struct {
	Content  string   `json:"content"`
	AgentIDs []string `json:"agent_ids"`
}

type errorView struct {
	Error string `json:"error"`
}

type chunkView struct {
	AgentID   string `json:"agent_id"`
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

type paramsView struct {
	Model       string   `json:"model"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature float32  `json:"temperature"`
	Stop        []string `json:"stop,omitempty"`
}

type statsView struct {
	Total           int `json:"total"`
	WithinBudget    int `json:"within_budget"`
	Included        int `json:"included"`
	Chars           int `json:"chars"`
	EstimatedTokens int `json:"estimated_tokens"`
}

type promptView struct {
	AgentID  string            `json:"agent_id"`
	Messages []llm.ChatMessage `json:"messages"`
	Params   paramsView        `json:"params"`
	Stats    statsView         `json:"stats"`
}

func newPromptView(agentID string, r contextmgr.TruncationResult) promptView {
	return promptView{
		AgentID:  agentID,
		Messages: r.Messages,
		Params: paramsView{
			Model:       r.Params.Model,
			MaxTokens:   r.Params.MaxTokens,
			Temperature: r.Params.Temperature,
			Stop:        r.Params.Stop,
		},
		Stats: statsView(r.Stats),
	}
}

type doneView struct {
	Messages int `json:"messages"`
}
