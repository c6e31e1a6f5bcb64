package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"discussion-agent/internal/capability"
	"discussion-agent/internal/config"
	"discussion-agent/internal/contextmgr"
	"discussion-agent/internal/conversation"
	"discussion-agent/internal/discussion"
	"discussion-agent/internal/prompt"
)

type promptOptions struct {
	agentsFile  string
	historyFile string
	agentID     string
	budget      int
	asJSON      bool
}

func newPromptCommand(root *rootOptions) *cobra.Command {
	opts := &promptOptions{}
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Print the prompt an agent would receive for a saved history",
		Long: "Builds an agent's prompt offline from a JSON array of messages (use - for stdin)\n" +
			"and prints it with the window statistics. No model is called.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPrompt(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.agentsFile, "agents", "", "roster file (overrides agents_file from config)")
	cmd.Flags().StringVar(&opts.historyFile, "history", "-", "history JSON file")
	cmd.Flags().StringVar(&opts.agentID, "agent", "", "agent whose prompt to build")
	cmd.Flags().IntVar(&opts.budget, "budget", 0, "character budget (defaults to context.char_budget)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print JSON instead of text")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func runPrompt(cmd *cobra.Command, root *rootOptions, opts *promptOptions) error {
	cfg, err := config.Read(root.configFile)
	if err != nil {
		return err
	}
	if opts.agentsFile == "" {
		opts.agentsFile = cfg.AgentsFile
	}
	if opts.budget <= 0 {
		opts.budget = cfg.Context.CharBudget
	}

	roster, err := discussion.LoadRoster(opts.agentsFile)
	if err != nil {
		return err
	}
	agent, ok := roster.Lookup(opts.agentID)
	if !ok {
		return fmt.Errorf("%w: %s", conversation.ErrUnknownAgent, opts.agentID)
	}

	hist, err := readHistory(cmd.InOrStdin(), opts.historyFile)
	if err != nil {
		return err
	}

	builder, err := prompt.NewDiscussionBuilder(prompt.DiscussionBuilderConfig{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		return err
	}
	registry, err := capability.NewRegistry(capability.Builtins()...)
	if err != nil {
		return err
	}

	prompter := conversation.Prompter{
		Builder:      builder,
		Window:       contextmgr.NewWindowManager(contextmgr.WithCharBudget(opts.budget), contextmgr.WithTokenCounter(contextmgr.HeuristicCounter{})),
		Capabilities: registry,
	}
	result, err := prompter.BuildPrompt(cmd.Context(), agent, roster.Agents(), hist)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	s := result.Stats
	fmt.Fprintf(out, "# %s: %d of %d messages (%d within budget), %d chars, ~%d tokens\n",
		agent.DisplayName(), s.Included, s.Total, s.WithinBudget, s.Chars, s.EstimatedTokens)
	for _, msg := range result.Messages {
		fmt.Fprintf(out, "\n[%s]\n%s\n", msg.Role, msg.Content)
	}
	return nil
}

func readHistory(stdin io.Reader, path string) ([]discussion.Message, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		defer f.Close()
		r = f
	}

	var msgs []discussion.Message
	if err := json.NewDecoder(r).Decode(&msgs); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return msgs, nil
}
