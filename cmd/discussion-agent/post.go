package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"discussion-agent/internal/discussion"
)

type postOptions struct {
	addr       string
	tenant     string
	discussion string
	agents     []string
	timeout    time.Duration
}

// newPostCommand sends one message to a running server and prints the streamed replies.
func newPostCommand() *cobra.Command {
	opts := &postOptions{}
	cmd := &cobra.Command{
		Use:   "post <message>",
		Short: "Post a message to a running server and stream the replies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			return post(ctx, cmd.OutOrStdout(), opts, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "http://127.0.0.1:8080", "server base URL")
	cmd.Flags().StringVar(&opts.tenant, "tenant", "default", "tenant id")
	cmd.Flags().StringVar(&opts.discussion, "discussion", "main", "discussion id")
	cmd.Flags().StringSliceVar(&opts.agents, "agent", nil, "restrict replies to these agents")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "request timeout")
	return cmd
}

func post(ctx context.Context, out io.Writer, opts *postOptions, content string) error {
	body, err := json.Marshal(map[string]any{"content": content, "agent_ids": opts.agents})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/v1/tenants/%s/discussions/%s/messages",
		strings.TrimRight(opts.addr, "/"), url.PathEscape(opts.tenant), url.PathEscape(opts.discussion))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("post message: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return printEvents(out, resp.Body)
}

// printEvents renders chunk deltas inline and prints a newline after each completed reply.
func printEvents(out io.Writer, body io.Reader) error {
	var (
		event   string
		speaker string
	)
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			switch event {
			case "chunk":
				var c struct {
					AgentID string `json:"agent_id"`
					Text    string `json:"text"`
				}
				if err := json.Unmarshal([]byte(data), &c); err != nil {
					return fmt.Errorf("decode chunk: %w", err)
				}
				if c.AgentID != speaker {
					speaker = c.AgentID
					fmt.Fprintf(out, "%s: ", speaker)
				}
				fmt.Fprint(out, c.Text)
			case "message":
				var m discussion.Message
				if err := json.Unmarshal([]byte(data), &m); err != nil {
					return fmt.Errorf("decode message: %w", err)
				}
				if m.IsActionResult() {
					fmt.Fprintf(out, "(%s ran %d action(s))\n", m.AgentID, len(m.ActionResults))
				} else if m.AgentID != discussion.UserID {
					fmt.Fprintln(out)
				}
				speaker = ""
			case "error":
				return fmt.Errorf("server error: %s", data)
			}
		}
	}
	return scanner.Err()
}
