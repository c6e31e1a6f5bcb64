package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"discussion-agent/internal/config"
	"discussion-agent/internal/discussion"
)

func newAgentsCommand(opts *rootOptions) *cobra.Command {
	var agentsFile string
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List the configured roster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			roster, err := loadRoster(opts, agentsFile)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tROLE\tACTIONS\tCONTEXT\tEXPERTISE")
			for _, a := range roster.Agents() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%s\n",
					a.ID, a.DisplayName(), a.Role, a.CanUseActions, a.MinContextMessages(), strings.Join(a.Expertise, ", "))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&agentsFile, "agents", "", "roster file (overrides agents_file from config)")
	return cmd
}

// loadRoster prefers an explicit file and falls back to the configured one. Config validation
// is skipped so offline commands work without model credentials.
func loadRoster(opts *rootOptions, agentsFile string) (*discussion.Roster, error) {
	if agentsFile == "" {
		cfg, err := config.Read(opts.configFile)
		if err != nil {
			return nil, err
		}
		agentsFile = cfg.AgentsFile
	}
	return discussion.LoadRoster(agentsFile)
}
