package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configFile string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "discussion-agent",
		Short:         "Multi-agent discussion service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "path to a YAML config file")

	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newAgentsCommand(opts))
	root.AddCommand(newPromptCommand(opts))
	root.AddCommand(newPostCommand())
	return root
}
