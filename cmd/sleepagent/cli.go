package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func executeCLI() error {
	return buildRootCommand().Execute()
}

func buildRootCommand() *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   "sleepagent",
		Short: "Sleep analysis worker agent with two-tier memory",
		Long: strings.TrimSpace(`sleepagent analyzes sleep session data, scores sleep quality, and
generates personalized recommendations. Results and per-user history are kept
in a short-term/long-term memory store backed by SQLite.

Run 'sleepagent serve' to expose the task API to a supervisor agent, or use
the task subcommands to run analyses locally.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")

	root.AddCommand(newServeCommand())
	root.AddCommand(newTaskCommand())
	root.AddCommand(newMemoryCommand())
	root.AddCommand(newSweepCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func newServeCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the task gateway, worker pool, and retention sweeper",
		Long:    "Start the HTTP gateway, the task worker pool, the memory retention sweeper, and announce the agent to the supervisor.",
		Example: "  sleepagent serve --debug",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveCmd(debug)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newTaskCommand() *cobra.Command {
	taskRoot := &cobra.Command{
		Use:   "task",
		Short: "Run analysis tasks locally",
		Long:  "Process task requests through the analysis pipeline without the HTTP surface.",
	}

	taskRoot.AddCommand(&cobra.Command{
		Use:     "run <file>",
		Short:   "Process a task request from a JSON file",
		Example: "  sleepagent task run ./task.json",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return taskRunCmd(args[0])
		},
	})

	taskRoot.AddCommand(&cobra.Command{
		Use:     "console",
		Short:   "Interactive console for submitting task JSON",
		Example: "  sleepagent task console",
		RunE: func(cmd *cobra.Command, args []string) error {
			return consoleCmd()
		},
	})

	return taskRoot
}

func newMemoryCommand() *cobra.Command {
	memRoot := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and manage stored user memory",
	}

	memRoot.AddCommand(&cobra.Command{
		Use:     "show <user_id>",
		Short:   "Print a user's short-term and long-term memory",
		Example: "  sleepagent memory show U_101",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return memoryShowCmd(args[0])
		},
	})

	memRoot.AddCommand(&cobra.Command{
		Use:     "clear <user_id>",
		Short:   "Delete a user's stored memory, both tiers",
		Example: "  sleepagent memory clear U_101",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return memoryClearCmd(args[0])
		},
	})

	return memRoot
}

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "sweep",
		Short:   "Run one retention sweep over all stored users",
		Example: "  sleepagent sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sweepCmd()
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  sleepagent version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion()
			return nil
		},
	}
}
