package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jimihq/jimi/pkg/models"
)

// Exit codes for the run command.
const (
	exitNatural   = 0
	exitFatal     = 1
	exitCancelled = 2
	exitMaxSteps  = 3
)

func buildRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <prompt>",
		Short: "Run a single task and exit",
		Long: `Run executes one task to completion and exits. The exit code reports the
outcome: 0 on natural completion, 1 on a fatal error, 2 when cancelled,
3 when the step limit was reached.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(strings.Join(args, " "))
		},
	}
}

func runOnce(prompt string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	sub := s.bus.Subscribe()
	r := startRenderer(sub, os.Stdin, os.Stdout, flagVerbose)

	cause, runErr := s.exec.Execute(ctx, []models.ContentPart{models.TextPart(prompt)})

	s.Close()
	r.Wait()

	switch cause {
	case models.DoneNatural:
		return nil
	case models.DoneCancelled:
		os.Exit(exitCancelled)
	case models.DoneMaxSteps:
		fmt.Fprintln(os.Stderr, "jimi: step limit reached before the task finished")
		os.Exit(exitMaxSteps)
	default:
		if runErr != nil {
			fmt.Fprintln(os.Stderr, "jimi:", runErr)
		}
		os.Exit(exitFatal)
	}
	return nil
}
