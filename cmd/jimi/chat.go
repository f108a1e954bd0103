package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jimihq/jimi/internal/agent"
	"github.com/jimihq/jimi/pkg/models"
)

func buildChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Chat starts a REPL. Type a message to send it to the agent; Ctrl-C
interrupts the current turn. Slash commands control the session:

  /help     show available commands
  /status   show session and token statistics
  /tools    list registered tools
  /reset    clear the conversation
  /compact  compact the conversation now
  /init     generate an AGENTS.md for this project
  /quit     exit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return chatLoop()
		},
	}
}

func chatLoop() error {
	s, err := newSession(context.Background())
	if err != nil {
		return err
	}

	stdin := bufio.NewReader(os.Stdin)
	sub := s.bus.Subscribe()
	r := startRenderer(sub, stdin, os.Stdout, flagVerbose)
	defer func() {
		s.Close()
		r.Wait()
	}()

	fmt.Printf("jimi %s | %s | %s\n", version, s.provider.Name(), s.workdir)
	fmt.Println(`Type a message, or /help for commands.`)

	for {
		fmt.Print("\n> ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := s.command(line); quit {
				return nil
			}
			continue
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		cause, err := s.exec.Execute(ctx, []models.ContentPart{models.TextPart(line)})
		stop()
		if err != nil && cause != models.DoneCancelled {
			fmt.Fprintln(os.Stderr, "jimi:", err)
		}
		if cause == models.DoneFatalError {
			fmt.Fprintln(os.Stderr, "jimi: the provider failed; check connectivity and try again")
		}
	}
}

// command handles one slash command. The returned bool requests exit.
func (s *session) command(line string) bool {
	switch strings.Fields(line)[0] {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Println("/help /status /tools /reset /compact /init /quit")

	case "/status":
		steps, tokens, tools := s.exec.Stats()
		fmt.Printf("session:  %s\n", s.id)
		fmt.Printf("provider: %s\n", s.provider.Name())
		fmt.Printf("context:  %d messages, ~%d tokens (window %d)\n",
			s.store.Len(), s.store.TokenCount(), s.provider.MaxContextSize())
		fmt.Printf("last run: %d steps, %d tokens, tools: %s\n",
			steps, tokens, strings.Join(tools, ", "))

	case "/tools":
		for _, name := range s.registry.Names() {
			fmt.Println(" ", name)
		}

	case "/reset":
		if s.store.Len() == 0 {
			fmt.Println("conversation already empty")
			break
		}
		if err := s.store.RevertTo(0); err != nil {
			fmt.Fprintln(os.Stderr, "reset failed:", err)
			break
		}
		s.exec.ResetCounters()
		fmt.Println("conversation cleared")

	case "/compact":
		s.exec.Compactor().Force()
		s.exec.Compactor().Compact(context.Background(), 0)

	case "/init":
		if err := s.initAgentsMD(context.Background()); err != nil {
			fmt.Fprintln(os.Stderr, "init failed:", err)
		}

	default:
		fmt.Println("unknown command; try /help")
	}
	return false
}

const initSystemPrompt = `You write concise AGENTS.md files: a short orientation document for AI
coding assistants working in a repository. Cover what the project is, how it
is laid out, and any conventions visible from the file listing. Output only
the markdown document.`

// initAgentsMD asks the model for a project orientation document and writes
// it to AGENTS.md in the working directory.
func (s *session) initAgentsMD(ctx context.Context) error {
	listing, err := listWorkdir(s.workdir)
	if err != nil {
		return err
	}
	msg, _, err := s.provider.Complete(ctx, &agent.Request{
		System: initSystemPrompt,
		Messages: []models.Message{{
			Role:    models.RoleUser,
			Content: "Write an AGENTS.md for the project with this file listing:\n\n" + listing,
		}},
	})
	if err != nil {
		return err
	}
	if strings.TrimSpace(msg.Content) == "" {
		return errors.New("model returned an empty document")
	}

	path := filepath.Join(s.workdir, "AGENTS.md")
	if err := os.WriteFile(path, []byte(msg.Content), 0o644); err != nil {
		return err
	}
	fmt.Println("wrote", path)
	return nil
}

func listWorkdir(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			name += "/"
		}
		b.WriteString(name)
		b.WriteString("\n")
	}
	return b.String(), nil
}
