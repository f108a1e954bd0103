package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/jimihq/jimi/internal/wire"
	"github.com/jimihq/jimi/pkg/models"
)

// renderer consumes session events and draws them on the terminal. It also
// answers approval prompts by asking the user on stdin, which makes it the
// session's human-in-the-loop surface.
type renderer struct {
	out     io.Writer
	in      *bufio.Reader
	verbose bool
	done    chan struct{}

	// needsNewline tracks whether streamed text left the cursor mid-line.
	needsNewline bool
}

// startRenderer begins consuming sub in a goroutine. Wait returns once the
// subscriber's channel closes, which happens when the bus shuts down.
func startRenderer(sub *wire.Subscriber, in io.Reader, out io.Writer, verbose bool) *renderer {
	r := &renderer{
		out:     out,
		in:      bufio.NewReader(in),
		verbose: verbose,
		done:    make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		for e := range sub.C() {
			r.render(e)
		}
	}()
	return r
}

// Wait blocks until the event stream ends.
func (r *renderer) Wait() {
	<-r.done
}

func (r *renderer) render(e models.Event) {
	switch e.Type {
	case models.EventContentDelta:
		if e.Delta.Kind == models.DeltaReasoning && !r.verbose {
			return
		}
		fmt.Fprint(r.out, e.Delta.Text)
		r.needsNewline = !strings.HasSuffix(e.Delta.Text, "\n")

	case models.EventToolCallAnnounce:
		r.breakLine()
		if r.verbose {
			fmt.Fprintf(r.out, "* %s %s\n", e.Tool.Call.Name, e.Tool.Call.Arguments)
		} else {
			fmt.Fprintf(r.out, "* %s\n", e.Tool.Call.Name)
		}

	case models.EventToolResult:
		if !r.verbose {
			return
		}
		status := "ok"
		if !e.Tool.OK {
			status = "error"
		}
		fmt.Fprintf(r.out, "  -> %s: %s\n", status, e.Tool.Preview)

	case models.EventApprovalRequested:
		r.breakLine()
		e.Approval.Reply <- r.promptApproval(e.Approval)

	case models.EventTokenUsage:
		if r.verbose && e.Usage != nil {
			fmt.Fprintf(r.out, "  [tokens: %d prompt, %d completion]\n",
				e.Usage.PromptTokens, e.Usage.CompletionTokens)
		}

	case models.EventCompactionBegin:
		r.breakLine()
		fmt.Fprintln(r.out, "[compacting conversation...]")

	case models.EventStepInterrupted:
		r.breakLine()
		fmt.Fprintln(r.out, "[interrupted]")

	case models.EventDone:
		r.breakLine()
		if e.Done.Reason != "" {
			fmt.Fprintf(r.out, "[done: %s]\n", e.Done.Reason)
		}

	case models.EventSubscriberLagged:
		fmt.Fprintf(r.out, "[renderer lagged, %d events dropped]\n", e.Dropped)
	}
}

func (r *renderer) breakLine() {
	if r.needsNewline {
		fmt.Fprintln(r.out)
		r.needsNewline = false
	}
}

func (r *renderer) promptApproval(a *models.ApprovalPayload) models.ApprovalReply {
	fmt.Fprintf(r.out, "\njimi wants to run: %s\n  %s\n", a.Action, a.Description)
	for {
		fmt.Fprint(r.out, "Allow? [y]es / [a]lways this session / [n]o: ")
		line, err := r.in.ReadString('\n')
		if err != nil {
			return models.ReplyReject
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return models.ReplyApprove
		case "a", "always":
			return models.ReplyApproveSession
		case "n", "no":
			return models.ReplyReject
		}
	}
}
