package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jimihq/jimi/internal/session"
	"github.com/jimihq/jimi/internal/wire"
	"github.com/jimihq/jimi/pkg/models"
)

// Config bounds one executor run.
type Config struct {
	// MaxSteps limits the loop iterations per run. Default: 50.
	MaxSteps int

	// MaxTokens caps each LLM response. Default: 4096.
	MaxTokens int

	// LLMTimeout bounds a single LLM request. Default: 30 minutes.
	LLMTimeout time.Duration
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{
		MaxSteps:   50,
		MaxTokens:  4096,
		LLMTimeout: 30 * time.Minute,
	}
}

func (c Config) sanitized() Config {
	d := DefaultConfig()
	if c.MaxSteps <= 0 {
		c.MaxSteps = d.MaxSteps
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = d.LLMTimeout
	}
	return c
}

// maxConsecutiveEmptySteps forces completion once the model keeps replying
// without tool calls this many times in a row.
const maxConsecutiveEmptySteps = 5

// Executor drives the think, call tools, observe loop for one session.
//
// Each step publishes StepBegin, maybe compacts, checkpoints the context,
// streams one LLM response through the accumulator, appends the assistant
// message, and either dispatches its tool calls and continues or terminates.
// All UI output flows through the event bus; the executor itself never
// prints.
type Executor struct {
	provider   Provider
	store      *session.Context
	registry   *Registry
	gate       *Gate
	bus        *wire.Bus
	dispatcher *Dispatcher
	compactor  *Compactor
	spec       *Spec
	vars       map[string]string
	config     Config

	consecutiveEmpty int
	stepsInTask      int
	tokensInTask     int
	toolsUsed        []string
	toolsSeen        map[string]struct{}
}

// NewExecutor assembles an executor from its collaborators.
func NewExecutor(provider Provider, store *session.Context, registry *Registry, gate *Gate, bus *wire.Bus, spec *Spec, vars map[string]string, config Config) *Executor {
	return &Executor{
		provider:   provider,
		store:      store,
		registry:   registry,
		gate:       gate,
		bus:        bus,
		dispatcher: NewDispatcher(registry, gate, bus, store),
		compactor:  NewCompactor(provider, store, bus),
		spec:       spec,
		vars:       vars,
		config:     config.sanitized(),
		toolsSeen:  make(map[string]struct{}),
	}
}

// Compactor exposes the session compactor for the /compact meta-command.
func (e *Executor) Compactor() *Compactor {
	return e.compactor
}

// Store exposes the context store for meta-commands and status display.
func (e *Executor) Store() *session.Context {
	return e.store
}

// Stats reports per-task observability counters: steps run, tokens used,
// and the distinct tools invoked in invocation order.
func (e *Executor) Stats() (steps, tokens int, tools []string) {
	return e.stepsInTask, e.tokensInTask, append([]string(nil), e.toolsUsed...)
}

// ResetCounters clears the empty-step counter, used by /reset.
func (e *Executor) ResetCounters() {
	e.consecutiveEmpty = 0
}

// Execute appends the user input and runs the loop until a termination
// condition fires. The returned cause mirrors the published Done event;
// the error carries detail for fatal causes only.
func (e *Executor) Execute(ctx context.Context, parts []models.ContentPart) (models.DoneCause, error) {
	if len(e.store.Checkpoints()) == 0 {
		e.store.Checkpoint()
	}
	if err := e.store.Append(models.UserMessage(parts)); err != nil {
		return e.done(models.DoneFatalError, err.Error()), err
	}
	return e.run(ctx)
}

func (e *Executor) run(ctx context.Context) (models.DoneCause, error) {
	for step := 1; ; step++ {
		if step > e.config.MaxSteps {
			return e.done(models.DoneMaxSteps, ""), ErrMaxSteps
		}
		if ctx.Err() != nil {
			return e.done(models.DoneCancelled, ""), ErrCancelled
		}

		e.bus.Publish(models.Event{Type: models.EventStepBegin, Step: step})
		metricSteps.Inc()
		e.stepsInTask++

		if e.compactor.ShouldCompact() {
			e.compactor.Compact(ctx, step)
		}
		e.store.Checkpoint()

		msg, interrupted, err := e.streamStep(ctx, step)
		if interrupted {
			e.bus.Publish(models.Event{Type: models.EventStepInterrupted, Step: step})
			return e.done(models.DoneCancelled, ""), ErrCancelled
		}
		if err != nil {
			serr := &StreamError{Step: step, Cause: err}
			slog.Error("llm stream failed", "step", step, "error", err)
			return e.done(models.DoneFatalError, serr.Error()), serr
		}

		if len(msg.ToolCalls) == 0 {
			e.consecutiveEmpty++
			e.bus.Publish(models.Event{Type: models.EventStepEnd, Step: step})
			if e.consecutiveEmpty >= maxConsecutiveEmptySteps {
				return e.done(models.DoneNatural, "forced completion"), nil
			}
			return e.done(models.DoneNatural, ""), nil
		}

		e.consecutiveEmpty = 0
		for _, tc := range msg.ToolCalls {
			if _, ok := e.toolsSeen[tc.Name]; !ok {
				e.toolsSeen[tc.Name] = struct{}{}
				e.toolsUsed = append(e.toolsUsed, tc.Name)
			}
		}

		terminate, derr := e.dispatcher.Run(ctx, step, msg.ToolCalls)
		e.bus.Publish(models.Event{Type: models.EventStepEnd, Step: step})
		if derr != nil {
			return e.done(models.DoneFatalError, derr.Error()), derr
		}
		if terminate {
			return e.done(models.DoneNatural, "repeated errors"), nil
		}
	}
}

// streamStep issues one streaming LLM call, republishes deltas, appends the
// finalised assistant message, and accounts tokens. interrupted reports a
// user cancellation observed at a chunk boundary; in that case nothing was
// appended for this step.
func (e *Executor) streamStep(ctx context.Context, step int) (models.Message, bool, error) {
	llmCtx, cancel := context.WithTimeout(ctx, e.config.LLMTimeout)
	defer cancel()

	req := &Request{
		System:    e.spec.RenderPrompt(e.vars),
		Messages:  e.store.Snapshot(),
		Tools:     e.registry.SchemasFor(e.spec.AllowedTools, e.spec.ExcludedTools),
		MaxTokens: e.config.MaxTokens,
	}

	chunks, err := e.provider.Stream(llmCtx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return models.Message{}, true, nil
		}
		return models.Message{}, false, err
	}

	acc := NewAccumulator()
	for chunk := range chunks {
		if ctx.Err() != nil {
			return models.Message{}, true, nil
		}
		if chunk.Err != nil {
			if errors.Is(chunk.Err, context.Canceled) && ctx.Err() != nil {
				return models.Message{}, true, nil
			}
			return models.Message{}, false, chunk.Err
		}
		if chunk.Kind == ChunkContent && chunk.Text != "" {
			kind := models.DeltaNormal
			if chunk.Reasoning {
				kind = models.DeltaReasoning
			}
			e.bus.Publish(models.Event{
				Type:  models.EventContentDelta,
				Step:  step,
				Delta: &models.DeltaPayload{Text: chunk.Text, Kind: kind},
			})
		}
		acc.Feed(chunk)
	}
	if ctx.Err() != nil {
		return models.Message{}, true, nil
	}

	msg, droppedCalls := acc.Finalize()
	for _, dc := range droppedCalls {
		slog.Warn("dropping partial tool call without a name", "id", dc.ID)
		e.bus.Publish(models.Event{
			Type: models.EventToolResult,
			Step: step,
			Tool: &models.ToolPayload{
				ToolCallID: dc.ID,
				OK:         false,
				Message:    "partial tool call had no function name",
			},
		})
	}

	if err := e.store.Append(msg); err != nil {
		return models.Message{}, false, err
	}

	usage := acc.Usage()
	if usage != nil {
		total := usage.PromptTokens + usage.CompletionTokens
		if usage.TotalTokens > 0 {
			total = usage.TotalTokens
		}
		e.store.UpdateTokenCount(total - e.store.TokenCount())
		e.tokensInTask += usage.CompletionTokens
		metricTokens.WithLabelValues("prompt").Add(float64(usage.PromptTokens))
		metricTokens.WithLabelValues("completion").Add(float64(usage.CompletionTokens))
	} else {
		usage = &models.Usage{TotalTokens: e.store.TokenCount()}
	}
	e.bus.Publish(models.Event{Type: models.EventTokenUsage, Step: step, Usage: usage})

	return msg, false, nil
}

func (e *Executor) done(cause models.DoneCause, reason string) models.DoneCause {
	e.bus.Publish(models.Event{
		Type: models.EventDone,
		Done: &models.DonePayload{Cause: cause, Reason: reason},
	})
	return cause
}
