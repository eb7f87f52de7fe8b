// Package event publishes the ordered per-suggestion verification trace.
package event

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gserafini/reentry-map/internal/model"
)

// Sink persists trace events. Satisfied by store.Store.
type Sink interface {
	AppendEvent(ctx context.Context, ev *model.VerificationEvent) error
}

// Emitter appends typed events to the trace with a per-suggestion monotonic
// sequence. Safe for concurrent use.
type Emitter struct {
	sink Sink

	mu   sync.Mutex
	seqs map[string]int
}

// NewEmitter creates an Emitter writing to the given sink.
func NewEmitter(sink Sink) *Emitter {
	return &Emitter{
		sink: sink,
		seqs: make(map[string]int),
	}
}

// Emit appends one event. Sink failures are logged, not propagated: a lost
// trace entry must never abort a verification pass.
func (e *Emitter) Emit(ctx context.Context, suggestionID string, typ model.EventType, data map[string]any) {
	e.mu.Lock()
	e.seqs[suggestionID]++
	seq := e.seqs[suggestionID]
	e.mu.Unlock()

	ev := &model.VerificationEvent{
		ID:           uuid.New().String(),
		SuggestionID: suggestionID,
		Seq:          seq,
		Type:         typ,
		Data:         data,
		CreatedAt:    time.Now().UTC(),
	}

	if err := e.sink.AppendEvent(ctx, ev); err != nil {
		zap.L().Warn("event: append failed",
			zap.String("suggestion_id", suggestionID),
			zap.String("event_type", string(typ)),
			zap.Error(err),
		)
	}
}

// Started opens the trace for a suggestion.
func (e *Emitter) Started(ctx context.Context, suggestionID string, vtype model.VerificationType, agentVersion string) {
	e.Emit(ctx, suggestionID, model.EventStarted, map[string]any{
		"verification_type": string(vtype),
		"agent_version":     agentVersion,
	})
}

// Progress reports one completed check.
func (e *Emitter) Progress(ctx context.Context, suggestionID string, check model.CheckName, result model.CheckResult) {
	data := map[string]any{
		"check": string(check),
		"pass":  result.Pass,
	}
	if result.LatencyMS > 0 {
		data["latency_ms"] = result.LatencyMS
	}
	if result.Error != "" {
		data["error"] = result.Error
	}
	e.Emit(ctx, suggestionID, model.EventProgress, data)
}

// Cost reports spend from one paid API invocation.
func (e *Emitter) Cost(ctx context.Context, suggestionID string, entry model.CostEntry) {
	e.Emit(ctx, suggestionID, model.EventCost, map[string]any{
		"provider":      entry.Provider,
		"model":         entry.Model,
		"feature":       entry.Feature,
		"input_tokens":  entry.InputTokens,
		"output_tokens": entry.OutputTokens,
		"cost_usd":      entry.CostUSD,
	})
}

// Completed closes the trace with the pipeline's decision.
func (e *Emitter) Completed(ctx context.Context, suggestionID string, decision model.Decision, score float64, reason string) {
	e.Emit(ctx, suggestionID, model.EventCompleted, map[string]any{
		"decision": string(decision),
		"score":    score,
		"reason":   reason,
	})
}

// Failed closes the trace after a pipeline-level fault.
func (e *Emitter) Failed(ctx context.Context, suggestionID string, cause error) {
	msg := "unknown failure"
	if cause != nil {
		msg = cause.Error()
	}
	e.Emit(ctx, suggestionID, model.EventFailed, map[string]any{
		"error": msg,
	})
}

// ValidateOrder checks that a stored trace is well formed: sequence strictly
// increasing and exactly one terminal event after a started event. Used by
// trace consumers and tests.
func ValidateOrder(events []model.VerificationEvent) error {
	lastSeq := 0
	terminals := 0
	for i, ev := range events {
		if ev.Seq <= lastSeq {
			return eris.Errorf("event: non-monotonic seq %d at index %d", ev.Seq, i)
		}
		lastSeq = ev.Seq
		if ev.Type.IsTerminal() {
			terminals++
		}
	}
	if len(events) > 0 && terminals != 1 {
		return eris.Errorf("event: expected exactly one terminal event, got %d", terminals)
	}
	return nil
}
