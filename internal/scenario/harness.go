package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/transhist/internal/config"
	"github.com/roach88/transhist/internal/history"
	"github.com/roach88/transhist/internal/merge"
	"github.com/roach88/transhist/internal/store"
	"github.com/roach88/transhist/internal/testutil"
)

// Outcome cases reported in traces.
const (
	CaseSuccess         = "Success"
	CaseAlreadyMerged   = "AlreadyMerged"
	CaseRecordNotFound  = "RecordNotFound"
	CaseUniqueViolation = "UniqueViolation"
	CaseSameRecord      = "SameRecord"
	CaseSourceArchived  = "SourceArchived"
	CaseInvalidPair     = "InvalidPair"
	CaseError           = "Error"
)

// stepTick is how far the fake clock moves per flow step.
const stepTick = time.Second

// Harness executes one scenario against one session.
type Harness struct {
	session *history.Session
	clock   *testutil.FakeClock
	logger  *slog.Logger
	seq     int64
}

// Run executes a scenario in dir, which must be empty or absent.
//
// Execution flow:
// 1. Seed the store file with the scenario's raw documents
// 2. Open a session and wait for every migration
// 3. Execute flow steps, checking expect clauses against actual outcomes
// 4. Evaluate assertions against the trace and the store
func Run(ctx context.Context, scenario *Scenario, dir string) (*Result, error) {
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.History.Merge.LastRecordsToScan = scenario.Config.LastRecordsToScan
	cfg.History.Sync.BackupOnApplicationStart = false
	cfg.History.Sync.BackupRegularly = false

	if err := seed(ctx, cfg.DatabasePath(), scenario.Seed); err != nil {
		return nil, fmt.Errorf("failed to seed store: %w", err)
	}

	clock := testutil.NewFakeClock(testutil.Epoch)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	session, err := history.Open(ctx, cfg, history.WithClock(clock.Now), history.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	if err := session.Wait(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	h := &Harness{session: session, clock: clock, logger: logger}
	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	for _, msg := range EvaluateAssertions(ctx, result, scenario.Assertions, session.Store()) {
		result.AddError(msg)
	}
	return result, nil
}

func seed(ctx context.Context, path string, docs []map[string]any) error {
	if len(docs) == 0 {
		return nil
	}
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	for i, doc := range docs {
		if _, err := st.Insert(ctx, store.Document(doc)); err != nil {
			st.Close()
			return fmt.Errorf("seed[%d]: %w", i, err)
		}
	}
	return st.Close()
}

func (h *Harness) next() int64 {
	h.seq++
	return h.seq
}

func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		h.clock.Advance(stepTick)

		args, err := toJSONValue(step.Args)
		if err != nil {
			return fmt.Errorf("flow step %d: args: %w", i, err)
		}
		result.AddInvocationTrace(step.Invoke, args, h.next())

		action := actions[step.Invoke]
		out, actionErr := action(ctx, h.session, step.Args)

		outputCase := classify(actionErr)
		if actionErr == nil && out.alreadyMerged {
			outputCase = CaseAlreadyMerged
		}

		var traceResult any
		if out.result != nil {
			traceResult, err = toJSONValue(out.result)
			if err != nil {
				return fmt.Errorf("flow step %d: result: %w", i, err)
			}
		}
		result.AddCompletionTrace(outputCase, traceResult, h.next())

		h.checkExpect(i, step, outputCase, traceResult, actionErr, result)

		h.logger.Info("flow step completed",
			"step", i,
			"action", step.Invoke,
			"output_case", outputCase,
		)
	}
	return nil
}

func (h *Harness) checkExpect(i int, step FlowStep, outputCase string, actual any, actionErr error, result *Result) {
	if step.Expect == nil {
		if outputCase != CaseSuccess && outputCase != CaseAlreadyMerged {
			result.AddError(fmt.Sprintf("flow[%d] %s: unexpected failure: %v", i, step.Invoke, actionErr))
		}
		return
	}

	if outputCase != step.Expect.Case {
		result.AddError(fmt.Sprintf("flow[%d] %s: expected case %s, got %s (%v)",
			i, step.Invoke, step.Expect.Case, outputCase, actionErr))
		return
	}

	if len(step.Expect.Result) == 0 {
		return
	}
	expected, err := toJSONValue(step.Expect.Result)
	if err != nil {
		result.AddError(fmt.Sprintf("flow[%d] %s: expect.result: %v", i, step.Invoke, err))
		return
	}
	actualMap, _ := actual.(map[string]any)
	if !matchArgs(actualMap, expected.(map[string]any)) {
		result.AddError(fmt.Sprintf("flow[%d] %s: expected result %v, got %v", i, step.Invoke, expected, actual))
	}
}

func classify(err error) string {
	switch {
	case err == nil:
		return CaseSuccess
	case errors.Is(err, merge.ErrRecordNotFound):
		return CaseRecordNotFound
	case errors.Is(err, store.ErrUniqueViolation):
		return CaseUniqueViolation
	case errors.Is(err, merge.ErrSameRecord):
		return CaseSameRecord
	case errors.Is(err, merge.ErrSourceArchived):
		return CaseSourceArchived
	case errors.Is(err, merge.ErrInvalidPair):
		return CaseInvalidPair
	default:
		return CaseError
	}
}

// toJSONValue maps YAML- or Go-built values onto the generic JSON model
// (float64 numbers, []any, map[string]any) so they compare with DeepEqual.
func toJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
