package turn

import (
	"context"
	"fmt"
	"time"

	"github.com/lowkaihon/agentd/internal/llm"
	"github.com/lowkaihon/agentd/internal/session"
	"github.com/lowkaihon/agentd/internal/tools"
	"github.com/lowkaihon/agentd/internal/workspace"
)

// maxIterationsPerTurn bounds model round-trips within one tool loop (one
// DIRECT turn, one PLAN round, or one BUILD step) to prevent a runaway
// tool-use cycle from looping forever.
const maxIterationsPerTurn = 50

// Engine drives the Turn Engine state machine (spec §4.D) for one session
// at a time. It holds no per-session state itself — everything it needs
// lives on the *session.Session passed into each call — so one Engine
// instance serves every session the Manager knows about.
type Engine struct {
	mgr     *session.Manager
	askUser tools.AskUserFunc // the Transport's blocking clarification handler; may be nil
}

// NewEngine creates an Engine that persists sessions through mgr and
// resolves ask_user suspensions through askUser.
func NewEngine(mgr *session.Manager, askUser tools.AskUserFunc) *Engine {
	return &Engine{mgr: mgr, askUser: askUser}
}

// loopOutcome reports how one tool loop ended, so callers know whether to
// proceed to review, stop for a plan decision, or unwind for cancellation.
type loopOutcome int

const (
	outcomeDone loopOutcome = iota
	outcomeSuspendedPlan
	outcomeCancelled
)

// wireTools (re-)binds the scout, ask_user, and task callbacks on s.Tools
// to this engine instance and session. Idempotent — cheap enough to call
// at the top of every entrypoint rather than tracked separately.
func (e *Engine) wireTools(s *session.Session, emit EventFunc) {
	s.Tools.SetScoutFunc(func(ctx context.Context, task string) (string, error) {
		return runScout(ctx, s.Client, s.Workspace, task, emit)
	})
	s.Tools.SetAskUserFunc(func(ctx context.Context, toolUseID, question string, options []string) (string, error) {
		emit(evUserQuestion(toolUseID, question, "", options))
		if e.askUser == nil {
			return "", fmt.Errorf("ask_user has no handler configured")
		}
		return e.askUser(ctx, toolUseID, question, options)
	})
	s.Tools.SetTaskCallbacks(taskCallbacksFor(s, emit))
}

// finishTurn is deferred by every exported entrypoint: it clears
// agent_running and flushes the session to disk before control returns to
// the Transport Bridge. Because it runs deferred, the flush happens after
// the entrypoint has emitted its done/cancelled/error event, not before.
func (e *Engine) finishTurn(s *session.Session) {
	s.SetRunning(false)
	s.SetCancel(nil)
	e.mgr.FlushSave(s)
}

// RunTurn starts a brand-new turn from a user message. Callers (the
// Transport Bridge) must have already verified !s.IsRunning() &&
// !s.AwaitingDecision() and called Manager.TryStart(s) before invoking
// this.
func (e *Engine) RunTurn(parentCtx context.Context, s *session.Session, userText string, images []string, emit EventFunc) {
	ctx, cancel := context.WithCancel(parentCtx)
	s.SetCancel(cancel)
	defer cancel()
	defer e.finishTurn(s)

	e.wireTools(s, emit)
	s.AppendUser(userText, images)
	e.mgr.ScheduleSave(s)

	mode, stripped := SelectMode(userText)
	if stripped == "" {
		stripped = userText
	}

	if mode == ModeDirect {
		e.runDirect(ctx, s, emit)
		return
	}
	e.runScoutAndPlan(ctx, s, stripped, emit)
}

// Replan appends the user's feedback as a new message and re-enters
// SCOUT→PLAN. Called when the client sends replan{content}.
func (e *Engine) Replan(parentCtx context.Context, s *session.Session, feedback string, emit EventFunc) {
	ctx, cancel := context.WithCancel(parentCtx)
	s.SetCancel(cancel)
	defer cancel()
	defer e.finishTurn(s)

	e.wireTools(s, emit)
	s.ClearPendingPlan()
	s.AppendUser(feedback, nil)
	e.mgr.ScheduleSave(s)

	e.runScoutAndPlan(ctx, s, feedback, emit)
}

// RejectPlan clears the pending plan and ends the turn without building.
func (e *Engine) RejectPlan(s *session.Session, emit EventFunc) {
	defer e.finishTurn(s)
	s.ClearPendingPlan()
	emit(evPlanRejected())
}

// runScoutAndPlan runs the SCOUT sub-agent then one PLAN round, suspending
// once the model proposes a plan via write_tasks. Only ever reached for
// ModeScoutPlan turns (mode selection already happened in RunTurn/Replan).
func (e *Engine) runScoutAndPlan(ctx context.Context, s *session.Session, task string, emit EventFunc) {
	emit(evPhaseStart("scout"))
	start := time.Now()
	summary, err := runScout(ctx, s.Client, s.Workspace, task, emit)
	emit(evPhaseEnd("scout", time.Since(start).Milliseconds()))
	if err != nil {
		if ctx.Err() != nil {
			emit(evCancelled())
			return
		}
		emit(evError(fmt.Sprintf("scout failed: %s", err)))
		return
	}

	emit(evPhaseStart("plan"))
	start = time.Now()

	convo := historyToLLM(s.HistorySnapshot())
	convo = append(convo, llm.TextMessage("user", "Workspace scout summary:\n\n"+summary))

	outcome, _, err := e.runToolLoop(ctx, s, convo, "plan", emit)
	emit(evPhaseEnd("plan", time.Since(start).Milliseconds()))

	switch {
	case err != nil:
		if ctx.Err() != nil {
			emit(evCancelled())
			return
		}
		emit(evStreamFailed(err.Error()))
	case outcome == outcomeCancelled:
		emit(evCancelled())
	case outcome == outcomeSuspendedPlan:
		// Plan proposed; already emitted, turn suspends for a client decision.
	default:
		// Model finished a PLAN round without proposing a plan at all.
		emit(evNoPlan())
	}
}

// Build applies an approved (optionally edited) plan and runs BUILD. steps,
// if non-empty, overrides the proposed plan's step text.
func (e *Engine) Build(parentCtx context.Context, s *session.Session, steps []string, emit EventFunc) {
	ctx, cancel := context.WithCancel(parentCtx)
	s.SetCancel(cancel)
	defer cancel()
	defer e.finishTurn(s)

	e.wireTools(s, emit)

	plan := s.PendingPlanSnapshot()
	if plan == nil {
		emit(evError("build requested with no pending plan"))
		return
	}
	if len(steps) == 0 {
		steps = plan.Steps
	}
	todos := s.SetTodos(steps)
	emit(evTodosUpdated(todosToMaps(todos)))
	s.ClearPendingPlan()

	e.runBuild(ctx, s, steps, emit)
}

// runBuild iterates the approved steps, one checkpoint and one tool loop
// per step, then computes the cumulative review.
func (e *Engine) runBuild(ctx context.Context, s *session.Session, steps []string, emit EventFunc) {
	emit(evPhaseStart("build"))
	start := time.Now()
	total := len(steps)

	for i, step := range steps {
		if ctx.Err() != nil {
			emit(evPhaseEnd("build", time.Since(start).Milliseconds()))
			emit(evCancelled())
			return
		}

		stepIdx := i
		cp := s.Workspace.Checkpoints().Open(fmt.Sprintf("step:%d", i+1), fmt.Sprintf("step:%d", i+1), &stepIdx)
		s.Tools.SetCheckpoint(cp)
		emit(evPlanStepProgress(i+1, total))

		s.AppendUser(fmt.Sprintf("Begin step %d of %d: %s", i+1, total, step), nil)

		convo := historyToLLM(s.HistorySnapshot())
		outcome, _, err := e.runToolLoop(ctx, s, convo, "build", emit)
		if err != nil {
			emit(evPhaseEnd("build", time.Since(start).Milliseconds()))
			if ctx.Err() != nil {
				emit(evCancelled())
				return
			}
			emit(evStreamFailed(err.Error()))
			return
		}
		if outcome == outcomeCancelled {
			emit(evPhaseEnd("build", time.Since(start).Milliseconds()))
			emit(evCancelled())
			return
		}
		if outcome == outcomeSuspendedPlan {
			// The model re-proposed the plan mid-build; already emitted.
			emit(evPhaseEnd("build", time.Since(start).Milliseconds()))
			return
		}

		s.Workspace.Checkpoints().Seal(cp)
		s.AddCheckpoint(session.CheckpointMeta{
			ID:        cp.ID,
			Label:     cp.Label,
			StepIndex: &stepIdx,
			Paths:     pathsOf(cp),
			CreatedAt: cp.CreatedAt,
		})
	}

	emit(evPhaseEnd("build", time.Since(start).Milliseconds()))
	e.finishReview(s, emit)
}

// runDirect runs one continuous tool loop under a single implicit "turn"
// checkpoint, then reviews any resulting changes like BUILD does.
func (e *Engine) runDirect(ctx context.Context, s *session.Session, emit EventFunc) {
	emit(evPhaseStart("direct"))
	start := time.Now()

	cp := s.Workspace.Checkpoints().Open("turn", "turn", nil)
	s.Tools.SetCheckpoint(cp)

	convo := historyToLLM(s.HistorySnapshot())
	outcome, _, err := e.runToolLoop(ctx, s, convo, "direct", emit)
	emit(evPhaseEnd("direct", time.Since(start).Milliseconds()))

	switch {
	case err != nil:
		if ctx.Err() != nil {
			emit(evCancelled())
			return
		}
		emit(evStreamFailed(err.Error()))
		return
	case outcome == outcomeCancelled:
		emit(evCancelled())
		return
	case outcome == outcomeSuspendedPlan:
		return
	}

	s.Workspace.Checkpoints().Seal(cp)
	s.AddCheckpoint(session.CheckpointMeta{
		ID:        cp.ID,
		Label:     cp.Label,
		Paths:     pathsOf(cp),
		CreatedAt: cp.CreatedAt,
	})
	e.finishReview(s, emit)
}

// finishReview computes the cumulative diff across every checkpoint opened
// this turn and either emits it (suspending for keep/revert) or, if
// nothing changed, ends the turn immediately.
func (e *Engine) finishReview(s *session.Session, emit EventFunc) {
	files, pending := buildReview(s.Workspace)
	if len(files) == 0 {
		emit(evNoChanges())
		emit(evDone(usageMap(s)))
		return
	}
	s.SetPendingDiffs(pending)
	emit(evDiff(files, true))
}

// Keep drops every baseline recorded this turn (the files stay as written)
// and ends the turn.
func (e *Engine) Keep(s *session.Session, emit EventFunc) {
	defer e.finishTurn(s)
	s.Workspace.Checkpoints().Drop()
	s.ClearCheckpoints()
	s.ClearPendingDiffs()
	emit(evKept())
	emit(evDone(usageMap(s)))
}

// Revert restores every path touched this turn to its earliest recorded
// baseline and ends the turn.
func (e *Engine) Revert(s *session.Session, emit EventFunc) {
	defer e.finishTurn(s)
	paths, err := s.Workspace.Checkpoints().RestoreCumulative(s.Workspace.Root())
	if err != nil {
		emit(evCheckpointError(err.Error()))
		return
	}
	s.ClearCheckpoints()
	s.ClearPendingDiffs()
	emit(evReverted(paths))
	emit(evDone(usageMap(s)))
}

// RevertToStep restores everything touched after the given 1-indexed step,
// discarding those later checkpoints, and recomputes the review over what
// remains pending (earlier steps' changes are still awaiting keep/revert).
func (e *Engine) RevertToStep(s *session.Session, step int, emit EventFunc) {
	defer e.finishTurn(s)
	paths, ok, err := s.Workspace.Checkpoints().RestoreFrom(s.Workspace.Root(), step)
	if err != nil {
		emit(evCheckpointError(err.Error()))
		return
	}
	if !ok {
		emit(evRevertedToStep(step, nil, true))
		return
	}
	s.TruncateCheckpoints(step)
	files, pending := buildReview(s.Workspace)
	emit(evRevertedToStep(step, paths, false))
	if len(files) == 0 {
		s.ClearPendingDiffs()
		emit(evNoChanges())
		emit(evDone(usageMap(s)))
		return
	}
	s.SetPendingDiffs(pending)
}

// runToolLoop drives round-trips for one phase (plan/build/direct) of one
// session until the model stops calling tools, it suspends for a plan
// decision, the turn is cancelled, or maxIterationsPerTurn is exceeded.
// convo is the ephemeral, phase-scoped conversation seed (the durable
// session history converted to llm.Message form, plus any phase-specific
// addendum such as the scout summary); it is never written back to session
// history directly — each round's assistant output and tool results are
// persisted via session.AppendAssistant instead, keeping durable history
// exactly what the model actually said and the Pairing invariant intact.
func (e *Engine) runToolLoop(ctx context.Context, s *session.Session, convo []llm.Message, phase string, emit EventFunc) (loopOutcome, *llm.Message, error) {
	defs := s.Tools.Definitions()
	messages := append([]llm.Message{llm.TextMessage("system", systemPrompt(s, phase))}, convo...)

	var lastMsg *llm.Message

	for iter := 0; iter < maxIterationsPerTurn; iter++ {
		if ctx.Err() != nil {
			return outcomeCancelled, lastMsg, nil
		}

		if hist := s.HistorySnapshot(); needsCompaction(hist, defs, 0, s.ContextWindow) {
			if compacted, cerr := compact(ctx, s.Client, hist, emit); cerr == nil {
				s.ReplaceHistory(compacted)
			}
		}

		events, err := s.Client.Stream(ctx, messages, defs)
		if err != nil {
			return outcomeDone, lastMsg, fmt.Errorf("model stream: %w", err)
		}

		emit(evTextStart())
		msg, _, usage, err := llm.AccumulateStream(events, func(delta string) { emit(evText(delta)) })
		emit(evTextEnd())
		if err != nil {
			return outcomeDone, lastMsg, fmt.Errorf("model accumulate: %w", err)
		}
		lastMsg = msg

		pct := ContextUsage(s.HistorySnapshot(), defs, usage.TotalTokens, s.ContextWindow)
		s.UpdateTokenStats(usage.PromptTokens, usage.CompletionTokens, 0, pct)

		messages = append(messages, *msg)

		if len(msg.ToolCalls) == 0 {
			s.AppendAssistant(blocksFromMessage(msg))
			return outcomeDone, lastMsg, nil
		}

		var planCalls, normalCalls []llm.ToolCall
		for _, tc := range msg.ToolCalls {
			if tc.Function.Name == "write_tasks" {
				planCalls = append(planCalls, tc)
			} else {
				normalCalls = append(normalCalls, tc)
			}
		}

		if len(planCalls) > 0 {
			outcome := e.handlePlanProposal(s, msg, planCalls, normalCalls, emit)
			return outcome, lastMsg, nil
		}

		results := dispatchToolCalls(ctx, s.Tools, normalCalls, emit)
		blocks := blocksFromMessage(msg)
		blocks = append(blocks, resultBlocks(results)...)
		s.AppendAssistant(blocks)
		messages = append(messages, resultsToMessages(results)...)

		if ctx.Err() != nil {
			return outcomeCancelled, lastMsg, nil
		}
	}

	return outcomeDone, lastMsg, fmt.Errorf("maximum tool iterations exceeded")
}

// handlePlanProposal synthesizes a paired tool_result for a write_tasks
// call (so the Pairing invariant holds while the turn suspends for a
// decision, per spec §8), closes out any other calls in the same round
// defensively, and stores the pending plan. write_tasks is intercepted
// here rather than routed through dispatchToolCalls/registry.Execute: it
// is the plan-proposal mechanism, not an ordinary tool, and its approval
// is always a full-turn suspension regardless of phase.
func (e *Engine) handlePlanProposal(s *session.Session, msg *llm.Message, planCalls, normalCalls []llm.ToolCall, emit EventFunc) loopOutcome {
	blocks := blocksFromMessage(msg)
	tc := planCalls[0]

	emit(evToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments))
	steps, planText, err := parsePlanProposal(tc.Function.Arguments)
	if err != nil {
		emit(evToolResult(tc.ID, false, err.Error()))
		blocks = append(blocks, session.Block{Kind: session.BlockToolResult, ID: tc.ID, Content: err.Error(), Success: false})
		for _, other := range append(planCalls[1:], normalCalls...) {
			const skipped = "skipped: plan proposal was invalid this round"
			emit(evToolCall(other.ID, other.Function.Name, other.Function.Arguments))
			emit(evToolResult(other.ID, false, skipped))
			blocks = append(blocks, session.Block{Kind: session.BlockToolResult, ID: other.ID, Content: skipped, Success: false})
		}
		s.AppendAssistant(blocks)
		emit(evError(fmt.Sprintf("invalid plan proposal: %s", err)))
		return outcomeDone
	}

	const synthetic = "Plan proposed. Awaiting user approval (build/replan/reject_plan)."
	emit(evToolResult(tc.ID, true, synthetic))
	blocks = append(blocks, session.Block{Kind: session.BlockToolResult, ID: tc.ID, Content: synthetic, Success: true})

	for _, other := range append(planCalls[1:], normalCalls...) {
		const skipped = "skipped: superseded by this round's plan proposal"
		emit(evToolCall(other.ID, other.Function.Name, other.Function.Arguments))
		emit(evToolResult(other.ID, false, skipped))
		blocks = append(blocks, session.Block{Kind: session.BlockToolResult, ID: other.ID, Content: skipped, Success: false})
	}

	s.AppendAssistant(blocks)
	s.SetPendingPlan(&session.PendingPlan{Steps: steps, PlanText: planText})
	emit(evPlan(steps, planText, ""))
	return outcomeSuspendedPlan
}

// pathsOf lists the relative paths baselined by a checkpoint, for its
// durable CheckpointMeta record.
func pathsOf(cp *workspace.Checkpoint) []string {
	paths := make([]string, 0, len(cp.Files))
	for p := range cp.Files {
		paths = append(paths, p)
	}
	return paths
}

// usageMap reports the session's running token totals for a done event.
func usageMap(s *session.Session) map[string]any {
	s.Lock()
	defer s.Unlock()
	return map[string]any{
		"input_tokens":      s.TokenStats.InputTokens,
		"output_tokens":     s.TokenStats.OutputTokens,
		"context_usage_pct": s.TokenStats.ContextUsagePct,
	}
}
