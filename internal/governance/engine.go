package governance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"salescrm-platform/internal/audit"
	"salescrm-platform/internal/call"
	"salescrm-platform/internal/orgsettings"
	"salescrm-platform/internal/provider"
)

// Engine owns the three cost-governance behaviors: delayed recording start,
// max-duration enforcement, and post-call recording retention.
//
// Every timed action re-checks the provider's live status before acting. The
// timer and the actual call end race independently; trusting the timer alone
// would record or terminate calls that already ended. This re-check is also
// what "cancels" a timer for a call that ended early: the action no-ops, no
// coordinated cancellation needed.
//
// Action failures are logged, never retried, never surfaced: these are cost
// optimizations, not correctness requirements.
type Engine struct {
	calls     call.Store
	provider  provider.VoiceProvider
	settings  *orgsettings.Service
	scheduler Scheduler
	audit     *audit.Service
	log       *slog.Logger
	clock     func() time.Time
}

// NewEngine builds the engine. auditSvc may be nil, which disables the audit
// trail for automated actions.
func NewEngine(calls call.Store, vp provider.VoiceProvider, settings *orgsettings.Service, scheduler Scheduler, auditSvc *audit.Service, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		calls:     calls,
		provider:  vp,
		settings:  settings,
		scheduler: scheduler,
		audit:     auditSvc,
		log:       log,
		clock:     time.Now,
	}
}

// ArmInProgress schedules the recording-start and max-duration timers for a
// call that just transitioned into in_progress. Scheduling failures are
// logged; a lost timer only costs money, never correctness.
func (e *Engine) ArmInProgress(ctx context.Context, c call.Call) {
	cfg, err := e.settings.Resolve(ctx, c.OrganizationID)
	if err != nil {
		e.log.Error("governance settings resolve failed, timers not armed", "call_id", c.ID, "err", err)
		return
	}
	now := e.clock().UTC()

	if cfg.RecordingEnabled {
		t := Timer{
			Kind:   TimerRecordingStart,
			CallID: c.ID,
			FireAt: now.Add(time.Duration(cfg.RecordingDelaySeconds) * time.Second),
		}
		if err := e.scheduler.Schedule(ctx, t); err != nil {
			e.log.Error("recording timer schedule failed", "call_id", c.ID, "err", err)
		}
	}

	ceiling := cfg.MaxCallSecondsForRole(c.UserRole)
	t := Timer{
		Kind:   TimerMaxDuration,
		CallID: c.ID,
		FireAt: now.Add(time.Duration(ceiling) * time.Second),
	}
	if err := e.scheduler.Schedule(ctx, t); err != nil {
		e.log.Error("max-duration timer schedule failed", "call_id", c.ID, "err", err)
	}
}

// HandleTimer dispatches one fired timer.
func (e *Engine) HandleTimer(ctx context.Context, t Timer) {
	switch t.Kind {
	case TimerRecordingStart:
		e.onRecordingTimer(ctx, t.CallID)
	case TimerMaxDuration:
		e.onMaxDurationTimer(ctx, t.CallID)
	default:
		e.log.Warn("unknown governance timer kind", "kind", t.Kind, "call_id", t.CallID)
	}
}

// onRecordingTimer starts recording if, and only if, the call is still live.
// Calls shorter than the delay are deliberately never recorded.
func (e *Engine) onRecordingTimer(ctx context.Context, callID string) {
	c, err := e.calls.FindByID(ctx, callID)
	if err != nil {
		e.log.Warn("recording timer: call lookup failed", "call_id", callID, "err", err)
		return
	}
	if c.Status.Terminal() || c.RecordingID != "" {
		return
	}

	info, err := e.provider.FetchCall(ctx, c.ProviderCallID)
	if err != nil {
		e.log.Warn("recording timer: live status check failed", "call_id", callID, "err", err)
		return
	}
	if !info.Active() {
		return
	}

	rec, err := e.provider.StartRecording(ctx, c.ProviderCallID)
	if err != nil {
		e.log.Warn("recording start failed", "call_id", callID, "err", err)
		return
	}
	if err := e.calls.SetRecording(ctx, callID, rec.RecordingID); err != nil {
		e.log.Error("recording reference write failed", "call_id", callID, "recording_id", rec.RecordingID, "err", err)
		return
	}
	if e.audit != nil {
		if err := e.audit.LogRecordingStarted(ctx, c.OrganizationID, callID, rec.RecordingID); err != nil {
			e.log.Warn("audit append failed", "call_id", callID, "err", err)
		}
	}
	e.log.Info("recording started", "call_id", callID, "recording_id", rec.RecordingID)
}

// onMaxDurationTimer force-terminates a call that outlived its role ceiling.
func (e *Engine) onMaxDurationTimer(ctx context.Context, callID string) {
	c, err := e.calls.FindByID(ctx, callID)
	if err != nil {
		e.log.Warn("max-duration timer: call lookup failed", "call_id", callID, "err", err)
		return
	}
	if c.Status.Terminal() {
		return
	}

	info, err := e.provider.FetchCall(ctx, c.ProviderCallID)
	if err != nil {
		e.log.Warn("max-duration timer: live status check failed", "call_id", callID, "err", err)
		return
	}
	if !info.Active() {
		return
	}

	if err := e.provider.TerminateCall(ctx, c.ProviderCallID); err != nil {
		e.log.Warn("forced termination failed", "call_id", callID, "err", err)
		return
	}
	note := fmt.Sprintf("call force-terminated after reaching the %s duration ceiling", c.UserRole)
	if err := e.calls.SetOutcome(ctx, callID, call.OutcomeMaxDuration, note); err != nil {
		e.log.Error("max-duration outcome write failed", "call_id", callID, "err", err)
	}
	if e.audit != nil {
		if err := e.audit.LogForcedTermination(ctx, c.OrganizationID, callID, note); err != nil {
			e.log.Warn("audit append failed", "call_id", callID, "err", err)
		}
	}
	e.log.Info("call force-terminated at duration ceiling", "call_id", callID, "role", c.UserRole)
}

// EvaluateRetention deletes the recording of a call whose final duration fell
// below the keep-threshold. Runs synchronously in terminal-state handling;
// deletion failures are logged and never block the status update.
func (e *Engine) EvaluateRetention(ctx context.Context, c call.Call) {
	if c.RecordingID == "" {
		return
	}
	cfg, err := e.settings.Resolve(ctx, c.OrganizationID)
	if err != nil {
		e.log.Error("retention settings resolve failed", "call_id", c.ID, "err", err)
		return
	}
	if c.DurationSeconds >= cfg.RecordingKeepSeconds {
		return
	}

	if err := e.provider.DeleteRecording(ctx, c.RecordingID); err != nil {
		e.log.Warn("short-call recording delete failed", "call_id", c.ID, "recording_id", c.RecordingID, "err", err)
		return
	}
	if err := e.calls.ClearRecording(ctx, c.ID); err != nil {
		e.log.Error("recording clear failed", "call_id", c.ID, "err", err)
		return
	}
	if e.audit != nil {
		reason := fmt.Sprintf("deleted: %ds below %ds keep threshold", c.DurationSeconds, cfg.RecordingKeepSeconds)
		if err := e.audit.LogRecordingDeleted(ctx, c.OrganizationID, c.ID, c.RecordingID, reason); err != nil {
			e.log.Warn("audit append failed", "call_id", c.ID, "err", err)
		}
	}
	e.log.Info("short-call recording deleted", "call_id", c.ID, "duration_seconds", c.DurationSeconds, "keep_threshold", cfg.RecordingKeepSeconds)
}

var _ call.GovernanceHook = (*Engine)(nil)
