package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"salescrm-platform/internal/events"
	"salescrm-platform/internal/lead"
	"salescrm-platform/internal/provider"

	"github.com/google/uuid"
)

// GovernanceHook is how the processor triggers cost-governance behavior
// without depending on the engine package.
type GovernanceHook interface {
	// ArmInProgress schedules the recording-start and max-duration timers
	// when a call transitions into in_progress.
	ArmInProgress(ctx context.Context, c Call)

	// EvaluateRetention runs the post-call recording retention decision once
	// final duration is known.
	EvaluateRetention(ctx context.Context, c Call)
}

// OrgResolver identifies which organization owns a number, used when
// reconstructing a call the orchestrator has no row for (inbound calls,
// or a provisional write that genuinely failed).
type OrgResolver func(ctx context.Context, to, from string) (string, error)

// ProcessorConfig tunes event handling.
type ProcessorConfig struct {
	// LookupRetries and LookupDelay bound the wait for the provisional-record
	// race: the webhook can arrive before the Initiate transaction commits.
	LookupRetries int
	LookupDelay   time.Duration

	// ConversationMinSeconds is the duration threshold for a conversation
	// performance event.
	ConversationMinSeconds int

	// QualifiedMinSeconds plus an allow-listed outcome code yields a
	// qualified-contact performance event.
	QualifiedMinSeconds int
	QualifiedOutcomes   []string
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	out := c
	if out.LookupRetries <= 0 {
		out.LookupRetries = 5
	}
	if out.LookupDelay <= 0 {
		out.LookupDelay = 200 * time.Millisecond
	}
	if out.ConversationMinSeconds <= 0 {
		out.ConversationMinSeconds = 10
	}
	if out.QualifiedMinSeconds <= 0 {
		out.QualifiedMinSeconds = 150
	}
	if len(out.QualifiedOutcomes) == 0 {
		out.QualifiedOutcomes = []string{"interested", "qualified", "follow_up"}
	}
	return out
}

// Processor applies provider status callbacks to call records.
//
// Delivery model: events arrive at least once, possibly duplicated, possibly
// out of order, possibly before the originating write is visible. Correctness
// comes from idempotent folding in the store (terminal sticky, forward-only
// status), not from any ordering assumption.
type Processor struct {
	calls      Store
	leads      lead.Store
	matcher    *lead.Matcher
	provider   provider.VoiceProvider
	governance GovernanceHook
	emitter    *events.Emitter
	cap        DialCap
	resolveOrg OrgResolver
	cfg        ProcessorConfig
	log        *slog.Logger
	clock      func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewProcessor(
	calls Store,
	leads lead.Store,
	matcher *lead.Matcher,
	vp provider.VoiceProvider,
	governance GovernanceHook,
	emitter *events.Emitter,
	cap DialCap,
	resolveOrg OrgResolver,
	cfg ProcessorConfig,
	log *slog.Logger,
) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		calls:      calls,
		leads:      leads,
		matcher:    matcher,
		provider:   vp,
		governance: governance,
		emitter:    emitter,
		cap:        cap,
		resolveOrg: resolveOrg,
		cfg:        cfg.withDefaults(),
		log:        log,
		clock:      time.Now,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// OnStatusEvent folds one provider callback into the call record and fires
// downstream effects on the transitions it caused.
func (p *Processor) OnStatusEvent(ctx context.Context, ev provider.StatusEvent) error {
	folded, ok := MapProviderStatus(ev.Status)
	if !ok {
		return fmt.Errorf("call: unmapped provider status %q", ev.Status)
	}

	c, err := p.resolveCall(ctx, ev)
	if err != nil {
		return err
	}

	now := p.clock().UTC()
	upd := StatusUpdate{Status: folded, UpdatedAt: now}
	if ev.HasDuration() {
		d := ev.DurationSeconds
		upd.DurationSeconds = &d
	}
	if ev.RecordingID != "" {
		r := ev.RecordingID
		upd.RecordingID = &r
	}
	if folded == StatusInProgress {
		upd.AnsweredAt = &now
	}
	if folded.Terminal() {
		upd.EndedAt = &now
	}

	res, err := p.calls.ApplyStatus(ctx, c.ID, upd)
	if err != nil {
		return fmt.Errorf("call: apply status for %s: %w", c.ID, err)
	}

	// Transition detection uses the atomically captured previous status, so
	// a duplicated terminal event fires terminal effects exactly once.
	if res.Previous.Rank() < StatusInProgress.Rank() && res.Call.Status == StatusInProgress {
		if p.governance != nil {
			p.governance.ArmInProgress(ctx, res.Call)
		}
	}
	if !res.Previous.Terminal() && res.Call.Status.Terminal() {
		p.onTerminal(ctx, res.Call)
	}
	return nil
}

// resolveCall finds the call a status event belongs to. The local id echoed
// back on the callback URL wins outright: it still resolves when the
// placeholder-to-SID reconcile write failed and the provider id matches
// nothing. Without it, ride out the provisional-write race with a bounded
// retry, then reconstruct the row from the provider's own metadata as a
// last resort.
func (p *Processor) resolveCall(ctx context.Context, ev provider.StatusEvent) (Call, error) {
	if ev.LocalCallID != "" {
		c, err := p.calls.FindByID(ctx, ev.LocalCallID)
		switch {
		case err == nil:
			return p.reconcileProviderID(ctx, c, ev.ProviderCallID), nil
		case !errors.Is(err, ErrNotFound):
			return Call{}, err
		}
	}
	for attempt := 0; ; attempt++ {
		c, err := p.calls.FindByProviderCallID(ctx, ev.ProviderCallID)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Call{}, err
		}
		if attempt >= p.cfg.LookupRetries {
			break
		}
		if err := p.sleep(ctx, p.cfg.LookupDelay); err != nil {
			return Call{}, err
		}
	}
	return p.reconstruct(ctx, ev)
}

// reconcileProviderID backfills the real provider SID onto a row still
// carrying its placeholder, healing a failed reconcile write at initiation.
func (p *Processor) reconcileProviderID(ctx context.Context, c Call, providerCallID string) Call {
	if providerCallID == "" || c.ProviderCallID == providerCallID {
		return c
	}
	if err := p.calls.SetProviderCallID(ctx, c.ID, providerCallID); err != nil {
		p.log.Warn("provider id reconcile failed", "call_id", c.ID, "provider_call_id", providerCallID, "err", err)
		return c
	}
	p.log.Info("provider id reconciled from status callback", "call_id", c.ID, "provider_call_id", providerCallID)
	c.ProviderCallID = providerCallID
	return c
}

// reconstruct self-heals a missing row from the provider's call metadata.
func (p *Processor) reconstruct(ctx context.Context, ev provider.StatusEvent) (Call, error) {
	info, err := p.provider.FetchCall(ctx, ev.ProviderCallID)
	if err != nil {
		return Call{}, fmt.Errorf("call: no row for %s and provider fetch failed: %w", ev.ProviderCallID, err)
	}

	direction := DirectionOutbound
	phoneNumber := info.To
	if info.Direction == "inbound" {
		direction = DirectionInbound
		phoneNumber = info.From
	}

	orgID := ""
	if p.resolveOrg != nil {
		orgID, err = p.resolveOrg(ctx, info.To, info.From)
		if err != nil {
			return Call{}, fmt.Errorf("call: cannot attribute reconstructed call %s to an organization: %w", ev.ProviderCallID, err)
		}
	}
	if orgID == "" {
		return Call{}, fmt.Errorf("call: no organization for reconstructed call %s", ev.ProviderCallID)
	}

	now := p.clock().UTC()
	c := Call{
		ID:             uuid.NewString(),
		ProviderCallID: info.ProviderCallID,
		OrganizationID: orgID,
		Direction:      direction,
		Status:         StatusPending,
		Phone:          phoneNumber,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.calls.Insert(ctx, c); err != nil {
		// A concurrent handler may have won the insert; fall back to lookup.
		if existing, lookupErr := p.calls.FindByProviderCallID(ctx, ev.ProviderCallID); lookupErr == nil {
			return existing, nil
		}
		return Call{}, fmt.Errorf("call: reconstruct insert for %s: %w", ev.ProviderCallID, err)
	}
	p.log.Info("call record reconstructed from provider metadata",
		"call_id", c.ID, "provider_call_id", c.ProviderCallID, "direction", c.Direction)
	return c, nil
}

// onTerminal runs the effects of the one transition into a terminal status.
// Everything here is best-effort: there is no caller waiting on a webhook.
func (p *Processor) onTerminal(ctx context.Context, c Call) {
	// Late attribution: some calls only learn their destination after
	// creation. Lookup failure means the call stays unattributed.
	if c.LeadID == "" && p.matcher != nil {
		if l, ok, err := p.matcher.Match(ctx, c.OrganizationID, c.Phone); err != nil {
			p.log.Warn("late attribution failed", "call_id", c.ID, "err", err)
		} else if ok {
			if err := p.calls.SetLead(ctx, c.ID, l.ID); err != nil {
				p.log.Warn("late attribution write failed", "call_id", c.ID, "lead_id", l.ID, "err", err)
			} else {
				c.LeadID = l.ID
			}
		}
	}

	if c.LeadID != "" {
		if err := p.leads.TouchLastContacted(ctx, c.OrganizationID, c.LeadID); err != nil {
			p.log.Warn("lead last-contact update failed", "call_id", c.ID, "lead_id", c.LeadID, "err", err)
		}
	}

	if p.governance != nil {
		p.governance.EvaluateRetention(ctx, c)
	}

	if c.DurationSeconds >= p.cfg.ConversationMinSeconds {
		p.emitter.Emit(ctx, events.PerformanceEvent{
			OrganizationID:  c.OrganizationID,
			UserID:          c.UserID,
			LeadID:          c.LeadID,
			CallID:          c.ID,
			Kind:            events.KindConversation,
			DurationSeconds: c.DurationSeconds,
		})
	}
	if c.DurationSeconds >= p.cfg.QualifiedMinSeconds && p.qualifiedOutcome(c.OutcomeCode) {
		p.emitter.Emit(ctx, events.PerformanceEvent{
			OrganizationID:  c.OrganizationID,
			UserID:          c.UserID,
			LeadID:          c.LeadID,
			CallID:          c.ID,
			Kind:            events.KindQualifiedContact,
			DurationSeconds: c.DurationSeconds,
		})
	}

	if p.cap != nil && c.Direction == DirectionOutbound {
		p.cap.Release(ctx, c.OrganizationID)
	}
}

// OnOutcomeSet re-runs the qualified-contact check after an operator records
// an outcome. Outcomes usually land after the terminal event, so the check
// at terminal time alone would miss most of them.
func (p *Processor) OnOutcomeSet(ctx context.Context, c Call) {
	if !c.Status.Terminal() {
		return
	}
	if c.DurationSeconds >= p.cfg.QualifiedMinSeconds && p.qualifiedOutcome(c.OutcomeCode) {
		p.emitter.Emit(ctx, events.PerformanceEvent{
			OrganizationID:  c.OrganizationID,
			UserID:          c.UserID,
			LeadID:          c.LeadID,
			CallID:          c.ID,
			Kind:            events.KindQualifiedContact,
			DurationSeconds: c.DurationSeconds,
		})
	}
}

func (p *Processor) qualifiedOutcome(code string) bool {
	for _, allowed := range p.cfg.QualifiedOutcomes {
		if code == allowed {
			return true
		}
	}
	return false
}
