package call

import (
	"context"
	"strings"
	"testing"
	"time"

	"salescrm-platform/internal/events"
	"salescrm-platform/internal/lead"
	"salescrm-platform/internal/provider"
)

type processorFixture struct {
	proc  *Processor
	calls *MemoryStore
	leads *lead.MemoryStore
	vp    *stubProvider
	gov   *stubGovernance
	cap   *stubCap
	sink  *events.MemorySink
}

func newProcessorFixture(t *testing.T, cfg ProcessorConfig) *processorFixture {
	t.Helper()
	f := &processorFixture{
		calls: NewMemoryStore(),
		leads: lead.NewMemoryStore(),
		vp:    newStubProvider(),
		gov:   &stubGovernance{},
		cap:   &stubCap{},
		sink:  events.NewMemorySink(),
	}
	resolver := func(ctx context.Context, to, from string) (string, error) {
		return f.calls.OrganizationByNumber(ctx, from)
	}
	f.proc = NewProcessor(f.calls, f.leads, lead.NewMatcher(f.leads), f.vp, f.gov, testEmitter(f.sink), f.cap, resolver, cfg, nil)
	// Tests control time; never actually sleep.
	f.proc.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return f
}

func (f *processorFixture) seedCall(t *testing.T, c Call) Call {
	t.Helper()
	if c.ID == "" {
		c.ID = "call-1"
	}
	if c.ProviderCallID == "" {
		c.ProviderCallID = "CA-1"
	}
	if c.OrganizationID == "" {
		c.OrganizationID = "org-1"
	}
	if c.Direction == "" {
		c.Direction = DirectionOutbound
	}
	if c.Status == "" {
		c.Status = StatusPending
	}
	if err := f.calls.Insert(context.Background(), c); err != nil {
		t.Fatalf("seed call: %v", err)
	}
	return c
}

func statusEvent(status string, dur int) provider.StatusEvent {
	return provider.StatusEvent{ProviderCallID: "CA-1", Status: status, DurationSeconds: dur}
}

func TestOnStatusEvent_ForwardProgression(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{})
	f.seedCall(t, Call{})

	for _, st := range []string{"initiated", "ringing", "in-progress"} {
		if err := f.proc.OnStatusEvent(context.Background(), statusEvent(st, -1)); err != nil {
			t.Fatalf("OnStatusEvent(%s) error = %v", st, err)
		}
	}

	c, _ := f.calls.FindByID(context.Background(), "call-1")
	if c.Status != StatusInProgress {
		t.Fatalf("status = %q, want in_progress", c.Status)
	}
	if c.AnsweredAt == nil {
		t.Fatalf("answered_at not set on in_progress")
	}
	if len(f.gov.armed) != 1 {
		t.Fatalf("governance armed %d times, want 1", len(f.gov.armed))
	}
}

func TestOnStatusEvent_OutOfOrderNeverRegresses(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{})
	f.seedCall(t, Call{})

	if err := f.proc.OnStatusEvent(context.Background(), statusEvent("completed", 42)); err != nil {
		t.Fatalf("completed: %v", err)
	}
	// A late ringing event must not move the call backwards.
	if err := f.proc.OnStatusEvent(context.Background(), statusEvent("ringing", -1)); err != nil {
		t.Fatalf("late ringing: %v", err)
	}

	c, _ := f.calls.FindByID(context.Background(), "call-1")
	if c.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed to stick", c.Status)
	}
	if c.DurationSeconds != 42 {
		t.Fatalf("duration = %d, want 42", c.DurationSeconds)
	}
}

func TestOnStatusEvent_TerminalEffectsFireOnce(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{})
	f.seedCall(t, Call{Status: StatusInProgress})

	for i := 0; i < 3; i++ {
		if err := f.proc.OnStatusEvent(context.Background(), statusEvent("completed", 42)); err != nil {
			t.Fatalf("duplicate %d: %v", i, err)
		}
	}

	if len(f.gov.evaluated) != 1 {
		t.Fatalf("retention evaluated %d times, want 1", len(f.gov.evaluated))
	}
	if f.cap.released != 1 {
		t.Fatalf("cap released %d times, want 1", f.cap.released)
	}
	if got := len(f.sink.ByKind(events.KindConversation)); got != 1 {
		t.Fatalf("conversation events = %d, want 1", got)
	}
}

func TestOnStatusEvent_DurationBackfillAfterTerminal(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{})
	f.seedCall(t, Call{Status: StatusInProgress})

	if err := f.proc.OnStatusEvent(context.Background(), statusEvent("completed", -1)); err != nil {
		t.Fatalf("completed without duration: %v", err)
	}
	if err := f.proc.OnStatusEvent(context.Background(), statusEvent("completed", 87)); err != nil {
		t.Fatalf("duration backfill: %v", err)
	}

	c, _ := f.calls.FindByID(context.Background(), "call-1")
	if c.Status != StatusCompleted || c.DurationSeconds != 87 {
		t.Fatalf("call = status %q duration %d, want completed/87", c.Status, c.DurationSeconds)
	}
}

func TestOnStatusEvent_ShortCallNoConversationEvent(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{})
	f.seedCall(t, Call{Status: StatusInProgress})

	if err := f.proc.OnStatusEvent(context.Background(), statusEvent("completed", 9)); err != nil {
		t.Fatalf("OnStatusEvent: %v", err)
	}
	if got := len(f.sink.ByKind(events.KindConversation)); got != 0 {
		t.Fatalf("conversation events = %d for a 9s call, want 0", got)
	}
}

func TestOnStatusEvent_BusyMapsToFailed(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{})
	f.seedCall(t, Call{Status: StatusRinging})

	if err := f.proc.OnStatusEvent(context.Background(), statusEvent("busy", -1)); err != nil {
		t.Fatalf("OnStatusEvent: %v", err)
	}
	c, _ := f.calls.FindByID(context.Background(), "call-1")
	if c.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", c.Status)
	}
	if c.EndedAt == nil {
		t.Fatalf("ended_at not set on terminal event")
	}
}

func TestOnStatusEvent_LookupRaceResolvedByRetry(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{LookupRetries: 5})

	// The row shows up mid-retry, like a webhook beating the Initiate commit.
	attempts := 0
	f.proc.sleep = func(ctx context.Context, d time.Duration) error {
		attempts++
		if attempts == 2 {
			f.seedCall(t, Call{})
		}
		return nil
	}

	if err := f.proc.OnStatusEvent(context.Background(), statusEvent("ringing", -1)); err != nil {
		t.Fatalf("OnStatusEvent error = %v", err)
	}
	if attempts != 2 {
		t.Fatalf("slept %d times, want 2", attempts)
	}
	c, _ := f.calls.FindByID(context.Background(), "call-1")
	if c.Status != StatusRinging {
		t.Fatalf("status = %q, want ringing", c.Status)
	}
}

func TestOnStatusEvent_ReconstructsFromProviderMetadata(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{LookupRetries: 1})

	// History lets the resolver attribute the number to org-1.
	f.seedCall(t, Call{ID: "old", ProviderCallID: "CA-old", Phone: "+15550102000", Status: StatusCompleted})

	f.vp.fetchInfo["CA-1"] = provider.CallInfo{
		ProviderCallID: "CA-1",
		Status:         "in-progress",
		To:             "+15550000001",
		From:           "+15550102000",
		Direction:      "inbound",
	}

	if err := f.proc.OnStatusEvent(context.Background(), statusEvent("in-progress", -1)); err != nil {
		t.Fatalf("OnStatusEvent error = %v", err)
	}

	c, err := f.calls.FindByProviderCallID(context.Background(), "CA-1")
	if err != nil {
		t.Fatalf("reconstructed row missing: %v", err)
	}
	if c.OrganizationID != "org-1" {
		t.Fatalf("org = %q, want org-1", c.OrganizationID)
	}
	if c.Direction != DirectionInbound || c.Phone != "+15550102000" {
		t.Fatalf("reconstructed call = %+v", c)
	}
	if c.Status != StatusInProgress {
		t.Fatalf("status = %q, want in_progress", c.Status)
	}
}

func TestOnStatusEvent_LocalIDHealsFailedReconcile(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{LookupRetries: 1})

	// The reconcile write after provider create never landed: the row still
	// carries its placeholder, so the real SID matches nothing.
	f.seedCall(t, Call{ID: "local-1", ProviderCallID: NewPlaceholderProviderID()})

	ev := provider.StatusEvent{
		ProviderCallID:  "CA-real",
		LocalCallID:     "local-1",
		Status:          "completed",
		DurationSeconds: 42,
	}
	if err := f.proc.OnStatusEvent(context.Background(), ev); err != nil {
		t.Fatalf("OnStatusEvent error = %v", err)
	}

	c, _ := f.calls.FindByID(context.Background(), "local-1")
	if c.Status != StatusCompleted || c.DurationSeconds != 42 {
		t.Fatalf("event not applied to local row: %+v", c)
	}
	if c.ProviderCallID != "CA-real" {
		t.Fatalf("provider id = %q, want CA-real backfilled", c.ProviderCallID)
	}
	if f.calls.Len() != 1 {
		t.Fatalf("rows = %d, want 1 (no duplicate reconstruction)", f.calls.Len())
	}
}

func TestOnStatusEvent_StaleLocalIDFallsBackToProviderID(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{})
	f.seedCall(t, Call{})

	ev := statusEvent("ringing", -1)
	ev.LocalCallID = "gone"
	if err := f.proc.OnStatusEvent(context.Background(), ev); err != nil {
		t.Fatalf("OnStatusEvent error = %v", err)
	}

	c, _ := f.calls.FindByID(context.Background(), "call-1")
	if c.Status != StatusRinging {
		t.Fatalf("status = %q, want ringing via provider id lookup", c.Status)
	}
}

func TestOnStatusEvent_ReconstructionFailsWithoutOrg(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{LookupRetries: 1})
	f.vp.fetchInfo["CA-1"] = provider.CallInfo{ProviderCallID: "CA-1", Status: "ringing", To: "+15559999999", From: "+15558888888"}

	err := f.proc.OnStatusEvent(context.Background(), statusEvent("ringing", -1))
	if err == nil || !strings.Contains(err.Error(), "CA-1") {
		t.Fatalf("error = %v, want unattributable reconstruction failure", err)
	}
}

func TestOnStatusEvent_UnknownStatusRejected(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{})
	f.seedCall(t, Call{})

	if err := f.proc.OnStatusEvent(context.Background(), statusEvent("vibrating", -1)); err == nil {
		t.Fatalf("expected unmapped status error")
	}
}

func TestOnTerminal_LateAttributionAndLastContacted(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{})
	if err := f.leads.Create(context.Background(), lead.Lead{
		ID: "lead-7", OrganizationID: "org-1", Phone: "+15550102000",
	}); err != nil {
		t.Fatalf("seed lead: %v", err)
	}
	f.seedCall(t, Call{Status: StatusInProgress, Phone: "+15550102000"})

	if err := f.proc.OnStatusEvent(context.Background(), statusEvent("completed", 60)); err != nil {
		t.Fatalf("OnStatusEvent: %v", err)
	}

	c, _ := f.calls.FindByID(context.Background(), "call-1")
	if c.LeadID != "lead-7" {
		t.Fatalf("lead_id = %q, want late attribution to lead-7", c.LeadID)
	}
	l, _ := f.leads.FindByID(context.Background(), "org-1", "lead-7")
	if l.LastContactedAt == nil {
		t.Fatalf("last_contacted_at not touched")
	}
}

func TestOnTerminal_QualifiedContactRequiresOutcome(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{})
	f.seedCall(t, Call{Status: StatusInProgress})

	// Long call, but no outcome recorded yet: conversation only.
	if err := f.proc.OnStatusEvent(context.Background(), statusEvent("completed", 200)); err != nil {
		t.Fatalf("OnStatusEvent: %v", err)
	}
	if got := len(f.sink.ByKind(events.KindQualifiedContact)); got != 0 {
		t.Fatalf("qualified events = %d before outcome, want 0", got)
	}

	c, _ := f.calls.FindByID(context.Background(), "call-1")
	c.OutcomeCode = "interested"
	f.proc.OnOutcomeSet(context.Background(), c)

	if got := len(f.sink.ByKind(events.KindQualifiedContact)); got != 1 {
		t.Fatalf("qualified events = %d after outcome, want 1", got)
	}
}

func TestOnOutcomeSet_ThresholdsAndAllowList(t *testing.T) {
	f := newProcessorFixture(t, ProcessorConfig{})

	cases := []struct {
		name     string
		duration int
		outcome  string
		status   Status
		want     int
	}{
		{"qualified", 150, "qualified", StatusCompleted, 1},
		{"follow_up", 151, "follow_up", StatusCompleted, 1},
		{"too short", 149, "interested", StatusCompleted, 0},
		{"outcome not listed", 500, "voicemail_left", StatusCompleted, 0},
		{"call still live", 500, "interested", StatusInProgress, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := len(f.sink.ByKind(events.KindQualifiedContact))
			f.proc.OnOutcomeSet(context.Background(), Call{
				ID: "c", OrganizationID: "org-1", Status: tc.status,
				DurationSeconds: tc.duration, OutcomeCode: tc.outcome,
			})
			got := len(f.sink.ByKind(events.KindQualifiedContact)) - before
			if got != tc.want {
				t.Fatalf("qualified events emitted = %d, want %d", got, tc.want)
			}
		})
	}
}
