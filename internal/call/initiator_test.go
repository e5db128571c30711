package call

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"salescrm-platform/internal/events"
	"salescrm-platform/internal/lead"
	"salescrm-platform/internal/phone"
)

func testEmitter(sink *events.MemorySink) *events.Emitter {
	e := events.NewEmitter(sink, nil)
	e.Synchronous = true
	return e
}

func newTestInitiator(t *testing.T) (*Initiator, *MemoryStore, *lead.MemoryStore, *stubProvider, *events.MemorySink) {
	t.Helper()
	calls := NewMemoryStore()
	leads := lead.NewMemoryStore()
	vp := newStubProvider()
	sink := events.NewMemorySink()
	ini := NewInitiator(calls, leads, lead.NewMatcher(leads), vp, testEmitter(sink), nil, InitiatorConfig{
		PublicBaseURL:      "https://api.example.com",
		DefaultCallerID:    "+15550000001",
		RingTimeoutSeconds: 30,
	}, nil)
	return ini, calls, leads, vp, sink
}

func seedLead(t *testing.T, leads *lead.MemoryStore, l lead.Lead) lead.Lead {
	t.Helper()
	if l.ID == "" {
		l.ID = "lead-1"
	}
	if l.OrganizationID == "" {
		l.OrganizationID = "org-1"
	}
	if err := leads.Create(context.Background(), l); err != nil {
		t.Fatalf("seed lead: %v", err)
	}
	return l
}

func TestInitiate_HappyPath(t *testing.T) {
	ini, calls, leads, vp, sink := newTestInitiator(t)
	seedLead(t, leads, lead.Lead{ID: "lead-1", Phone: "(555) 010-2000"})

	got, err := ini.Initiate(context.Background(), InitiateRequest{
		OrganizationID: "org-1",
		UserID:         "user-1",
		UserRole:       "agent",
		LeadID:         "lead-1",
		Mode:           ModeAgentFirst,
	})
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	if got.Status != StatusInitiated {
		t.Fatalf("status = %q, want initiated", got.Status)
	}
	if got.ProviderCallID != "CA-test" {
		t.Fatalf("provider_call_id = %q, want CA-test", got.ProviderCallID)
	}
	if got.Phone != "+15550102000" {
		t.Fatalf("phone = %q, want +15550102000", got.Phone)
	}
	if got.CallerID != "+15550000001" {
		t.Fatalf("caller_id = %q, want default", got.CallerID)
	}

	stored, err := calls.FindByID(context.Background(), got.ID)
	if err != nil {
		t.Fatalf("stored call lookup: %v", err)
	}
	if stored.ProviderCallID != "CA-test" || stored.Status != StatusInitiated {
		t.Fatalf("stored call not reconciled: %+v", stored)
	}

	if len(vp.created) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(vp.created))
	}
	req := vp.created[0]
	if !strings.Contains(req.AnswerURL, "/webhooks/voice/answer?call_id="+got.ID) {
		t.Fatalf("answer url missing call id: %q", req.AnswerURL)
	}
	if !strings.Contains(req.StatusCallbackURL, "/webhooks/voice/status?call_id="+got.ID) {
		t.Fatalf("status url missing call id: %q", req.StatusCallbackURL)
	}

	dials := sink.ByKind(events.KindDialAttempt)
	if len(dials) != 1 || dials[0].CallID != got.ID || dials[0].OrganizationID != "org-1" {
		t.Fatalf("dial_attempt events = %+v", dials)
	}
}

func TestInitiate_ProvisionalRowPrecedesProviderCreate(t *testing.T) {
	ini, calls, leads, vp, _ := newTestInitiator(t)
	seedLead(t, leads, lead.Lead{ID: "lead-1", Phone: "5550102000"})

	// The create callback runs while the provider call is in flight; the row
	// must already be visible and carry a placeholder id.
	vp.createErr = errors.New("boom")
	if _, err := ini.Initiate(context.Background(), InitiateRequest{
		OrganizationID: "org-1", UserID: "u", LeadID: "lead-1", Mode: ModeAgentFirst,
	}); err == nil {
		t.Fatalf("expected provider error")
	}
	// Cleanup ran: the failed attempt left nothing behind.
	if n := calls.Len(); n != 0 {
		t.Fatalf("rows after failed create = %d, want 0", n)
	}
}

func TestInitiate_ProviderFailureReleasesCapAndLeavesNoOrphan(t *testing.T) {
	calls := NewMemoryStore()
	leads := lead.NewMemoryStore()
	seedLead(t, leads, lead.Lead{ID: "lead-1", Phone: "5550102000"})
	vp := newStubProvider()
	vp.createErr = errors.New("twilio 500")
	cap := &stubCap{}
	ini := NewInitiator(calls, leads, lead.NewMatcher(leads), vp, testEmitter(events.NewMemorySink()), cap, InitiatorConfig{
		PublicBaseURL: "https://api.example.com", DefaultCallerID: "+15550000001",
	}, nil)

	_, err := ini.Initiate(context.Background(), InitiateRequest{
		OrganizationID: "org-1", UserID: "u", LeadID: "lead-1", Mode: ModeAgentFirst,
	})
	if err == nil {
		t.Fatalf("expected provider error")
	}
	if calls.Len() != 0 {
		t.Fatalf("orphan provisional row left behind")
	}
	if cap.acquired != 1 || cap.released != 1 {
		t.Fatalf("cap acquired=%d released=%d, want 1/1", cap.acquired, cap.released)
	}
}

func TestInitiate_DialCapDenied(t *testing.T) {
	calls := NewMemoryStore()
	leads := lead.NewMemoryStore()
	seedLead(t, leads, lead.Lead{ID: "lead-1", Phone: "5550102000"})
	cap := &stubCap{deny: true}
	ini := NewInitiator(calls, leads, lead.NewMatcher(leads), newStubProvider(), testEmitter(events.NewMemorySink()), cap, InitiatorConfig{
		DefaultCallerID: "+15550000001",
	}, nil)

	_, err := ini.Initiate(context.Background(), InitiateRequest{
		OrganizationID: "org-1", UserID: "u", LeadID: "lead-1", Mode: ModeAgentFirst,
	})
	if !errors.Is(err, ErrDialCapLimit) {
		t.Fatalf("error = %v, want ErrDialCapLimit", err)
	}
	if calls.Len() != 0 {
		t.Fatalf("no row should exist when the cap rejects")
	}
}

func TestInitiate_DoNotContact(t *testing.T) {
	ini, _, leads, vp, _ := newTestInitiator(t)
	seedLead(t, leads, lead.Lead{ID: "lead-1", Phone: "5550102000", DoNotContact: true})

	_, err := ini.Initiate(context.Background(), InitiateRequest{
		OrganizationID: "org-1", UserID: "u", LeadID: "lead-1", Mode: ModeAgentFirst,
	})
	if !errors.Is(err, ErrDoNotContact) {
		t.Fatalf("error = %v, want ErrDoNotContact", err)
	}
	if len(vp.created) != 0 {
		t.Fatalf("provider must not be called for do-not-contact leads")
	}
}

func TestInitiate_LeadNotFound(t *testing.T) {
	ini, _, _, _, _ := newTestInitiator(t)
	_, err := ini.Initiate(context.Background(), InitiateRequest{
		OrganizationID: "org-1", UserID: "u", LeadID: "missing", Mode: ModeAgentFirst,
	})
	if !errors.Is(err, ErrLeadNotFound) {
		t.Fatalf("error = %v, want ErrLeadNotFound", err)
	}
}

func TestInitiate_InvalidPhoneReason(t *testing.T) {
	ini, _, leads, _, _ := newTestInitiator(t)
	seedLead(t, leads, lead.Lead{ID: "lead-1", Phone: "123"})

	_, err := ini.Initiate(context.Background(), InitiateRequest{
		OrganizationID: "org-1", UserID: "u", LeadID: "lead-1", Mode: ModeAgentFirst,
	})
	v, ok := phone.IsValidation(err)
	if !ok {
		t.Fatalf("error = %v, want phone validation error", err)
	}
	if v.Reason != phone.ReasonTooShort {
		t.Fatalf("reason = %q, want too_short", v.Reason)
	}
}

func TestInitiate_AutoClaimAssignsUnownedLead(t *testing.T) {
	ini, _, leads, _, _ := newTestInitiator(t)
	seedLead(t, leads, lead.Lead{ID: "lead-1", Phone: "5550102000"})

	if _, err := ini.Initiate(context.Background(), InitiateRequest{
		OrganizationID: "org-1", UserID: "user-9", LeadID: "lead-1", Mode: ModeAgentFirst,
	}); err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	l, err := leads.FindByID(context.Background(), "org-1", "lead-1")
	if err != nil {
		t.Fatalf("lead lookup: %v", err)
	}
	if l.AssignedTo != "user-9" {
		t.Fatalf("assigned_to = %q, want user-9", l.AssignedTo)
	}
}

func TestInitiate_AutoClaimNeverReassigns(t *testing.T) {
	ini, _, leads, _, _ := newTestInitiator(t)
	seedLead(t, leads, lead.Lead{ID: "lead-1", Phone: "5550102000", AssignedTo: "owner-1"})

	if _, err := ini.Initiate(context.Background(), InitiateRequest{
		OrganizationID: "org-1", UserID: "user-9", LeadID: "lead-1", Mode: ModeAgentFirst,
	}); err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	l, _ := leads.FindByID(context.Background(), "org-1", "lead-1")
	if l.AssignedTo != "owner-1" {
		t.Fatalf("assigned_to = %q, want owner-1 untouched", l.AssignedTo)
	}
}

func TestInitiate_ByPhoneCreatesLeadFromHint(t *testing.T) {
	ini, _, leads, _, _ := newTestInitiator(t)

	got, err := ini.Initiate(context.Background(), InitiateRequest{
		OrganizationID: "org-1",
		UserID:         "u",
		Phone:          "5550102000",
		ContactName:    "Dana Smith",
		Mode:           ModeAgentFirst,
	})
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	if got.LeadID == "" {
		t.Fatalf("expected auto-created lead to be attributed")
	}
	l, err := leads.FindByID(context.Background(), "org-1", got.LeadID)
	if err != nil {
		t.Fatalf("created lead lookup: %v", err)
	}
	if l.Source != lead.SourceCallAutoCreated || l.Name != "Dana Smith" {
		t.Fatalf("created lead = %+v", l)
	}
}

func TestInitiate_ByPhoneNoHintProceedsUnattributed(t *testing.T) {
	ini, _, _, _, _ := newTestInitiator(t)

	got, err := ini.Initiate(context.Background(), InitiateRequest{
		OrganizationID: "org-1", UserID: "u", Phone: "5550102000", Mode: ModeAgentFirst,
	})
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	if got.LeadID != "" {
		t.Fatalf("lead_id = %q, want unattributed", got.LeadID)
	}
}

func TestInitiate_MissingTarget(t *testing.T) {
	ini, _, _, _, _ := newTestInitiator(t)
	_, err := ini.Initiate(context.Background(), InitiateRequest{
		OrganizationID: "org-1", UserID: "u", Mode: ModeAgentFirst,
	})
	if !errors.Is(err, ErrMissingTarget) {
		t.Fatalf("error = %v, want ErrMissingTarget", err)
	}
}

func TestInitiate_UnknownMode(t *testing.T) {
	ini, _, _, _, _ := newTestInitiator(t)
	_, err := ini.Initiate(context.Background(), InitiateRequest{
		OrganizationID: "org-1", UserID: "u", Phone: "5550102000", Mode: "speed_dial",
	})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("error = %v, want ErrInvalidArgument", err)
	}
}

func TestInitiate_InitiatedAtSet(t *testing.T) {
	ini, calls, leads, _, _ := newTestInitiator(t)
	seedLead(t, leads, lead.Lead{ID: "lead-1", Phone: "5550102000"})
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ini.clock = func() time.Time { return fixed }

	got, err := ini.Initiate(context.Background(), InitiateRequest{
		OrganizationID: "org-1", UserID: "u", LeadID: "lead-1", Mode: ModeAgentFirst,
	})
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	stored, _ := calls.FindByID(context.Background(), got.ID)
	if stored.InitiatedAt == nil || !stored.InitiatedAt.Equal(fixed) {
		t.Fatalf("initiated_at = %v, want %v", stored.InitiatedAt, fixed)
	}
}
