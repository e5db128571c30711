package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"salescrm-platform/internal/events"
	"salescrm-platform/internal/lead"
	"salescrm-platform/internal/phone"
	"salescrm-platform/internal/provider"

	"github.com/google/uuid"
)

var (
	ErrLeadNotFound  = errors.New("call: lead not found")
	ErrDoNotContact  = errors.New("call: lead is marked do-not-contact")
	ErrDialCapLimit  = errors.New("call: organization concurrent call limit reached")
	ErrMissingTarget = errors.New("call: lead id or destination required")
)

// DialCap limits concurrent outbound calls per organization. A nil cap means
// unlimited. Release is best-effort; the Redis implementation leases slots
// with a TTL so a crashed process cannot leak them forever.
type DialCap interface {
	Acquire(ctx context.Context, orgID string) (bool, error)
	Release(ctx context.Context, orgID string)
}

// InitiateRequest is the operator-facing contract for placing a call.
type InitiateRequest struct {
	OrganizationID string
	UserID         string
	UserRole       string

	// LeadID targets a known lead. When empty, Phone plus ExternalRef are
	// used to resolve (or create) one via the matcher.
	LeadID string

	// ExternalRef is a source-system identifier used as a creation hint.
	ExternalRef string
	// ContactName is a display-name creation hint.
	ContactName string

	Phone string
	Mode  Mode

	// CallerID presented to the lead; falls back to the configured default.
	CallerID string
}

// InitiatorConfig carries the static wiring for call creation.
type InitiatorConfig struct {
	// PublicBaseURL is where the provider reaches us for callbacks.
	PublicBaseURL string

	// DefaultCallerID is the organization's outbound number fallback.
	DefaultCallerID string

	RingTimeoutSeconds int
}

// Initiator places outbound calls.
//
// The order of operations is the correctness core: the provisional record is
// written BEFORE the provider is invoked, because the provider's first status
// webhook can arrive before the create response does. The callback URLs carry
// the local call id so events resolve even before the real provider id is
// stored.
type Initiator struct {
	calls    Store
	leads    lead.Store
	matcher  *lead.Matcher
	provider provider.VoiceProvider
	emitter  *events.Emitter
	cap      DialCap
	cfg      InitiatorConfig
	log      *slog.Logger
	clock    func() time.Time
}

func NewInitiator(calls Store, leads lead.Store, matcher *lead.Matcher, vp provider.VoiceProvider, emitter *events.Emitter, cap DialCap, cfg InitiatorConfig, log *slog.Logger) *Initiator {
	if log == nil {
		log = slog.Default()
	}
	return &Initiator{
		calls:    calls,
		leads:    leads,
		matcher:  matcher,
		provider: vp,
		emitter:  emitter,
		cap:      cap,
		cfg:      cfg,
		log:      log,
		clock:    time.Now,
	}
}

// Initiate places one outbound call. Validation failures return typed errors
// with specific reasons; provider failures leave no orphan provisional row.
func (i *Initiator) Initiate(ctx context.Context, req InitiateRequest) (Call, error) {
	if req.OrganizationID == "" || req.UserID == "" {
		return Call{}, ErrInvalidArgument
	}
	if !ValidMode(req.Mode) {
		return Call{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidArgument, req.Mode)
	}

	// 1. Resolve the target lead.
	target, err := i.resolveLead(ctx, req)
	if err != nil {
		return Call{}, err
	}
	if target.DoNotContact {
		return Call{}, ErrDoNotContact
	}

	// 2. Auto-claim: first contact assigns the lead to the caller. Failure is
	// logged, never surfaced.
	if target.ID != "" && target.AssignedTo == "" {
		if _, err := i.leads.AssignOwner(ctx, req.OrganizationID, target.ID, req.UserID); err != nil {
			i.log.Warn("lead auto-claim failed", "lead_id", target.ID, "user_id", req.UserID, "err", err)
		}
	}

	// 3. One dialable form, or a reason-specific validation error.
	rawPhone := req.Phone
	if rawPhone == "" {
		rawPhone = target.Phone
	}
	dialable, err := phone.Dialable(rawPhone)
	if err != nil {
		return Call{}, err
	}

	if i.cap != nil {
		ok, err := i.cap.Acquire(ctx, req.OrganizationID)
		if err != nil {
			i.log.Warn("dial cap check failed, allowing call", "org_id", req.OrganizationID, "err", err)
		} else if !ok {
			return Call{}, ErrDialCapLimit
		}
	}

	callerID := req.CallerID
	if callerID == "" {
		callerID = i.cfg.DefaultCallerID
	}

	// 4. Provisional record, before the provider sees anything.
	now := i.clock().UTC()
	c := Call{
		ID:             uuid.NewString(),
		ProviderCallID: NewPlaceholderProviderID(),
		LeadID:         target.ID,
		UserID:         req.UserID,
		UserRole:       req.UserRole,
		OrganizationID: req.OrganizationID,
		Direction:      DirectionOutbound,
		Mode:           req.Mode,
		Status:         StatusPending,
		Phone:          dialable,
		CallerID:       callerID,
		InitiatedAt:    &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := i.calls.Insert(ctx, c); err != nil {
		i.releaseCap(req.OrganizationID)
		return Call{}, fmt.Errorf("call: provisional insert failed: %w", err)
	}

	// 5. Provider create, callbacks keyed by the LOCAL id.
	info, err := i.provider.CreateCall(ctx, provider.CreateCallRequest{
		To:                 dialable,
		From:               callerID,
		AnswerURL:          i.callbackURL("/webhooks/voice/answer", c.ID),
		StatusCallbackURL:  i.callbackURL("/webhooks/voice/status", c.ID),
		RingTimeoutSeconds: i.cfg.RingTimeoutSeconds,
	})
	if err != nil {
		// 6a. No orphan provisional rows.
		if delErr := i.calls.Delete(ctx, c.ID); delErr != nil {
			i.log.Error("provisional call cleanup failed", "call_id", c.ID, "err", delErr)
		}
		i.releaseCap(req.OrganizationID)
		return Call{}, fmt.Errorf("call: provider create failed: %w", err)
	}

	// 6b. Reconcile placeholder with the provider's identifier.
	if err := i.calls.SetProviderCallID(ctx, c.ID, info.ProviderCallID); err != nil {
		i.log.Error("provider id reconcile failed", "call_id", c.ID, "provider_call_id", info.ProviderCallID, "err", err)
	} else {
		c.ProviderCallID = info.ProviderCallID
		c.Status = StatusInitiated
	}

	i.emitter.Emit(ctx, events.PerformanceEvent{
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
		LeadID:         target.ID,
		CallID:         c.ID,
		Kind:           events.KindDialAttempt,
	})

	return c, nil
}

func (i *Initiator) resolveLead(ctx context.Context, req InitiateRequest) (lead.Lead, error) {
	if req.LeadID != "" {
		l, err := i.leads.FindByID(ctx, req.OrganizationID, req.LeadID)
		if err != nil {
			if errors.Is(err, lead.ErrNotFound) {
				return lead.Lead{}, ErrLeadNotFound
			}
			return lead.Lead{}, err
		}
		return l, nil
	}

	if req.Phone == "" {
		return lead.Lead{}, ErrMissingTarget
	}

	l, err := i.matcher.MatchOrCreate(ctx, req.OrganizationID, req.Phone, lead.Hint{
		Name:     req.ContactName,
		SourceID: req.ExternalRef,
	})
	if err != nil {
		if errors.Is(err, lead.ErrNotFound) {
			// No match and nothing to create from: proceed unattributed.
			return lead.Lead{}, nil
		}
		return lead.Lead{}, err
	}
	return l, nil
}

func (i *Initiator) callbackURL(path, callID string) string {
	return i.cfg.PublicBaseURL + path + "?call_id=" + url.QueryEscape(callID)
}

func (i *Initiator) releaseCap(orgID string) {
	if i.cap == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	i.cap.Release(ctx, orgID)
}
