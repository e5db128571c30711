package lead

import "time"

// Lead is the slice of the CRM lead record the orchestrator touches.
//
// Ownership: leads belong to the CRM core. The orchestrator reads a few
// fields, may claim an unassigned lead for the calling user, and bumps the
// last-contact timestamp. It must never assume a referenced lead still exists.
type Lead struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`

	Name  string `json:"name,omitempty" db:"name"`
	Phone string `json:"phone,omitempty" db:"phone"`

	AssignedTo   string `json:"assigned_to,omitempty" db:"assigned_to"`
	DoNotContact bool   `json:"do_not_contact" db:"do_not_contact"`

	// Source marks how the record entered the system. Leads created by the
	// matcher during call attribution carry SourceCallAutoCreated so they are
	// auditable.
	Source string `json:"source,omitempty" db:"source"`

	LastContactedAt *time.Time `json:"last_contacted_at,omitempty" db:"last_contacted_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

const SourceCallAutoCreated = "call_auto_created"
