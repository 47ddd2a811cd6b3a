// Package workflow contains the approval workflow core: domain types, the
// reviewer chain resolver and the pure transition function. Nothing in this
// package performs I/O.
package workflow

import "time"

// EntityKind discriminates the approvable entity variants.
type EntityKind string

const (
	KindSpace   EntityKind = "space"
	KindCabinet EntityKind = "cabinet"
	KindRecord  EntityKind = "record"
	KindLetter  EntityKind = "letter"
)

// Valid reports whether k names a known variant.
func (k EntityKind) Valid() bool {
	switch k {
	case KindSpace, KindCabinet, KindRecord, KindLetter:
		return true
	}
	return false
}

// Status is the lifecycle state of an approvable entity.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPending         Status = "pending"
	StatusPendingReview   Status = "pending_review"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusArchived        Status = "archived"
)

// Awaiting reports whether the status means the entity is waiting on a chain
// member to act.
func (s Status) Awaiting() bool {
	switch s {
	case StatusPending, StatusPendingReview, StatusPendingApproval:
		return true
	}
	return false
}

// Stage partitions a letter chain into review entries and final approval
// entries. Simple variants use approval-stage entries only.
type Stage string

const (
	StageReview   Stage = "review"
	StageApproval Stage = "approval"
)

// EntryStatus is the state of a single chain entry.
type EntryStatus string

const (
	EntryPending    EntryStatus = "pending"
	EntryApproved   EntryStatus = "approved"
	EntryRejected   EntryStatus = "rejected"
	EntrySkipped    EntryStatus = "skipped"
	EntryReassigned EntryStatus = "reassigned"
)

// Action is a workflow verb.
type Action string

const (
	ActionSubmit   Action = "submit"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionReassign Action = "reassign"
	ActionResubmit Action = "resubmit"
	ActionArchive  Action = "archive"

	// Written to the audit log by outer collaborators, never produced by the
	// transition function.
	ActionComment        Action = "comment"
	ActionUploadRevision Action = "upload_revision"
)

// Entity is the workflow-relevant projection of a Space, Cabinet, Record or
// Letter. Variant-specific content columns stay with the owning CRUD
// collaborator.
type Entity struct {
	ID               string
	Kind             EntityKind
	Title            string
	CreatedBy        string
	Status           Status
	RejectionReason  *string
	CurrentStepIndex int
	NextActionBy     *string
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
}

// ChainEntry is one reviewer/approver position in an entity's chain.
// Reassignment retires an entry (status "reassigned") and appends a new
// pending entry at the same sequence order; retired entries are history.
type ChainEntry struct {
	ID                   string
	EntityID             string
	SequenceOrder        int
	Stage                Stage
	UserID               string
	Status               EntryStatus
	Comment              *string
	ActedAt              *time.Time
	ReassignedFromUserID *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Live reports whether the entry still participates in chain resolution.
func (e ChainEntry) Live() bool {
	return e.Status != EntryReassigned
}

// ReassignmentRecord is an immutable log entry for one handoff.
type ReassignmentRecord struct {
	ID         string
	EntityKind EntityKind
	EntityID   string
	FromUserID string
	ToUserID   string
	Message    *string
	CreatedAt  time.Time
}

// AuditEntry is one immutable record in the workflow audit log.
type AuditEntry struct {
	ID           string
	EntityKind   EntityKind
	EntityID     string
	ActorID      string
	Action       Action
	Comment      *string
	Details      map[string]interface{}
	StatusBefore Status
	StatusAfter  Status
	CreatedAt    time.Time
}

// Event is a notification side effect computed by the transition function
// and published by the orchestrator after commit.
type Event struct {
	Type        string
	RecipientID string
	Metadata    map[string]interface{}
}

// Notification event types, published as notifications.dms.<type>.
const (
	EventReviewRequested = "review_requested"
	EventApproved        = "approved"
	EventRejected        = "rejected"
	EventReassigned      = "reassigned"
	EventArchived        = "archived"
)
