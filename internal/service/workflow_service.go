// Package service contains the workflow orchestrator: the only component
// that mutates persisted entity, chain, audit and reassignment state.
package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-dms-workflow/internal/platform/errors"
	"github.com/pesio-ai/be-dms-workflow/internal/platform/logger"
	"github.com/pesio-ai/be-dms-workflow/internal/repository"
	"github.com/pesio-ai/be-dms-workflow/internal/workflow"
)

// EntityStore is the transactional boundary around one entity. The real
// implementation is repository.EntityRepository.
type EntityStore interface {
	Transition(
		ctx context.Context,
		kind workflow.EntityKind,
		entityID string,
		apply func(entity *workflow.Entity, chain []workflow.ChainEntry) (*repository.TransitionResult, error),
	) error
	Get(ctx context.Context, kind workflow.EntityKind, entityID string) (*workflow.Entity, []workflow.ChainEntry, error)
	PendingForUser(ctx context.Context, userID string) ([]repository.PendingItem, error)
}

// AuditLog reads the append-only audit trail.
type AuditLog interface {
	ListForEntity(ctx context.Context, kind workflow.EntityKind, entityID string) ([]*workflow.AuditEntry, error)
}

// ReassignmentLog reads the append-only reassignment history.
type ReassignmentLog interface {
	ListForEntity(ctx context.Context, kind workflow.EntityKind, entityID string) ([]*workflow.ReassignmentRecord, error)
}

// IdentityClientInterface resolves actors against the identity service.
type IdentityClientInterface interface {
	// GetUserRoles returns the role names a user holds.
	GetUserRoles(ctx context.Context, userID string) ([]string, error)
	// IsActive reports whether the user account is live.
	IsActive(ctx context.Context, userID string) (bool, error)
}

// NotificationSink delivers user-facing events. Delivery is at-least-once
// and strictly downstream of durable state; implementations never return
// errors to the orchestrator.
type NotificationSink interface {
	PublishWorkflowEvent(
		ctx context.Context,
		eventType string,
		kind workflow.EntityKind,
		entityID, actorID, recipientID string,
		metadata map[string]interface{},
	)
}

// Result is the entity summary returned to transport collaborators.
type Result struct {
	EntityID         string               `json:"entity_id"`
	Kind             workflow.EntityKind  `json:"kind"`
	Status           workflow.Status      `json:"status"`
	CurrentStepIndex int                  `json:"current_step_index"`
	NextActionBy     *string              `json:"next_action_by,omitempty"`
	RejectionReason  *string              `json:"rejection_reason,omitempty"`
}

// WorkflowService orchestrates workflow actions: per-entity transaction,
// pure transition, atomic persistence, post-commit notification.
type WorkflowService struct {
	store         EntityStore
	auditLog      AuditLog
	reassignments ReassignmentLog
	identity      IdentityClientInterface
	notifications NotificationSink
	log           *logger.Logger
	now           func() time.Time
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(
	store EntityStore,
	auditLog AuditLog,
	reassignments ReassignmentLog,
	identity IdentityClientInterface,
	notifications NotificationSink,
	log *logger.Logger,
) *WorkflowService {
	return &WorkflowService{
		store:         store,
		auditLog:      auditLog,
		reassignments: reassignments,
		identity:      identity,
		notifications: notifications,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ── Workflow verbs ────────────────────────────────────────────────────────────

// Submit moves a draft entity into its first review step.
func (s *WorkflowService) Submit(ctx context.Context, kind workflow.EntityKind, entityID, actorID string) (*Result, error) {
	return s.act(ctx, kind, entityID, workflow.Command{
		Action:  workflow.ActionSubmit,
		ActorID: actorID,
	})
}

// Approve records the active reviewer's approval and advances or completes
// the chain.
func (s *WorkflowService) Approve(ctx context.Context, kind workflow.EntityKind, entityID, actorID string, comment *string) (*Result, error) {
	return s.act(ctx, kind, entityID, workflow.Command{
		Action:  workflow.ActionApprove,
		ActorID: actorID,
		Comment: comment,
	})
}

// Reject rejects the entity with a required reason, short-circuiting the
// remaining chain.
func (s *WorkflowService) Reject(ctx context.Context, kind workflow.EntityKind, entityID, actorID, reason string) (*Result, error) {
	return s.act(ctx, kind, entityID, workflow.Command{
		Action:  workflow.ActionReject,
		ActorID: actorID,
		Reason:  reason,
	})
}

// Reassign hands the active step from fromUserID to toUserID.
func (s *WorkflowService) Reassign(ctx context.Context, kind workflow.EntityKind, entityID, actorID, fromUserID, toUserID string, message *string) (*Result, error) {
	// The new holder must resolve to a live account before it becomes
	// next_action_by.
	active, err := s.identity.IsActive(ctx, toUserID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "could not verify reassignment target")
	}
	if !active {
		return nil, errors.InvalidInput("to_user_id", "reassignment target is not an active user")
	}

	return s.act(ctx, kind, entityID, workflow.Command{
		Action:     workflow.ActionReassign,
		ActorID:    actorID,
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Message:    message,
	})
}

// Resubmit resets a rejected entity's chain to step zero.
func (s *WorkflowService) Resubmit(ctx context.Context, kind workflow.EntityKind, entityID, actorID string) (*Result, error) {
	return s.act(ctx, kind, entityID, workflow.Command{
		Action:  workflow.ActionResubmit,
		ActorID: actorID,
	})
}

// Archive retires an approved record.
func (s *WorkflowService) Archive(ctx context.Context, kind workflow.EntityKind, entityID, actorID string) (*Result, error) {
	return s.act(ctx, kind, entityID, workflow.Command{
		Action:  workflow.ActionArchive,
		ActorID: actorID,
	})
}

// ── Queries ───────────────────────────────────────────────────────────────────

// Get returns an entity summary and its chain.
func (s *WorkflowService) Get(ctx context.Context, kind workflow.EntityKind, entityID string) (*Result, []workflow.ChainEntry, error) {
	entity, chain, err := s.store.Get(ctx, kind, entityID)
	if err != nil {
		return nil, nil, err
	}
	return resultFor(entity), chain, nil
}

// PendingForUser returns every step currently awaiting the user.
func (s *WorkflowService) PendingForUser(ctx context.Context, userID string) ([]repository.PendingItem, error) {
	return s.store.PendingForUser(ctx, userID)
}

// History returns the full audit trail for an entity.
func (s *WorkflowService) History(ctx context.Context, kind workflow.EntityKind, entityID string) ([]*workflow.AuditEntry, error) {
	return s.auditLog.ListForEntity(ctx, kind, entityID)
}

// Reassignments returns the reassignment history for an entity.
func (s *WorkflowService) Reassignments(ctx context.Context, kind workflow.EntityKind, entityID string) ([]*workflow.ReassignmentRecord, error) {
	return s.reassignments.ListForEntity(ctx, kind, entityID)
}

// ── Core ──────────────────────────────────────────────────────────────────────

// act runs one workflow command end to end: capability resolution, locked
// transition, atomic persistence, post-commit notification. Retryable
// failures (lock conflicts, transient store errors) are retried exactly
// once; deterministic transition errors never are.
func (s *WorkflowService) act(ctx context.Context, kind workflow.EntityKind, entityID string, cmd workflow.Command) (*Result, error) {
	if !kind.Valid() {
		return nil, errors.Newf(errors.ErrCodeInvalidInput, "unknown entity kind %q", kind)
	}
	if cmd.ActorID == "" {
		return nil, errors.InvalidInput("actor_id", "actor is required")
	}

	cmd.ActorCaps = s.resolveCapabilities(ctx, cmd.ActorID)
	cmd.Now = s.now()

	var (
		result *Result
		events []workflow.Event
	)
	op := func() error {
		return s.store.Transition(ctx, kind, entityID, func(entity *workflow.Entity, chain []workflow.ChainEntry) (*repository.TransitionResult, error) {
			out, err := workflow.Transition(entity, chain, cmd)
			if err != nil {
				return nil, err
			}

			statusBefore := entity.Status
			updated := *entity
			updated.Status = out.Status
			updated.CurrentStepIndex = out.CurrentStepIndex
			updated.NextActionBy = out.NextActionBy
			updated.RejectionReason = out.RejectionReason

			result = resultFor(&updated)
			events = out.Events

			return &repository.TransitionResult{
				Entity:       &updated,
				Chain:        out.Chain,
				Audit:        auditFor(&updated, cmd, statusBefore),
				Reassignment: out.Reassignment,
			}, nil
		})
	}

	err := op()
	if err != nil && errors.IsRetryable(err) {
		s.log.Warn().Err(err).
			Str("entity_kind", string(kind)).
			Str("entity_id", entityID).
			Str("action", string(cmd.Action)).
			Msg("retrying workflow action after transient failure")
		err = op()
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("entity_kind", string(kind)).
		Str("entity_id", entityID).
		Str("action", string(cmd.Action)).
		Str("actor_id", cmd.ActorID).
		Str("status", string(result.Status)).
		Msg("workflow action applied")

	// Notification is strictly downstream of the committed transition; the
	// sink logs its own failures and never rolls anything back.
	for _, ev := range events {
		s.notifications.PublishWorkflowEvent(ctx, ev.Type, kind, entityID, cmd.ActorID, ev.RecipientID, ev.Metadata)
	}

	return result, nil
}

// resolveCapabilities maps the actor's roles to a capability set. An
// unreachable identity service degrades to zero capabilities: holder-based
// checks still work, elevated actions fail authorization.
func (s *WorkflowService) resolveCapabilities(ctx context.Context, actorID string) workflow.CapabilitySet {
	roles, err := s.identity.GetUserRoles(ctx, actorID)
	if err != nil {
		s.log.Warn().Err(err).Str("actor_id", actorID).
			Msg("could not resolve actor roles; proceeding without elevated capabilities")
		return 0
	}
	return workflow.CapabilitiesForRoles(roles)
}

func resultFor(e *workflow.Entity) *Result {
	return &Result{
		EntityID:         e.ID,
		Kind:             e.Kind,
		Status:           e.Status,
		CurrentStepIndex: e.CurrentStepIndex,
		NextActionBy:     e.NextActionBy,
		RejectionReason:  e.RejectionReason,
	}
}

func auditFor(e *workflow.Entity, cmd workflow.Command, statusBefore workflow.Status) *workflow.AuditEntry {
	details := map[string]interface{}{
		"current_step_index": e.CurrentStepIndex,
	}
	switch cmd.Action {
	case workflow.ActionReject:
		details["reason"] = cmd.Reason
	case workflow.ActionReassign:
		details["from_user_id"] = cmd.FromUserID
		details["to_user_id"] = cmd.ToUserID
		if cmd.Message != nil {
			details["message"] = *cmd.Message
		}
	}

	return &workflow.AuditEntry{
		EntityKind:   e.Kind,
		EntityID:     e.ID,
		ActorID:      cmd.ActorID,
		Action:       cmd.Action,
		Comment:      cmd.Comment,
		Details:      details,
		StatusBefore: statusBefore,
		StatusAfter:  e.Status,
	}
}
