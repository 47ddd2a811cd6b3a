package workflow

import (
	"time"

	"github.com/pesio-ai/be-dms-workflow/internal/platform/errors"
)

// Command is one requested workflow action, with the actor's resolved
// capabilities. Now is injected so transitions stay deterministic.
type Command struct {
	Action    Action
	ActorID   string
	ActorCaps CapabilitySet
	Now       time.Time

	Comment *string // approve
	Reason  string  // reject

	FromUserID string  // reassign
	ToUserID   string  // reassign
	Message    *string // reassign
}

// Outcome is the computed result of a transition: the entity's new workflow
// fields, the full updated chain (new entries have an empty ID), the
// reassignment record when one must be appended, and the notification events
// to publish after commit.
type Outcome struct {
	Status           Status
	CurrentStepIndex int
	NextActionBy     *string
	RejectionReason  *string

	Chain        []ChainEntry
	Reassignment *ReassignmentRecord
	Events       []Event
}

// Transition computes the next state for an entity given its chain and a
// command. It never mutates its inputs and performs no I/O; persistence and
// notification are the orchestrator's job. Errors are deterministic and must
// not be retried.
func Transition(entity *Entity, entries []ChainEntry, cmd Command) (*Outcome, error) {
	if !entity.Kind.Valid() {
		return nil, errors.Newf(errors.ErrCodeInvalidInput, "unknown entity kind %q", entity.Kind)
	}

	chain, err := NewChain(entries)
	if err != nil {
		return nil, err
	}
	policy := PolicyFor(entity.Kind)

	switch cmd.Action {
	case ActionSubmit:
		return submit(entity, chain, policy, cmd)
	case ActionApprove:
		return approve(entity, chain, policy, cmd)
	case ActionReject:
		return reject(entity, chain, cmd)
	case ActionReassign:
		return reassign(entity, chain, policy, cmd)
	case ActionResubmit:
		return resubmit(entity, chain, policy, cmd)
	case ActionArchive:
		return archive(entity, chain, policy, cmd)
	}
	return nil, errors.Newf(errors.ErrCodeInvalidInput, "unknown action %q", cmd.Action)
}

func submit(entity *Entity, chain *Chain, policy VariantPolicy, cmd Command) (*Outcome, error) {
	if entity.Status != StatusDraft {
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"%s %s cannot be submitted from status %q", entity.Kind, entity.ID, entity.Status)
	}
	if chain.LiveLen() == 0 {
		return nil, errors.InvalidInput("chain", "at least one reviewer must be configured before submitting")
	}
	for _, e := range chain.Entries() {
		if e.Live() && e.Status != EntryPending {
			return nil, errors.Newf(errors.ErrCodeInvalidState,
				"chain entry %d already acted on; entity cannot be submitted", e.SequenceOrder)
		}
	}

	first := chain.NextPending()
	return &Outcome{
		Status:           policy.awaitingStatus(first),
		CurrentStepIndex: first.SequenceOrder,
		NextActionBy:     &first.UserID,
		Chain:            chain.Entries(),
		Events: []Event{{
			Type:        EventReviewRequested,
			RecipientID: first.UserID,
			Metadata:    map[string]interface{}{"sequence_order": first.SequenceOrder},
		}},
	}, nil
}

func approve(entity *Entity, chain *Chain, policy VariantPolicy, cmd Command) (*Outcome, error) {
	next, err := requireActive(entity, chain)
	if err != nil {
		return nil, err
	}
	if cmd.ActorID != next.UserID {
		return nil, errors.Newf(errors.ErrCodeUnauthorized,
			"user %s is not the active reviewer for %s %s", cmd.ActorID, entity.Kind, entity.ID)
	}

	next.Status = EntryApproved
	next.ActedAt = &cmd.Now
	next.Comment = cmd.Comment

	out := &Outcome{Chain: chain.Entries()}
	if after := chain.NextPending(); after != nil {
		out.Status = policy.awaitingStatus(after)
		out.CurrentStepIndex = after.SequenceOrder
		out.NextActionBy = &after.UserID
		out.Events = append(out.Events, Event{
			Type:        EventReviewRequested,
			RecipientID: after.UserID,
			Metadata:    map[string]interface{}{"sequence_order": after.SequenceOrder},
		})
		return out, nil
	}

	// Chain exhausted: every live entry approved or skipped.
	out.Status = StatusApproved
	out.CurrentStepIndex = next.SequenceOrder
	out.NextActionBy = nil
	out.Events = append(out.Events, Event{
		Type:        EventApproved,
		RecipientID: entity.CreatedBy,
		Metadata:    map[string]interface{}{"approved_by": cmd.ActorID},
	})
	return out, nil
}

func reject(entity *Entity, chain *Chain, cmd Command) (*Outcome, error) {
	next, err := requireActive(entity, chain)
	if err != nil {
		return nil, err
	}
	if cmd.ActorID != next.UserID {
		return nil, errors.Newf(errors.ErrCodeUnauthorized,
			"user %s is not the active reviewer for %s %s", cmd.ActorID, entity.Kind, entity.ID)
	}
	if cmd.Reason == "" {
		return nil, errors.InvalidInput("reason", "rejection reason is required")
	}

	next.Status = EntryRejected
	next.ActedAt = &cmd.Now
	next.Comment = &cmd.Reason

	// Rejection short-circuits the chain for every variant; remaining
	// entries never get to act.
	reason := cmd.Reason
	return &Outcome{
		Status:           StatusRejected,
		CurrentStepIndex: next.SequenceOrder,
		NextActionBy:     nil,
		RejectionReason:  &reason,
		Chain:            chain.Entries(),
		Events: []Event{{
			Type:        EventRejected,
			RecipientID: entity.CreatedBy,
			Metadata:    map[string]interface{}{"rejected_by": cmd.ActorID, "reason": reason},
		}},
	}, nil
}

func reassign(entity *Entity, chain *Chain, policy VariantPolicy, cmd Command) (*Outcome, error) {
	next, err := requireActive(entity, chain)
	if err != nil {
		return nil, err
	}
	if cmd.ToUserID == "" {
		return nil, errors.InvalidInput("to_user_id", "reassignment target is required")
	}
	if cmd.ToUserID == cmd.FromUserID {
		return nil, errors.InvalidInput("to_user_id", "cannot reassign a step to its current holder")
	}
	if cmd.FromUserID != next.UserID {
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"user %s does not hold the active step for %s %s", cmd.FromUserID, entity.Kind, entity.ID)
	}

	allowed := cmd.ActorID == next.UserID ||
		cmd.ActorCaps.Has(CapReassignAny) ||
		(policy.CreatorMayReassign && cmd.ActorID == entity.CreatedBy)
	if !allowed {
		return nil, errors.Newf(errors.ErrCodeUnauthorized,
			"user %s may not reassign the active step for %s %s", cmd.ActorID, entity.Kind, entity.ID)
	}

	next.Status = EntryReassigned
	next.ActedAt = &cmd.Now

	from := cmd.FromUserID
	replacement := ChainEntry{
		EntityID:             entity.ID,
		SequenceOrder:        next.SequenceOrder,
		Stage:                next.Stage,
		UserID:               cmd.ToUserID,
		Status:               EntryPending,
		ReassignedFromUserID: &from,
	}

	to := cmd.ToUserID
	return &Outcome{
		// Entity status and step are unchanged by a reassignment.
		Status:           entity.Status,
		CurrentStepIndex: next.SequenceOrder,
		NextActionBy:     &to,
		RejectionReason:  entity.RejectionReason,
		Chain:            append(chain.Entries(), replacement),
		Reassignment: &ReassignmentRecord{
			EntityKind: entity.Kind,
			EntityID:   entity.ID,
			FromUserID: cmd.FromUserID,
			ToUserID:   cmd.ToUserID,
			Message:    cmd.Message,
		},
		Events: []Event{{
			Type:        EventReassigned,
			RecipientID: cmd.ToUserID,
			Metadata: map[string]interface{}{
				"from_user_id":   cmd.FromUserID,
				"sequence_order": next.SequenceOrder,
			},
		}},
	}, nil
}

func resubmit(entity *Entity, chain *Chain, policy VariantPolicy, cmd Command) (*Outcome, error) {
	if entity.Status != StatusRejected {
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"%s %s cannot be resubmitted from status %q", entity.Kind, entity.ID, entity.Status)
	}
	if cmd.ActorID != entity.CreatedBy {
		return nil, errors.Newf(errors.ErrCodeUnauthorized,
			"only the creator may resubmit %s %s", entity.Kind, entity.ID)
	}

	// Reset every live entry in its original order. Skipped entries stay
	// skipped: their users are gone and must not re-enter the chain.
	entries := chain.Entries()
	for i := range entries {
		e := &entries[i]
		if !e.Live() || e.Status == EntrySkipped {
			continue
		}
		e.Status = EntryPending
		e.ActedAt = nil
		e.Comment = nil
	}

	reset, err := NewChain(entries)
	if err != nil {
		return nil, err
	}
	first := reset.NextPending()
	if first == nil {
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"chain for %s %s has no resubmittable entries", entity.Kind, entity.ID)
	}

	return &Outcome{
		Status:           policy.awaitingStatus(first),
		CurrentStepIndex: first.SequenceOrder,
		NextActionBy:     &first.UserID,
		RejectionReason:  nil,
		Chain:            reset.Entries(),
		Events: []Event{{
			Type:        EventReviewRequested,
			RecipientID: first.UserID,
			Metadata:    map[string]interface{}{"sequence_order": first.SequenceOrder, "resubmitted": true},
		}},
	}, nil
}

func archive(entity *Entity, chain *Chain, policy VariantPolicy, cmd Command) (*Outcome, error) {
	if !policy.AllowsArchive {
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"%s entities cannot be archived", entity.Kind)
	}
	if entity.Status != StatusApproved {
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"%s %s cannot be archived from status %q", entity.Kind, entity.ID, entity.Status)
	}
	if cmd.ActorID != entity.CreatedBy && !cmd.ActorCaps.Has(CapArchive) {
		return nil, errors.Newf(errors.ErrCodeUnauthorized,
			"user %s may not archive %s %s", cmd.ActorID, entity.Kind, entity.ID)
	}

	return &Outcome{
		Status:           StatusArchived,
		CurrentStepIndex: entity.CurrentStepIndex,
		NextActionBy:     nil,
		Chain:            chain.Entries(),
		Events: []Event{{
			Type:        EventArchived,
			RecipientID: entity.CreatedBy,
			Metadata:    map[string]interface{}{"archived_by": cmd.ActorID},
		}},
	}, nil
}

// requireActive checks that the entity is awaiting action and returns the
// active chain entry. An awaiting entity with no pending entry is corrupt
// stored data, not a caller mistake.
func requireActive(entity *Entity, chain *Chain) (*ChainEntry, error) {
	if !entity.Status.Awaiting() {
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"%s %s is not awaiting action (status %q)", entity.Kind, entity.ID, entity.Status)
	}
	next := chain.NextPending()
	if next == nil {
		return nil, errors.Newf(errors.ErrCodeCorruptChain,
			"%s %s is awaiting action but its chain has no pending entry", entity.Kind, entity.ID)
	}
	return next, nil
}
