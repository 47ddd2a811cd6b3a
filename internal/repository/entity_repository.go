// Package repository implements the Entity Store on Postgres. All workflow
// state mutations go through EntityRepository.Transition, which owns the
// per-entity transaction boundary.
package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-dms-workflow/internal/platform/database"
	"github.com/pesio-ai/be-dms-workflow/internal/platform/errors"
	"github.com/pesio-ai/be-dms-workflow/internal/workflow"
)

// Each variant keeps its own entity and chain tables; the workflow columns
// are identical across variants.
var entityTables = map[workflow.EntityKind]string{
	workflow.KindSpace:   "spaces",
	workflow.KindCabinet: "cabinets",
	workflow.KindRecord:  "records",
	workflow.KindLetter:  "letters",
}

var chainTables = map[workflow.EntityKind]string{
	workflow.KindSpace:   "space_approvers",
	workflow.KindCabinet: "cabinet_approvers",
	workflow.KindRecord:  "record_approvers",
	workflow.KindLetter:  "letter_reviewers",
}

// TransitionResult is what a transition callback hands back for persistence:
// the entity with its new workflow fields, the full chain (entries without an
// ID are inserted), one audit entry, and the reassignment record when the
// action was a reassignment.
type TransitionResult struct {
	Entity       *workflow.Entity
	Chain        []workflow.ChainEntry
	Audit        *workflow.AuditEntry
	Reassignment *workflow.ReassignmentRecord
}

// EntityRepository loads and persists approvable entities and their chains.
type EntityRepository struct {
	db           *database.DB
	audit        *AuditRepository
	reassignment *ReassignmentRepository
}

// NewEntityRepository creates a new EntityRepository.
func NewEntityRepository(db *database.DB, audit *AuditRepository, reassignment *ReassignmentRepository) *EntityRepository {
	return &EntityRepository{db: db, audit: audit, reassignment: reassignment}
}

// Transition runs apply against the locked entity and chain, then persists
// the result atomically: entity update (with version check), chain entry
// updates/inserts, one audit entry and an optional reassignment record.
// Errors returned by apply abort the transaction and are surfaced unchanged.
func (r *EntityRepository) Transition(
	ctx context.Context,
	kind workflow.EntityKind,
	entityID string,
	apply func(entity *workflow.Entity, chain []workflow.ChainEntry) (*TransitionResult, error),
) error {
	table, ok := entityTables[kind]
	if !ok {
		return errors.Newf(errors.ErrCodeInvalidInput, "unknown entity kind %q", kind)
	}

	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		entity, err := r.loadForUpdate(ctx, tx, table, kind, entityID)
		if err != nil {
			return err
		}

		chain, err := r.loadChain(ctx, tx, kind, entityID)
		if err != nil {
			return err
		}

		result, err := apply(entity, chain)
		if err != nil {
			return err
		}

		if err := r.saveEntity(ctx, tx, table, result.Entity); err != nil {
			return err
		}
		if err := r.saveChain(ctx, tx, kind, result.Entity.ID, result.Chain); err != nil {
			return err
		}
		if err := r.audit.Append(ctx, tx, result.Audit); err != nil {
			return err
		}
		if result.Reassignment != nil {
			if err := r.reassignment.Append(ctx, tx, result.Reassignment); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns an entity and its full chain without locking.
func (r *EntityRepository) Get(ctx context.Context, kind workflow.EntityKind, entityID string) (*workflow.Entity, []workflow.ChainEntry, error) {
	table, ok := entityTables[kind]
	if !ok {
		return nil, nil, errors.Newf(errors.ErrCodeInvalidInput, "unknown entity kind %q", kind)
	}

	entity, err := r.scanEntity(kind, r.db.QueryRow(ctx, selectEntity(table, ""), entityID))
	if err == pgx.ErrNoRows {
		return nil, nil, errors.NotFound(string(kind), entityID)
	}
	if err != nil {
		return nil, nil, database.Classify(err, "failed to load entity")
	}

	chain, err := r.loadChain(ctx, r.db, kind, entityID)
	if err != nil {
		return nil, nil, err
	}
	return entity, chain, nil
}

// PendingItem is one chain step currently awaiting a specific user.
type PendingItem struct {
	EntityKind    workflow.EntityKind
	EntityID      string
	Title         string
	Status        workflow.Status
	SequenceOrder int
	Stage         workflow.Stage
}

// PendingForUser returns every step, across all variants, where the user is
// the active actor.
func (r *EntityRepository) PendingForUser(ctx context.Context, userID string) ([]PendingItem, error) {
	query := `
		SELECT 'space' AS kind, e.id, e.title, e.status, c.sequence_order, c.stage
		FROM space_approvers c JOIN spaces e ON e.id = c.entity_id
		WHERE c.user_id = $1 AND c.status = 'pending'
		  AND e.next_action_by_id = $1 AND e.deleted_at IS NULL
		UNION ALL
		SELECT 'cabinet', e.id, e.title, e.status, c.sequence_order, c.stage
		FROM cabinet_approvers c JOIN cabinets e ON e.id = c.entity_id
		WHERE c.user_id = $1 AND c.status = 'pending'
		  AND e.next_action_by_id = $1 AND e.deleted_at IS NULL
		UNION ALL
		SELECT 'record', e.id, e.title, e.status, c.sequence_order, c.stage
		FROM record_approvers c JOIN records e ON e.id = c.entity_id
		WHERE c.user_id = $1 AND c.status = 'pending'
		  AND e.next_action_by_id = $1 AND e.deleted_at IS NULL
		UNION ALL
		SELECT 'letter', e.id, e.title, e.status, c.sequence_order, c.stage
		FROM letter_reviewers c JOIN letters e ON e.id = c.entity_id
		WHERE c.user_id = $1 AND c.status = 'pending'
		  AND e.next_action_by_id = $1 AND e.deleted_at IS NULL
		ORDER BY 2
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, database.Classify(err, "failed to list pending approvals")
	}
	defer rows.Close()

	var items []PendingItem
	for rows.Next() {
		var it PendingItem
		if err := rows.Scan(&it.EntityKind, &it.EntityID, &it.Title, &it.Status, &it.SequenceOrder, &it.Stage); err != nil {
			return nil, database.Classify(err, "failed to scan pending approval")
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// SoftDelete retires an entity while retaining it, its chain, and its audit
// trail for history. Hard deletes are deliberately not exposed.
func (r *EntityRepository) SoftDelete(ctx context.Context, kind workflow.EntityKind, entityID string) error {
	table, ok := entityTables[kind]
	if !ok {
		return errors.Newf(errors.ErrCodeInvalidInput, "unknown entity kind %q", kind)
	}

	query := `
		UPDATE ` + table + `
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	tag, err := r.db.Exec(ctx, query, entityID)
	if err != nil {
		return database.Classify(err, "failed to soft-delete entity")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound(string(kind), entityID)
	}
	return nil
}

// ── internal ──────────────────────────────────────────────────────────────────

func selectEntity(table, suffix string) string {
	return `
		SELECT id, title, created_by, status, rejection_reason,
		       current_step_index, next_action_by_id, version,
		       created_at, updated_at, deleted_at
		FROM ` + table + `
		WHERE id = $1 AND deleted_at IS NULL` + suffix
}

func (r *EntityRepository) loadForUpdate(ctx context.Context, tx pgx.Tx, table string, kind workflow.EntityKind, entityID string) (*workflow.Entity, error) {
	entity, err := r.scanEntity(kind, tx.QueryRow(ctx, selectEntity(table, " FOR UPDATE"), entityID))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound(string(kind), entityID)
	}
	if err != nil {
		return nil, database.Classify(err, "failed to lock entity")
	}
	return entity, nil
}

type entityScanner interface {
	Scan(dest ...any) error
}

func (r *EntityRepository) scanEntity(kind workflow.EntityKind, row entityScanner) (*workflow.Entity, error) {
	e := &workflow.Entity{Kind: kind}
	err := row.Scan(
		&e.ID,
		&e.Title,
		&e.CreatedBy,
		&e.Status,
		&e.RejectionReason,
		&e.CurrentStepIndex,
		&e.NextActionBy,
		&e.Version,
		&e.CreatedAt,
		&e.UpdatedAt,
		&e.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *EntityRepository) loadChain(ctx context.Context, q database.Querier, kind workflow.EntityKind, entityID string) ([]workflow.ChainEntry, error) {
	query := `
		SELECT id, entity_id, sequence_order, stage, user_id, status,
		       comment, acted_at, reassigned_from_user_id,
		       created_at, updated_at
		FROM ` + chainTables[kind] + `
		WHERE entity_id = $1
		ORDER BY sequence_order ASC, created_at ASC
	`

	rows, err := q.Query(ctx, query, entityID)
	if err != nil {
		return nil, database.Classify(err, "failed to load chain")
	}
	defer rows.Close()

	var entries []workflow.ChainEntry
	for rows.Next() {
		var e workflow.ChainEntry
		err := rows.Scan(
			&e.ID,
			&e.EntityID,
			&e.SequenceOrder,
			&e.Stage,
			&e.UserID,
			&e.Status,
			&e.Comment,
			&e.ActedAt,
			&e.ReassignedFromUserID,
			&e.CreatedAt,
			&e.UpdatedAt,
		)
		if err != nil {
			return nil, database.Classify(err, "failed to scan chain entry")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// saveEntity persists the workflow columns with an optimistic version check.
// A lost check means another transaction advanced the entity between our
// read and write, which the caller may retry.
func (r *EntityRepository) saveEntity(ctx context.Context, tx pgx.Tx, table string, e *workflow.Entity) error {
	query := `
		UPDATE ` + table + `
		SET status = $2,
		    rejection_reason = $3,
		    current_step_index = $4,
		    next_action_by_id = $5,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND version = $6
	`

	tag, err := tx.Exec(ctx, query,
		e.ID,
		e.Status,
		e.RejectionReason,
		e.CurrentStepIndex,
		e.NextActionBy,
		e.Version,
	)
	if err != nil {
		return database.Classify(err, "failed to update entity")
	}
	if tag.RowsAffected() == 0 {
		return errors.Newf(errors.ErrCodeConflict,
			"entity %s was modified concurrently", e.ID)
	}
	return nil
}

func (r *EntityRepository) saveChain(ctx context.Context, tx pgx.Tx, kind workflow.EntityKind, entityID string, entries []workflow.ChainEntry) error {
	table := chainTables[kind]

	updateQuery := `
		UPDATE ` + table + `
		SET status = $2,
		    comment = $3,
		    acted_at = $4,
		    updated_at = NOW()
		WHERE id = $1
	`
	insertQuery := `
		INSERT INTO ` + table + `
		    (id, entity_id, sequence_order, stage, user_id, status,
		     comment, acted_at, reassigned_from_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	for i := range entries {
		e := &entries[i]
		if e.ID != "" {
			if _, err := tx.Exec(ctx, updateQuery, e.ID, e.Status, e.Comment, e.ActedAt); err != nil {
				return database.Classify(err, "failed to update chain entry")
			}
			continue
		}

		e.ID = uuid.NewString()
		_, err := tx.Exec(ctx, insertQuery,
			e.ID,
			entityID,
			e.SequenceOrder,
			e.Stage,
			e.UserID,
			e.Status,
			e.Comment,
			e.ActedAt,
			e.ReassignedFromUserID,
		)
		if err != nil {
			return database.Classify(err, "failed to insert chain entry")
		}
	}
	return nil
}
