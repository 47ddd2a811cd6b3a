package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-dms-workflow/internal/platform/database"
	"github.com/pesio-ai/be-dms-workflow/internal/workflow"
)

// ReassignmentRepository appends and reads the append-only reassignment log.
type ReassignmentRepository struct {
	db *database.DB
}

// NewReassignmentRepository creates a new ReassignmentRepository.
func NewReassignmentRepository(db *database.DB) *ReassignmentRepository {
	return &ReassignmentRepository{db: db}
}

// Append inserts one reassignment record inside the orchestrator's
// transaction.
func (r *ReassignmentRepository) Append(ctx context.Context, q database.Querier, rec *workflow.ReassignmentRecord) error {
	rec.ID = uuid.NewString()
	query := `
		INSERT INTO workflow_reassignments
		    (id, entity_kind, entity_id, from_user_id, to_user_id, message)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := q.QueryRow(ctx, query,
		rec.ID,
		rec.EntityKind,
		rec.EntityID,
		rec.FromUserID,
		rec.ToUserID,
		rec.Message,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return database.Classify(err, "failed to append reassignment record")
	}
	return nil
}

// ListForEntity returns all reassignments for one entity, oldest first.
func (r *ReassignmentRepository) ListForEntity(ctx context.Context, kind workflow.EntityKind, entityID string) ([]*workflow.ReassignmentRecord, error) {
	query := `
		SELECT id, entity_kind, entity_id, from_user_id, to_user_id, message, created_at
		FROM workflow_reassignments
		WHERE entity_kind = $1 AND entity_id = $2
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, kind, entityID)
	if err != nil {
		return nil, database.Classify(err, "failed to list reassignments")
	}
	defer rows.Close()

	var records []*workflow.ReassignmentRecord
	for rows.Next() {
		rec := &workflow.ReassignmentRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.EntityKind,
			&rec.EntityID,
			&rec.FromUserID,
			&rec.ToUserID,
			&rec.Message,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, database.Classify(err, "failed to scan reassignment record")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
