package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-dms-workflow/internal/platform/database"
	"github.com/pesio-ai/be-dms-workflow/internal/platform/errors"
	"github.com/pesio-ai/be-dms-workflow/internal/workflow"
)

// AuditRepository appends and reads immutable workflow audit entries. The
// table is append-only; no update or delete is exposed.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry using q, which is the orchestrator's
// transaction when the entry accompanies a state change.
func (r *AuditRepository) Append(ctx context.Context, q database.Querier, entry *workflow.AuditEntry) error {
	var detailsJSON []byte
	if entry.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(entry.Details)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit details")
		}
	}

	entry.ID = uuid.NewString()
	query := `
		INSERT INTO workflow_audit_log
		    (id, entity_kind, entity_id, actor_id, action,
		     comment, details, status_before, status_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := q.QueryRow(ctx, query,
		entry.ID,
		entry.EntityKind,
		entry.EntityID,
		entry.ActorID,
		entry.Action,
		entry.Comment,
		detailsJSON,
		entry.StatusBefore,
		entry.StatusAfter,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return database.Classify(err, "failed to append audit entry")
	}
	return nil
}

// ListForEntity returns the audit trail for one entity, oldest first.
func (r *AuditRepository) ListForEntity(ctx context.Context, kind workflow.EntityKind, entityID string) ([]*workflow.AuditEntry, error) {
	query := `
		SELECT id, entity_kind, entity_id, actor_id, action,
		       comment, details, status_before, status_after, created_at
		FROM workflow_audit_log
		WHERE entity_kind = $1 AND entity_id = $2
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, kind, entityID)
	if err != nil {
		return nil, database.Classify(err, "failed to list audit entries")
	}
	defer rows.Close()

	var entries []*workflow.AuditEntry
	for rows.Next() {
		entry := &workflow.AuditEntry{}
		var detailsJSON []byte
		err := rows.Scan(
			&entry.ID,
			&entry.EntityKind,
			&entry.EntityID,
			&entry.ActorID,
			&entry.Action,
			&entry.Comment,
			&detailsJSON,
			&entry.StatusBefore,
			&entry.StatusAfter,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, database.Classify(err, "failed to scan audit entry")
		}
		if detailsJSON != nil {
			if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit details")
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
