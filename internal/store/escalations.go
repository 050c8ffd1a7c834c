package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"intldossier/api/internal/hierarchy"
)

// HierarchyEntry implements hierarchy.Source. The boolean is false when the
// user has no row in organizational_hierarchy.
func (s *PostgresStore) HierarchyEntry(ctx context.Context, userID string) (hierarchy.Step, bool, error) {
	var step hierarchy.Step
	var reportsTo sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT oh.user_id, sm.display_name, oh.position_title, oh.department, oh.reports_to_id
		  FROM organizational_hierarchy oh
		  JOIN staff_members sm ON sm.id = oh.user_id
		 WHERE oh.user_id = $1
	`, userID).Scan(&step.UserID, &step.DisplayName, &step.PositionTitle, &step.Department, &reportsTo)
	if err == sql.ErrNoRows {
		// No hierarchy row; surface the staff name if the user exists so
		// chain-terminal superiors still render.
		var name string
		if nameErr := s.db.QueryRowContext(ctx,
			`SELECT display_name FROM staff_members WHERE id=$1`, userID).Scan(&name); nameErr == nil {
			step.DisplayName = name
		}
		return step, false, nil
	}
	if err != nil {
		return hierarchy.Step{}, false, fmt.Errorf("query hierarchy entry: %w", err)
	}
	step.ReportsToID = reportsTo.String
	return step, true, nil
}

func (s *PostgresStore) GetHierarchyEdge(ctx context.Context, userID string) (HierarchyEdge, error) {
	var edge HierarchyEdge
	err := s.db.QueryRowContext(ctx, `
		SELECT oh.user_id, oh.reports_to_id, oh.position_title, oh.department, oh.updated_at, sm.display_name
		  FROM organizational_hierarchy oh
		  JOIN staff_members sm ON sm.id = oh.user_id
		 WHERE oh.user_id = $1
	`, userID).Scan(&edge.UserID, &edge.ReportsToID, &edge.PositionTitle, &edge.Department, &edge.UpdatedAt, &edge.DisplayName)
	if err != nil {
		return HierarchyEdge{}, err
	}
	return edge, nil
}

func (s *PostgresStore) UpsertHierarchyEdge(ctx context.Context, edge HierarchyEdge) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizational_hierarchy (user_id, reports_to_id, position_title, department)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
			SET reports_to_id=EXCLUDED.reports_to_id,
			    position_title=EXCLUDED.position_title,
			    department=EXCLUDED.department,
			    updated_at=NOW()
	`, edge.UserID, edge.ReportsToID, edge.PositionTitle, edge.Department)
	if err != nil {
		return fmt.Errorf("upsert hierarchy edge: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteHierarchyEdge(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM organizational_hierarchy WHERE user_id=$1`, userID)
	if err != nil {
		return fmt.Errorf("delete hierarchy edge: %w", err)
	}
	return nil
}

// EscalateAssignment performs the escalation write pair in one transaction:
// the escalation record insert and the assignment update either both land or
// neither does.
func (s *PostgresStore) EscalateAssignment(ctx context.Context, rec EscalationRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin escalation tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO escalation_records (id, assignment_id, escalated_by, escalated_to_id, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.ID, rec.AssignmentID, rec.EscalatedBy, rec.EscalatedToID, rec.Reason, rec.Status); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert escalation record: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE assignments
		   SET status='escalated', escalation_recipient_id=$2, updated_at=NOW()
		 WHERE id=$1
	`, rec.AssignmentID, rec.EscalatedToID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update escalated assignment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit escalation tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEscalationRecords(ctx context.Context, assignmentID string) ([]EscalationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, assignment_id, escalated_by, escalated_to_id, reason, status, created_at
		  FROM escalation_records
		 WHERE assignment_id=$1
		 ORDER BY created_at DESC
	`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("list escalation records: %w", err)
	}
	defer rows.Close()

	var items []EscalationRecord
	for rows.Next() {
		var r EscalationRecord
		if err := rows.Scan(&r.ID, &r.AssignmentID, &r.EscalatedBy, &r.EscalatedToID,
			&r.Reason, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan escalation record: %w", err)
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

func (s *PostgresStore) InsertEscalationJob(ctx context.Context, job EscalationJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escalation_jobs (id, total_items, status, reason, requested_by)
		VALUES ($1, $2, $3, $4, $5)
	`, job.ID, job.TotalItems, job.Status, job.Reason, job.RequestedBy)
	if err != nil {
		return fmt.Errorf("insert escalation job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEscalationJob(ctx context.Context, jobID string) (EscalationJob, error) {
	var job EscalationJob
	err := s.db.QueryRowContext(ctx, `
		SELECT id, total_items, successful_items, failed_items, status, reason,
		       requested_by, created_at, completed_at
		  FROM escalation_jobs WHERE id=$1
	`, jobID).Scan(&job.ID, &job.TotalItems, &job.SuccessfulItems, &job.FailedItems,
		&job.Status, &job.Reason, &job.RequestedBy, &job.CreatedAt, &job.CompletedAt)
	if err != nil {
		return EscalationJob{}, err
	}
	return job, nil
}

func (s *PostgresStore) InsertJobItem(ctx context.Context, item JobItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escalation_job_items (job_id, position, assignment_id, success, escalation_id, error)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.JobID, item.Position, item.AssignmentID, item.Success, item.EscalationID, item.Error)
	if err != nil {
		return fmt.Errorf("insert job item: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListJobItems(ctx context.Context, jobID string) ([]JobItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, position, assignment_id, success, escalation_id, error
		  FROM escalation_job_items
		 WHERE job_id=$1
		 ORDER BY position ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job items: %w", err)
	}
	defer rows.Close()

	var items []JobItem
	for rows.Next() {
		var it JobItem
		if err := rows.Scan(&it.JobID, &it.Position, &it.AssignmentID, &it.Success, &it.EscalationID, &it.Error); err != nil {
			return nil, fmt.Errorf("scan job item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *PostgresStore) FinishEscalationJob(ctx context.Context, jobID, status string, successful, failed int, completedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE escalation_jobs
		   SET status=$2, successful_items=$3, failed_items=$4, completed_at=$5
		 WHERE id=$1
	`, jobID, status, successful, failed, completedAt)
	if err != nil {
		return fmt.Errorf("finish escalation job: %w", err)
	}
	return nil
}
