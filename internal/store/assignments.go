package store

import (
	"context"
	"database/sql"
	"fmt"
)

const assignmentColumns = `id, dossier_id, engagement_id, title, description,
	assignee_id, assigned_by, status, priority, sla_deadline,
	escalation_recipient_id, completed_at, created_at, updated_at`

func (s *PostgresStore) GetAssignment(ctx context.Context, assignmentID string) (Assignment, error) {
	var a Assignment
	err := s.db.QueryRowContext(ctx, `
		SELECT `+assignmentColumns+` FROM assignments WHERE id=$1
	`, assignmentID).Scan(&a.ID, &a.DossierID, &a.EngagementID, &a.Title, &a.Description,
		&a.AssigneeID, &a.AssignedBy, &a.Status, &a.Priority, &a.SLADeadline,
		&a.EscalationRecipientID, &a.CompletedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Assignment{}, err
	}
	return a, nil
}

func (s *PostgresStore) ListAssignments(ctx context.Context, dossierID, assigneeID, status string, limit, offset int) ([]Assignment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+assignmentColumns+`
		  FROM assignments
		 WHERE ($1 = '' OR dossier_id = $1)
		   AND ($2 = '' OR assignee_id = $2)
		   AND ($3 = '' OR status = $3)
		 ORDER BY created_at DESC
		 LIMIT $4 OFFSET $5
	`, dossierID, assigneeID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var items []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.ID, &a.DossierID, &a.EngagementID, &a.Title, &a.Description,
			&a.AssigneeID, &a.AssignedBy, &a.Status, &a.Priority, &a.SLADeadline,
			&a.EscalationRecipientID, &a.CompletedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (s *PostgresStore) InsertAssignment(ctx context.Context, a Assignment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assignments
			(id, dossier_id, engagement_id, title, description, assignee_id, assigned_by,
			 status, priority, sla_deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.DossierID, a.EngagementID, a.Title, a.Description, a.AssigneeID, a.AssignedBy,
		a.Status, a.Priority, a.SLADeadline)
	if err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

func (s *PostgresStore) CompleteAssignment(ctx context.Context, assignmentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE assignments
		   SET status='completed', completed_at=NOW(), updated_at=NOW()
		 WHERE id=$1 AND status <> 'completed'
	`, assignmentID)
	if err != nil {
		return false, fmt.Errorf("complete assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete assignment rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListAssignmentComments(ctx context.Context, assignmentID string) ([]AssignmentComment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.assignment_id, c.author_id, sm.display_name, c.body, c.created_at
		  FROM assignment_comments c
		  JOIN staff_members sm ON sm.id = c.author_id
		 WHERE c.assignment_id=$1
		 ORDER BY c.created_at ASC
	`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var items []AssignmentComment
	for rows.Next() {
		var c AssignmentComment
		if err := rows.Scan(&c.ID, &c.AssignmentID, &c.AuthorID, &c.AuthorName, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (s *PostgresStore) InsertAssignmentComment(ctx context.Context, c AssignmentComment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assignment_comments (id, assignment_id, author_id, body)
		VALUES ($1, $2, $3, $4)
	`, c.ID, c.AssignmentID, c.AuthorID, c.Body)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListChecklistItems(ctx context.Context, assignmentID string) ([]ChecklistItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, assignment_id, label, position, completed, completed_by, completed_at
		  FROM assignment_checklist_items
		 WHERE assignment_id=$1
		 ORDER BY position ASC
	`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("list checklist: %w", err)
	}
	defer rows.Close()

	var items []ChecklistItem
	for rows.Next() {
		var it ChecklistItem
		if err := rows.Scan(&it.ID, &it.AssignmentID, &it.Label, &it.Position,
			&it.Completed, &it.CompletedBy, &it.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan checklist item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *PostgresStore) InsertChecklistItem(ctx context.Context, item ChecklistItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assignment_checklist_items (id, assignment_id, label, position)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.AssignmentID, item.Label, item.Position)
	if err != nil {
		return fmt.Errorf("insert checklist item: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetChecklistItemCompleted(ctx context.Context, itemID, userID string, completed bool) (bool, error) {
	var res sql.Result
	var err error
	if completed {
		res, err = s.db.ExecContext(ctx, `
			UPDATE assignment_checklist_items
			   SET completed=TRUE, completed_by=$2, completed_at=NOW()
			 WHERE id=$1
		`, itemID, userID)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE assignment_checklist_items
			   SET completed=FALSE, completed_by=NULL, completed_at=NULL
			 WHERE id=$1
		`, itemID)
	}
	if err != nil {
		return false, fmt.Errorf("update checklist item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checklist item rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListObservers(ctx context.Context, assignmentID string) ([]Observer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.assignment_id, o.user_id, sm.display_name, o.added_by, o.added_at
		  FROM assignment_observers o
		  JOIN staff_members sm ON sm.id = o.user_id
		 WHERE o.assignment_id=$1
		 ORDER BY o.added_at ASC
	`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("list observers: %w", err)
	}
	defer rows.Close()

	var items []Observer
	for rows.Next() {
		var o Observer
		if err := rows.Scan(&o.AssignmentID, &o.UserID, &o.DisplayName, &o.AddedBy, &o.AddedAt); err != nil {
			return nil, fmt.Errorf("scan observer: %w", err)
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

func (s *PostgresStore) AddObserver(ctx context.Context, assignmentID, userID, addedBy string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assignment_observers (assignment_id, user_id, added_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (assignment_id, user_id) DO NOTHING
	`, assignmentID, userID, addedBy)
	if err != nil {
		return fmt.Errorf("add observer: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveObserver(ctx context.Context, assignmentID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM assignment_observers WHERE assignment_id=$1 AND user_id=$2
	`, assignmentID, userID)
	if err != nil {
		return fmt.Errorf("remove observer: %w", err)
	}
	return nil
}
