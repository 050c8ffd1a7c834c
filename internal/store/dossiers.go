package store

import (
	"context"
	"fmt"
)

const dossierColumns = `id, kind, name_en, name_ar, summary_en, summary_ar,
	status, sensitivity, created_by, updated_by, created_at, updated_at`

func (s *PostgresStore) ListDossiers(ctx context.Context, kind, status string, limit, offset int) ([]Dossier, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dossierColumns+`
		  FROM dossiers
		 WHERE ($1 = '' OR kind = $1)
		   AND ($2 = '' OR status = $2)
		 ORDER BY updated_at DESC
		 LIMIT $3 OFFSET $4
	`, kind, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list dossiers: %w", err)
	}
	defer rows.Close()

	var items []Dossier
	for rows.Next() {
		var d Dossier
		if err := rows.Scan(&d.ID, &d.Kind, &d.NameEN, &d.NameAR, &d.SummaryEN, &d.SummaryAR,
			&d.Status, &d.Sensitivity, &d.CreatedBy, &d.UpdatedBy, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan dossier: %w", err)
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetDossier(ctx context.Context, dossierID string) (Dossier, error) {
	var d Dossier
	err := s.db.QueryRowContext(ctx, `
		SELECT `+dossierColumns+` FROM dossiers WHERE id=$1
	`, dossierID).Scan(&d.ID, &d.Kind, &d.NameEN, &d.NameAR, &d.SummaryEN, &d.SummaryAR,
		&d.Status, &d.Sensitivity, &d.CreatedBy, &d.UpdatedBy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Dossier{}, err
	}
	return d, nil
}

func (s *PostgresStore) InsertDossier(ctx context.Context, d Dossier) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dossiers
			(id, kind, name_en, name_ar, summary_en, summary_ar, status, sensitivity, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, d.ID, d.Kind, d.NameEN, d.NameAR, d.SummaryEN, d.SummaryAR, d.Status, d.Sensitivity, d.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert dossier: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateDossier(ctx context.Context, d Dossier) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE dossiers
		   SET name_en=$2, name_ar=$3, summary_en=$4, summary_ar=$5,
		       status=$6, sensitivity=$7, updated_by=$8, updated_at=NOW()
		 WHERE id=$1
	`, d.ID, d.NameEN, d.NameAR, d.SummaryEN, d.SummaryAR, d.Status, d.Sensitivity, d.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update dossier: %w", err)
	}
	return nil
}

func (s *PostgresStore) ArchiveDossier(ctx context.Context, dossierID, updatedBy string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE dossiers SET status='archived', updated_by=$2, updated_at=NOW() WHERE id=$1
	`, dossierID, updatedBy)
	if err != nil {
		return fmt.Errorf("archive dossier: %w", err)
	}
	return nil
}

// FindSimilarDossiers is the Postgres side of duplicate detection: trigram
// similarity over English names plus a direct ILIKE on the Arabic name.
func (s *PostgresStore) FindSimilarDossiers(ctx context.Context, nameEN, nameAR, excludeID string, limit int) ([]Dossier, []float64, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dossierColumns+`, similarity(name_en, $1) AS score
		  FROM dossiers
		 WHERE id <> $3
		   AND (similarity(name_en, $1) > 0.2 OR ($2 <> '' AND name_ar ILIKE '%' || $2 || '%'))
		 ORDER BY score DESC
		 LIMIT $4
	`, nameEN, nameAR, excludeID, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("find similar dossiers: %w", err)
	}
	defer rows.Close()

	var items []Dossier
	var scores []float64
	for rows.Next() {
		var d Dossier
		var score float64
		if err := rows.Scan(&d.ID, &d.Kind, &d.NameEN, &d.NameAR, &d.SummaryEN, &d.SummaryAR,
			&d.Status, &d.Sensitivity, &d.CreatedBy, &d.UpdatedBy, &d.CreatedAt, &d.UpdatedAt, &score); err != nil {
			return nil, nil, fmt.Errorf("scan similar dossier: %w", err)
		}
		items = append(items, d)
		scores = append(scores, score)
	}
	return items, scores, rows.Err()
}

func (s *PostgresStore) ListEngagements(ctx context.Context, dossierID string) ([]Engagement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dossier_id, title, kind, location, starts_at, ends_at, created_at
		  FROM engagements
		 WHERE dossier_id=$1
		 ORDER BY starts_at DESC NULLS LAST
	`, dossierID)
	if err != nil {
		return nil, fmt.Errorf("list engagements: %w", err)
	}
	defer rows.Close()

	var items []Engagement
	for rows.Next() {
		var e Engagement
		if err := rows.Scan(&e.ID, &e.DossierID, &e.Title, &e.Kind, &e.Location,
			&e.StartsAt, &e.EndsAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan engagement: %w", err)
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetEngagement(ctx context.Context, engagementID string) (Engagement, error) {
	var e Engagement
	err := s.db.QueryRowContext(ctx, `
		SELECT id, dossier_id, title, kind, location, starts_at, ends_at, created_at
		  FROM engagements WHERE id=$1
	`, engagementID).Scan(&e.ID, &e.DossierID, &e.Title, &e.Kind, &e.Location, &e.StartsAt, &e.EndsAt, &e.CreatedAt)
	if err != nil {
		return Engagement{}, err
	}
	return e, nil
}

func (s *PostgresStore) InsertEngagement(ctx context.Context, e Engagement) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO engagements (id, dossier_id, title, kind, location, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.DossierID, e.Title, e.Kind, e.Location, e.StartsAt, e.EndsAt)
	if err != nil {
		return fmt.Errorf("insert engagement: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertBriefingPack(ctx context.Context, p BriefingPack) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO briefing_packs
			(id, dossier_id, language, format, filename, object_key, byte_size, generated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.DossierID, p.Language, p.Format, p.Filename, p.ObjectKey, p.ByteSize, p.GeneratedBy)
	if err != nil {
		return fmt.Errorf("insert briefing pack: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBriefingPacks(ctx context.Context, dossierID string) ([]BriefingPack, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dossier_id, language, format, filename, object_key, byte_size, generated_by, generated_at
		  FROM briefing_packs
		 WHERE dossier_id=$1
		 ORDER BY generated_at DESC
	`, dossierID)
	if err != nil {
		return nil, fmt.Errorf("list briefing packs: %w", err)
	}
	defer rows.Close()

	var items []BriefingPack
	for rows.Next() {
		var p BriefingPack
		if err := rows.Scan(&p.ID, &p.DossierID, &p.Language, &p.Format, &p.Filename,
			&p.ObjectKey, &p.ByteSize, &p.GeneratedBy, &p.GeneratedAt); err != nil {
			return nil, fmt.Errorf("scan briefing pack: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
