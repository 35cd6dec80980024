package storage

import (
	"context"
	"errors"
	"fmt"

	"studymate/internal/models"
	"studymate/internal/util"

	"github.com/jackc/pgx/v5"
)

// eligibilityClause is the visibility rule: public materials whose tags
// match the requester (an untagged dimension matches everyone), or anything
// the requester uploaded. $1 = user id, $2 = department, $3 = year.
const eligibilityClause = `
((m.is_public
   AND (m.department IS NULL OR m.department = $2)
   AND (m.year_level IS NULL OR m.year_level = $3))
 OR m.uploaded_by = $1)`

const materialColumns = `
m.material_id, m.title, m.content, COALESCE(m.url,''), COALESCE(m.file_type,''),
m.category, m.department, m.year_level, m.is_public, m.uploaded_by,
m.status, COALESCE(m.fail_reason,''), m.created_at, m.updated_at`

type MaterialRepo struct {
	db *DB
}

func NewMaterialRepo(db *DB) *MaterialRepo {
	return &MaterialRepo{db: db}
}

func (r *MaterialRepo) CreateMaterial(ctx context.Context, m models.Material) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO materials (material_id, title, content, url, file_type, category, department, year_level, is_public, uploaded_by, status)
VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), $6, $7, $8, $9, $10, $11)`,
		m.MaterialID, m.Title, m.Content, m.URL, m.FileType, string(m.Category),
		m.Department, m.YearLevel, m.IsPublic, m.UploadedBy, m.Status,
	)
	if err != nil {
		return fmt.Errorf("insert material: %w", err)
	}
	return nil
}

func (r *MaterialRepo) UpdateMaterialStatus(ctx context.Context, materialID, status, failReason string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE materials SET status=$2, fail_reason=NULLIF($3,''), updated_at=NOW() WHERE material_id=$1`,
		materialID, status, failReason)
	if err != nil {
		return fmt.Errorf("update material status: %w", err)
	}
	return nil
}

func (r *MaterialRepo) GetMaterial(ctx context.Context, materialID string) (models.Material, error) {
	row := r.db.Pool.QueryRow(ctx, `
SELECT `+materialColumns+`
FROM materials m
WHERE m.material_id = $1`, materialID)
	m, err := scanMaterial(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Material{}, fmt.Errorf("material %s: %w", materialID, util.ErrNotFound)
	}
	if err != nil {
		return models.Material{}, fmt.Errorf("get material: %w", err)
	}
	return m, nil
}

// ListEligible returns all materials the principal may see, in insertion
// order. The lexical selector depends on that ordering staying stable.
func (r *MaterialRepo) ListEligible(ctx context.Context, p models.Principal) ([]models.Material, error) {
	return r.listEligible(ctx, p, "m.created_at ASC")
}

// ListEligibleNewest is the listing-endpoint variant, newest first.
func (r *MaterialRepo) ListEligibleNewest(ctx context.Context, p models.Principal) ([]models.Material, error) {
	return r.listEligible(ctx, p, "m.created_at DESC")
}

func (r *MaterialRepo) listEligible(ctx context.Context, p models.Principal, order string) ([]models.Material, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+materialColumns+`
FROM materials m
WHERE `+eligibilityClause+`
ORDER BY `+order, p.ID, p.Department, p.YearOfStudy)
	if err != nil {
		return nil, fmt.Errorf("list eligible materials: %w", err)
	}
	defer rows.Close()

	out := make([]models.Material, 0)
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, fmt.Errorf("scan material: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate materials: %w", err)
	}
	return out, nil
}

func scanMaterial(row pgx.Row) (models.Material, error) {
	var m models.Material
	var category string
	err := row.Scan(&m.MaterialID, &m.Title, &m.Content, &m.URL, &m.FileType,
		&category, &m.Department, &m.YearLevel, &m.IsPublic, &m.UploadedBy,
		&m.Status, &m.FailReason, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return models.Material{}, err
	}
	m.Category = models.MaterialCategory(category)
	return m, nil
}
