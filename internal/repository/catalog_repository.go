package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ceylon-smart-citizen/auth-service/internal/database"
	"github.com/ceylon-smart-citizen/auth-service/internal/model"
)

// CatalogRepo implements CatalogStore on PostgreSQL. The catalog is
// read-only from the service's point of view; rows are seeded by migrations
// or managed by an admin tool outside this repo.
type CatalogRepo struct{ db *database.DB }

// NewCatalogRepo returns a CatalogRepo bound to the given database.
func NewCatalogRepo(db *database.DB) *CatalogRepo { return &CatalogRepo{db: db} }

// ListDepartments returns all departments ordered by name.
func (r *CatalogRepo) ListDepartments(ctx context.Context) ([]model.Department, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, code, name FROM departments ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Department
	for rows.Next() {
		var d model.Department
		if err := rows.Scan(&d.ID, &d.Code, &d.Name); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListServices returns the bookable services of one department.
func (r *CatalogRepo) ListServices(ctx context.Context, departmentID uint64) ([]model.GovService, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT id, department_id, name, description, duration_minutes, slot_capacity
FROM services WHERE department_id=$1 ORDER BY name`, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.GovService
	for rows.Next() {
		var s model.GovService
		if err := rows.Scan(&s.ID, &s.DepartmentID, &s.Name, &s.Description, &s.DurationMinutes, &s.SlotCapacity); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetService fetches one service by id.
func (r *CatalogRepo) GetService(ctx context.Context, id uint64) (model.GovService, error) {
	var s model.GovService
	err := r.db.Pool.QueryRow(ctx, `
SELECT id, department_id, name, description, duration_minutes, slot_capacity
FROM services WHERE id=$1`, id).
		Scan(&s.ID, &s.DepartmentID, &s.Name, &s.Description, &s.DurationMinutes, &s.SlotCapacity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.GovService{}, ErrNotFound
		}
		return model.GovService{}, err
	}
	return s, nil
}
