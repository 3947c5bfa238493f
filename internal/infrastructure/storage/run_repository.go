package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"github.com/smilemakc/nodeflow/internal/infrastructure/storage/models"
)

// RunRepository persists terminated runs and their node instances.
type RunRepository struct {
	db bun.IDB
}

func NewRunRepository(db bun.IDB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) SaveRun(ctx context.Context, run *models.RunModel) error {
	_, err := r.db.NewInsert().Model(run).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (r *RunRepository) SaveNodeInstances(ctx context.Context, instances []*models.NodeInstanceModel) error {
	if len(instances) == 0 {
		return nil
	}
	_, err := r.db.NewInsert().Model(&instances).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save node instances: %w", err)
	}
	return nil
}

func (r *RunRepository) FindRun(ctx context.Context, runID string) (*models.RunModel, error) {
	run := new(models.RunModel)
	err := r.db.NewSelect().Model(run).Where("run_id = ?", runID).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find run %q: %w", runID, err)
	}
	return run, nil
}

func (r *RunRepository) ListNodeInstances(ctx context.Context, runID string) ([]*models.NodeInstanceModel, error) {
	var instances []*models.NodeInstanceModel
	err := r.db.NewSelect().
		Model(&instances).
		Where("run_id = ?", runID).
		Order("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list node instances for run %q: %w", runID, err)
	}
	return instances, nil
}

// ListFailedRuns returns the most recent failed runs, newest first.
func (r *RunRepository) ListFailedRuns(ctx context.Context, limit int) ([]*models.RunModel, error) {
	var runs []*models.RunModel
	err := r.db.NewSelect().
		Model(&runs).
		Where("status = ?", "Failed").
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed runs: %w", err)
	}
	return runs, nil
}

func joinErrors(errs []string) string {
	return strings.Join(errs, "; ")
}
