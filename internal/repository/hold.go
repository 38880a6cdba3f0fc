package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vaultline/aa-relayer-go/internal/database"
	"github.com/vaultline/aa-relayer-go/internal/model"
)

type HoldRepository interface {
	FindByApprovalID(ctx context.Context, approvalID string) (*model.Hold, error)
	FindActive(ctx context.Context, limit int) ([]model.Hold, error)
	FindCaptured(ctx context.Context, limit int) ([]model.Hold, error)
	UpdateStatus(ctx context.Context, approvalID string, from, to model.HoldStatus) (bool, error)
}

type holdRepo struct {
	db database.DBTX
}

func NewHoldRepository(db database.DBTX) HoldRepository {
	return &holdRepo{db: db}
}

func (r *holdRepo) FindByApprovalID(ctx context.Context, approvalID string) (*model.Hold, error) {
	var h model.Hold
	err := r.db.GetContext(ctx, &h, `
		SELECT * FROM holds
		WHERE approval_id = $1
	`, approvalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *holdRepo) FindActive(ctx context.Context, limit int) ([]model.Hold, error) {
	var holds []model.Hold
	err := r.db.SelectContext(ctx, &holds, `
		SELECT * FROM holds
		WHERE status = $1 AND expires_at > NOW()
		ORDER BY created_at ASC
		LIMIT $2
	`, model.HoldStatusActive, limit)
	return holds, err
}

func (r *holdRepo) FindCaptured(ctx context.Context, limit int) ([]model.Hold, error) {
	var holds []model.Hold
	err := r.db.SelectContext(ctx, &holds, `
		SELECT * FROM holds
		WHERE status = $1
		ORDER BY updated_at ASC
		LIMIT $2
	`, model.HoldStatusCaptured, limit)
	return holds, err
}

// UpdateStatus transitions a hold only when it is still in the expected
// state. Returns false when another writer got there first.
func (r *holdRepo) UpdateStatus(ctx context.Context, approvalID string, from, to model.HoldStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE holds SET
			status = $3,
			updated_at = NOW()
		WHERE approval_id = $1 AND status = $2
	`, approvalID, from, to)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
