package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/vaultline/aa-relayer-go/internal/database"
	"github.com/vaultline/aa-relayer-go/internal/model"
)

type LedgerRepository interface {
	FindDebitByRefID(ctx context.Context, refID string) (*model.LedgerEntry, error)
}

type ledgerRepo struct {
	db database.DBTX
}

func NewLedgerRepository(db database.DBTX) LedgerRepository {
	return &ledgerRepo{db: db}
}

func (r *ledgerRepo) FindDebitByRefID(ctx context.Context, refID string) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := r.db.GetContext(ctx, &entry, `
		SELECT * FROM ledger_entries
		WHERE ref_id = $1 AND type = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, refID, model.LedgerEntryDebit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

type DiscrepancyRepository interface {
	Record(ctx context.Context, params model.CreateDiscrepancyParams) (bool, error)
	FindByEntityID(ctx context.Context, entityID string) ([]model.Discrepancy, error)
}

type discrepancyRepo struct {
	db *database.DB
}

func NewDiscrepancyRepository(db *database.DB) DiscrepancyRepository {
	return &discrepancyRepo{db: db}
}

// Record inserts a discrepancy unless one with the same entity and message
// already exists. The check and the insert run in one transaction so
// concurrent sweeps cannot double-record. Returns true if a row was created.
func (r *discrepancyRepo) Record(ctx context.Context, params model.CreateDiscrepancyParams) (bool, error) {
	var created bool
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var count int
		err := tx.GetContext(ctx, &count, `
			SELECT COUNT(*) FROM discrepancies
			WHERE entity_type = $1 AND entity_id = $2 AND message = $3
		`, params.EntityType, params.EntityID, params.Message)
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO discrepancies (entity_type, entity_id, message, metadata)
			VALUES ($1, $2, $3, $4)
		`, params.EntityType, params.EntityID, params.Message, params.Metadata)
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

func (r *discrepancyRepo) FindByEntityID(ctx context.Context, entityID string) ([]model.Discrepancy, error) {
	var ds []model.Discrepancy
	err := r.db.SelectContext(ctx, &ds, `
		SELECT * FROM discrepancies
		WHERE entity_id = $1
		ORDER BY created_at DESC
	`, entityID)
	return ds, err
}
