package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vaultline/aa-relayer-go/internal/database"
	"github.com/vaultline/aa-relayer-go/internal/model"
)

type SessionKeyRepository interface {
	Create(ctx context.Context, params model.CreateSessionKeyParams) (*model.SessionKey, error)
	FindByID(ctx context.Context, id string) (*model.SessionKey, error)
	Revoke(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type sessionKeyRepo struct {
	db database.DBTX
}

func NewSessionKeyRepository(db database.DBTX) SessionKeyRepository {
	return &sessionKeyRepo{db: db}
}

func (r *sessionKeyRepo) Create(ctx context.Context, params model.CreateSessionKeyParams) (*model.SessionKey, error) {
	var key model.SessionKey
	err := r.db.GetContext(ctx, &key, `
		INSERT INTO session_keys (id, account_address, public_key, encrypted_private_key, policy, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, params.ID, params.AccountAddress, params.PublicKey, params.EncryptedPrivateKey, params.Policy, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *sessionKeyRepo) FindByID(ctx context.Context, id string) (*model.SessionKey, error) {
	var key model.SessionKey
	err := r.db.GetContext(ctx, &key, `
		SELECT * FROM session_keys
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *sessionKeyRepo) Revoke(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE session_keys SET
			revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`, id, time.Now())
	return err
}

// DeleteExpired removes keys past their expiry plus a retention window so
// that recently expired keys remain inspectable.
func (r *sessionKeyRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM session_keys
		WHERE expires_at < NOW() - INTERVAL '24 hours'
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
