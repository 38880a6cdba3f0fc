package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vaultline/aa-relayer-go/internal/audit"
	apperrors "github.com/vaultline/aa-relayer-go/internal/errors"
	"github.com/vaultline/aa-relayer-go/internal/model"
	"github.com/vaultline/aa-relayer-go/internal/repository"
	"github.com/vaultline/aa-relayer-go/internal/userop"
	"github.com/vaultline/aa-relayer-go/internal/util"
)

const (
	defaultSessionKeyTTL = 1 * time.Hour
	maxSessionKeyTTL     = 24 * time.Hour
)

// SessionKeyService issues and revokes ephemeral signing keys scoped to one
// smart account. Key material is generated in-process, encrypted at rest and
// never returned to callers after issuance.
type SessionKeyService struct {
	repo   repository.SessionKeyRepository
	secret string
}

func NewSessionKeyService(repo repository.SessionKeyRepository, secret string) *SessionKeyService {
	return &SessionKeyService{repo: repo, secret: secret}
}

// IssueResult carries everything the caller needs to register the key
// on-chain. The private key itself stays encrypted in storage.
type IssueResult struct {
	Key                  *model.SessionKey
	RegistrationCallData []byte
}

func (s *SessionKeyService) Issue(ctx context.Context, accountAddress string, rawPolicy []byte, ttl time.Duration) (*IssueResult, error) {
	if !common.IsHexAddress(accountAddress) {
		return nil, apperrors.InvalidInput("accountAddress", "not a valid address")
	}
	policy, err := model.ParseSessionKeyPolicy(rawPolicy)
	if err != nil {
		return nil, apperrors.ValidationError(err.Error())
	}
	if ttl <= 0 {
		ttl = defaultSessionKeyTTL
	}
	if ttl > maxSessionKeyTTL {
		ttl = maxSessionKeyTTL
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}
	keyAddress := crypto.PubkeyToAddress(key.PublicKey)

	id, err := util.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate key id: %w", err)
	}
	encKey, err := util.DeriveEncryptionKey(s.secret, id)
	if err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}
	encrypted, err := util.Encrypt(encKey, hexutil.Encode(crypto.FromECDSA(key)))
	if err != nil {
		return nil, fmt.Errorf("encrypt session key: %w", err)
	}

	policyJSON, err := json.Marshal(policy)
	if err != nil {
		return nil, fmt.Errorf("marshal policy: %w", err)
	}
	expiresAt := time.Now().Add(ttl)

	stored, err := s.repo.Create(ctx, model.CreateSessionKeyParams{
		ID:                  id,
		AccountAddress:      common.HexToAddress(accountAddress).Hex(),
		PublicKey:           keyAddress.Hex(),
		EncryptedPrivateKey: encrypted,
		Policy:              policyJSON,
		ExpiresAt:           expiresAt,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	callData, err := userop.PackAddSessionKey(
		keyAddress,
		big.NewInt(expiresAt.Unix()),
		crypto.Keccak256Hash(policyJSON),
	)
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.Event{
		Type: audit.EventSessionKeyIssued,
		Details: map[string]interface{}{
			"key_id":  stored.ID,
			"account": stored.AccountAddress,
			"key":     util.MaskKey(stored.PublicKey),
		},
	})
	return &IssueResult{Key: stored, RegistrationCallData: callData}, nil
}

// Revoke marks the key revoked and returns the calldata that removes it from
// the smart account. Revoking an already revoked key is not an error.
func (s *SessionKeyService) Revoke(ctx context.Context, id string) ([]byte, error) {
	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if key == nil {
		return nil, apperrors.NotFound("session key")
	}

	if err := s.repo.Revoke(ctx, id); err != nil {
		return nil, apperrors.Database(err)
	}
	callData, err := userop.PackRevokeSessionKey(common.HexToAddress(key.PublicKey))
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.Event{
		Type: audit.EventSessionKeyRevoked,
		Details: map[string]interface{}{
			"key_id":  key.ID,
			"account": key.AccountAddress,
		},
	})
	return callData, nil
}

// Sign produces an EIP-191 signature over a 32-byte operation hash with a
// stored session key. The key material is decrypted only for the duration of
// the call.
func (s *SessionKeyService) Sign(ctx context.Context, id string, opHash []byte) ([]byte, error) {
	if len(opHash) != common.HashLength {
		return nil, apperrors.InvalidInput("hash", "must be 32 bytes")
	}
	stored, err := s.Usable(ctx, id)
	if err != nil {
		return nil, err
	}

	encKey, err := util.DeriveEncryptionKey(s.secret, stored.ID)
	if err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}
	material, err := util.Decrypt(encKey, stored.EncryptedPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt session key %s: %w", stored.ID, err)
	}
	keyBytes, err := hexutil.Decode(material)
	if err != nil {
		return nil, fmt.Errorf("decode session key %s: %w", stored.ID, err)
	}
	key, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("parse session key %s: %w", stored.ID, err)
	}

	sig, err := crypto.Sign(accounts.TextHash(opHash), key)
	if err != nil {
		return nil, fmt.Errorf("sign with session key %s: %w", stored.ID, err)
	}
	// Smart account validation expects the legacy 27/28 recovery id.
	sig[64] += 27
	return sig, nil
}

// Usable loads a key and verifies it may sign right now.
func (s *SessionKeyService) Usable(ctx context.Context, id string) (*model.SessionKey, error) {
	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if key == nil {
		return nil, apperrors.NotFound("session key")
	}
	if key.RevokedAt != nil {
		return nil, apperrors.KeyRevoked(key.ID)
	}
	if !time.Now().Before(key.ExpiresAt) {
		return nil, apperrors.KeyExpired(key.ID)
	}
	return key, nil
}
