package signer

import (
	"context"

	apperrors "github.com/vaultline/aa-relayer-go/internal/errors"
)

// CustodySigner is a placeholder for a future hardware/custodial backend.
// It declares the capability but fails fast; callers must treat the error
// as a configuration problem, not a transient one.
type CustodySigner struct {
	endpoint string
}

func NewCustodySigner(endpoint string) *CustodySigner {
	return &CustodySigner{endpoint: endpoint}
}

func (s *CustodySigner) SendTransaction(ctx context.Context, req TxRequest) (*Receipt, error) {
	return nil, apperrors.NotImplemented("custody signer backend")
}
