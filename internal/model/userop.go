package model

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// UserOperation is the ERC-4337 v0.6 operation struct. All numeric fields
// are unbounded-precision integers; byte fields are opaque payloads.
type UserOperation struct {
	Sender               common.Address
	Nonce                *big.Int
	InitCode             []byte
	CallData             []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	PaymasterAndData     []byte
	Signature            []byte
}

// PartialUserOperation is an operation before sponsorship: only the call
// intent and nonce are known. Gas and fee fields may carry local estimates
// that the sponsor is free to replace.
type PartialUserOperation struct {
	Sender               common.Address
	Nonce                *big.Int
	InitCode             []byte
	CallData             []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// SponsorData carries the sponsor payload and the refreshed gas/fee fields
// a paymaster provider returns for a partial operation.
type SponsorData struct {
	PaymasterAndData     []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Complete attaches sponsor data to a partial operation, producing an
// operation that is ready for signing. Sponsor-provided gas and fee values
// take precedence over local estimates.
func (p PartialUserOperation) Complete(sponsor SponsorData) (UserOperation, error) {
	op := UserOperation{
		Sender:               p.Sender,
		Nonce:                p.Nonce,
		InitCode:             p.InitCode,
		CallData:             p.CallData,
		CallGasLimit:         pick(sponsor.CallGasLimit, p.CallGasLimit),
		VerificationGasLimit: pick(sponsor.VerificationGasLimit, p.VerificationGasLimit),
		PreVerificationGas:   pick(sponsor.PreVerificationGas, p.PreVerificationGas),
		MaxFeePerGas:         pick(sponsor.MaxFeePerGas, p.MaxFeePerGas),
		MaxPriorityFeePerGas: pick(sponsor.MaxPriorityFeePerGas, p.MaxPriorityFeePerGas),
		PaymasterAndData:     sponsor.PaymasterAndData,
	}
	if err := op.Validate(); err != nil {
		return UserOperation{}, err
	}
	return op, nil
}

func pick(sponsor, local *big.Int) *big.Int {
	if sponsor != nil {
		return sponsor
	}
	return local
}

// Validate checks that every field except Signature and InitCode is
// populated. An operation must pass this before signing or submission.
func (op UserOperation) Validate() error {
	if op.Sender == (common.Address{}) {
		return fmt.Errorf("user operation: sender is empty")
	}
	if len(op.CallData) == 0 {
		return fmt.Errorf("user operation: callData is empty")
	}
	for name, v := range map[string]*big.Int{
		"nonce":                op.Nonce,
		"callGasLimit":         op.CallGasLimit,
		"verificationGasLimit": op.VerificationGasLimit,
		"preVerificationGas":   op.PreVerificationGas,
		"maxFeePerGas":         op.MaxFeePerGas,
		"maxPriorityFeePerGas": op.MaxPriorityFeePerGas,
	} {
		if v == nil {
			return fmt.Errorf("user operation: %s is not set", name)
		}
	}
	if len(op.PaymasterAndData) == 0 {
		return fmt.Errorf("user operation: paymasterAndData is empty")
	}
	return nil
}

// SignedUserOperation wraps an operation whose signature has been attached.
// Only signed operations can be submitted to a bundler.
type SignedUserOperation struct {
	UserOperation
}

// Signed attaches a signature. The operation must be fully populated and
// must not already carry a signature.
func (op UserOperation) Signed(sig []byte) (SignedUserOperation, error) {
	if err := op.Validate(); err != nil {
		return SignedUserOperation{}, err
	}
	if len(op.Signature) != 0 {
		return SignedUserOperation{}, fmt.Errorf("user operation: already signed")
	}
	if len(sig) == 0 {
		return SignedUserOperation{}, fmt.Errorf("user operation: signature is empty")
	}
	signed := op
	signed.Signature = sig
	return SignedUserOperation{signed}, nil
}
