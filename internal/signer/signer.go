// Package signer abstracts "sign this transaction request and return a
// receipt" behind a single capability so the settlement pipeline does not
// care how custody is implemented.
package signer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TxRequest describes one transaction to sign and broadcast. A zero
// GasLimit means "estimate before sending".
type TxRequest struct {
	To       common.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64
}

// Receipt is the confirmed result of a broadcast transaction.
type Receipt struct {
	TxHash            common.Hash
	GasUsed           *big.Int
	EffectiveGasPrice *big.Int
	BlockNumber       *big.Int
}

// Signer signs, broadcasts and waits for one confirmation.
type Signer interface {
	SendTransaction(ctx context.Context, req TxRequest) (*Receipt, error)
}
