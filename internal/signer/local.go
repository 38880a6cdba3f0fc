package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"

	apperrors "github.com/vaultline/aa-relayer-go/internal/errors"
)

// LocalSigner signs with an in-process private key, broadcasts directly and
// blocks until one confirmation. The key is injected at construction and
// never logged.
type LocalSigner struct {
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	chainID *big.Int
	address common.Address
}

func NewLocalSigner(client *ethclient.Client, hexKey string, chainID *big.Int) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, apperrors.Config("RELAYER_PRIVATE_KEY is not a valid secp256k1 key").WithCause(err)
	}
	return &LocalSigner{
		client:  client,
		key:     key,
		chainID: chainID,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the signing account.
func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) SendTransaction(ctx context.Context, req TxRequest) (*Receipt, error) {
	nonce, err := s.client.PendingNonceAt(ctx, s.address)
	if err != nil {
		return nil, fmt.Errorf("fetch pending nonce: %w", err)
	}

	tipCap, err := s.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas tip cap: %w", err)
	}
	head, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch latest header: %w", err)
	}
	if head.BaseFee == nil {
		return nil, apperrors.Config("chain does not support EIP-1559 fees")
	}
	// feeCap = 2*baseFee + tip, the usual headroom against base-fee drift
	feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tipCap)

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit, err = s.client.EstimateGas(ctx, ethereum.CallMsg{
			From:  s.address,
			To:    &req.To,
			Value: value,
			Data:  req.Data,
		})
		if err != nil {
			return nil, fmt.Errorf("estimate gas: %w", err)
		}
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &req.To,
		Value:     value,
		Data:      req.Data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return nil, apperrors.SubmissionFailed(err)
	}

	log.Debug().
		Str("txHash", signed.Hash().Hex()).
		Str("to", req.To.Hex()).
		Uint64("nonce", nonce).
		Msg("transaction broadcast, waiting for confirmation")

	receipt, err := bind.WaitMined(ctx, s.client, signed)
	if err != nil {
		return nil, fmt.Errorf("wait for confirmation of %s: %w", signed.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("transaction %s reverted on-chain", signed.Hash().Hex())
	}
	if receipt.EffectiveGasPrice == nil {
		return nil, apperrors.IncompleteReceipt(signed.Hash().Hex(), "effectiveGasPrice")
	}

	return &Receipt{
		TxHash:            receipt.TxHash,
		GasUsed:           new(big.Int).SetUint64(receipt.GasUsed),
		EffectiveGasPrice: receipt.EffectiveGasPrice,
		BlockNumber:       receipt.BlockNumber,
	}, nil
}
