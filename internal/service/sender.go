package service

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"

	"github.com/vaultline/aa-relayer-go/internal/config"
	apperrors "github.com/vaultline/aa-relayer-go/internal/errors"
	"github.com/vaultline/aa-relayer-go/internal/model"
	"github.com/vaultline/aa-relayer-go/internal/relay"
	"github.com/vaultline/aa-relayer-go/internal/signer"
	"github.com/vaultline/aa-relayer-go/internal/sponsor"
	"github.com/vaultline/aa-relayer-go/internal/userop"
)

// UserOpSender satisfies signer.Signer by routing the transaction through a
// gas-sponsored user operation instead of a direct broadcast: build, fill
// nonce and gas, sponsor, hash, sign, submit, poll for the receipt. The
// account key only ever signs the two-stage operation hash.
type UserOpSender struct {
	relay        *relay.Client
	gateway      *sponsor.Gateway
	key          *ecdsa.PrivateKey
	account      common.Address
	entryPoint   common.Address
	chainID      *big.Int
	pollAttempts int
}

func NewUserOpSender(
	client *relay.Client,
	gateway *sponsor.Gateway,
	hexKey string,
	account common.Address,
	entryPoint common.Address,
	chainID *big.Int,
	pollAttempts int,
) (*UserOpSender, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, apperrors.Config("RELAYER_PRIVATE_KEY is not a valid secp256k1 key").WithCause(err)
	}
	return &UserOpSender{
		relay:        client,
		gateway:      gateway,
		key:          key,
		account:      account,
		entryPoint:   entryPoint,
		chainID:      chainID,
		pollAttempts: pollAttempts,
	}, nil
}

func (s *UserOpSender) SendTransaction(ctx context.Context, req signer.TxRequest) (*signer.Receipt, error) {
	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}
	callData, err := userop.PackExecute(req.To, value, req.Data)
	if err != nil {
		return nil, err
	}

	nonce, err := s.relay.FillNonce(ctx, s.entryPoint, s.account)
	if err != nil {
		return nil, err
	}
	maxFee, maxPriority, err := s.relay.SuggestFees(ctx)
	if err != nil {
		return nil, err
	}

	partial := model.PartialUserOperation{
		Sender:               s.account,
		Nonce:                nonce,
		CallData:             callData,
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: maxPriority,
	}

	estimate, err := s.relay.EstimateGas(ctx, partial, s.entryPoint)
	if err != nil {
		return nil, err
	}
	partial.CallGasLimit = estimate.CallGasLimit
	partial.VerificationGasLimit = estimate.VerificationGasLimit
	partial.PreVerificationGas = estimate.PreVerificationGas

	sponsorData, err := s.gateway.GetSponsorship(ctx, partial, s.entryPoint)
	if err != nil {
		return nil, err
	}
	op, err := partial.Complete(*sponsorData)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("state", string(StateBuilt)).
		Str("sender", s.account.Hex()).
		Str("nonce", nonce.String()).
		Msg("user operation built")

	opHash, err := userop.Hash(op, s.entryPoint, s.chainID)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(accounts.TextHash(opHash.Bytes()), s.key)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "sign user operation", err)
	}
	// Smart account validation expects the legacy 27/28 recovery id.
	sig[64] += 27
	signed, err := op.Signed(sig)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("state", string(StateSigned)).
		Str("op_hash", opHash.Hex()).
		Msg("user operation signed")

	submittedHash, err := s.gateway.Submit(ctx, signed, s.entryPoint)
	if err != nil {
		// Sponsors that only provide paymaster data leave submission to
		// the bundler endpoint.
		log.Debug().Err(err).Msg("no sponsor accepted submission, using bundler")
		submittedHash, err = s.relay.Submit(ctx, signed, s.entryPoint)
		if err != nil {
			return nil, err
		}
	}
	log.Info().
		Str("state", string(StateSubmitted)).
		Str("op_hash", submittedHash.Hex()).
		Msg("user operation submitted")

	receipt, err := s.relay.PollReceipt(ctx, submittedHash, s.pollAttempts, config.ReceiptPollInterval)
	if err != nil {
		return nil, err
	}
	if !receipt.Success {
		return nil, apperrors.SubmissionFailed(
			apperrors.New(apperrors.ErrCodeSubmissionFailed, "user operation reverted on-chain").
				WithDetails(map[string]string{"opHash": submittedHash.Hex()}))
	}
	if receipt.Receipt.GasUsed == nil {
		return nil, apperrors.IncompleteReceipt(receipt.Receipt.TransactionHash.Hex(), "gasUsed")
	}
	if receipt.Receipt.EffectiveGasPrice == nil {
		return nil, apperrors.IncompleteReceipt(receipt.Receipt.TransactionHash.Hex(), "effectiveGasPrice")
	}

	var blockNumber *big.Int
	if receipt.Receipt.BlockNumber != nil {
		blockNumber = receipt.Receipt.BlockNumber.ToInt()
	}
	return &signer.Receipt{
		TxHash:            receipt.Receipt.TransactionHash,
		GasUsed:           receipt.Receipt.GasUsed.ToInt(),
		EffectiveGasPrice: receipt.Receipt.EffectiveGasPrice.ToInt(),
		BlockNumber:       blockNumber,
	}, nil
}
