// Package relay wraps the bundler RPC endpoint: nonce reads, gas
// estimation, operation submission and receipt polling.
package relay

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"

	apperrors "github.com/vaultline/aa-relayer-go/internal/errors"
	"github.com/vaultline/aa-relayer-go/internal/model"
	"github.com/vaultline/aa-relayer-go/internal/userop"
)

const entryPointABIJSON = `[
	{"type":"function","name":"getNonce","stateMutability":"view","inputs":[
		{"name":"sender","type":"address"},
		{"name":"key","type":"uint192"}],
	"outputs":[{"name":"nonce","type":"uint256"}]}
]`

var entryPointABI abi.ABI

func init() {
	var err error
	entryPointABI, err = abi.JSON(strings.NewReader(entryPointABIJSON))
	if err != nil {
		panic(fmt.Errorf("invalid entry point ABI: %w", err))
	}
}

// GasEstimate holds the three gas-limit fields a bundler returns.
type GasEstimate struct {
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
}

// UserOpReceipt is the bundler's view of a confirmed operation.
type UserOpReceipt struct {
	UserOpHash    common.Hash  `json:"userOpHash"`
	Success       bool         `json:"success"`
	ActualGasCost *hexutil.Big `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big `json:"actualGasUsed"`
	Receipt       struct {
		TransactionHash   common.Hash  `json:"transactionHash"`
		GasUsed           *hexutil.Big `json:"gasUsed"`
		EffectiveGasPrice *hexutil.Big `json:"effectiveGasPrice"`
		BlockNumber       *hexutil.Big `json:"blockNumber"`
	} `json:"receipt"`
}

// Client talks to one bundler endpoint. DialHTTP keeps compatibility with
// plain HTTP bundlers while still supporting WebSocket URLs.
type Client struct {
	rpc *rpc.Client
	eth *ethclient.Client
}

func Dial(url string) (*Client, error) {
	c, err := rpc.DialHTTP(url)
	if err != nil {
		return nil, fmt.Errorf("dial bundler %s: %w", url, err)
	}
	return &Client{rpc: c, eth: ethclient.NewClient(c)}, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

// FillNonce reads the sender's current sequence counter from the entry point.
func (c *Client) FillNonce(ctx context.Context, entryPoint, sender common.Address) (*big.Int, error) {
	data, err := entryPointABI.Pack("getNonce", sender, big.NewInt(0))
	if err != nil {
		return nil, fmt.Errorf("pack getNonce: %w", err)
	}

	res, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &entryPoint, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call getNonce on %s: %w", entryPoint.Hex(), err)
	}

	out, err := entryPointABI.Unpack("getNonce", res)
	if err != nil {
		return nil, fmt.Errorf("unpack getNonce: %w", err)
	}
	nonce, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getNonce return type %T", out[0])
	}
	return nonce, nil
}

// SuggestFees reads current EIP-1559 fee values from the node backing the
// bundler endpoint. feeCap = 2*baseFee + tip, the usual headroom against
// base-fee drift.
func (c *Client) SuggestFees(ctx context.Context) (maxFee, maxPriority *big.Int, err error) {
	tip, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("suggest gas tip cap: %w", err)
	}
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch latest header: %w", err)
	}
	if head.BaseFee == nil {
		return nil, nil, apperrors.Config("chain does not support EIP-1559 fees")
	}
	feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
	return feeCap, tip, nil
}

// EstimateGas asks the bundler for the three gas-limit fields.
func (c *Client) EstimateGas(ctx context.Context, op model.PartialUserOperation, entryPoint common.Address) (*GasEstimate, error) {
	var result struct {
		CallGasLimit         *hexutil.Big `json:"callGasLimit"`
		VerificationGasLimit *hexutil.Big `json:"verificationGasLimit"`
		PreVerificationGas   *hexutil.Big `json:"preVerificationGas"`
	}
	err := c.rpc.CallContext(ctx, &result, "eth_estimateUserOperationGas", userop.PartialToWire(op), entryPoint.Hex())
	if err != nil {
		return nil, fmt.Errorf("eth_estimateUserOperationGas: %w", err)
	}
	for name, v := range map[string]*hexutil.Big{
		"callGasLimit":         result.CallGasLimit,
		"verificationGasLimit": result.VerificationGasLimit,
		"preVerificationGas":   result.PreVerificationGas,
	} {
		if v == nil {
			return nil, fmt.Errorf("eth_estimateUserOperationGas: missing %s in result", name)
		}
	}
	return &GasEstimate{
		CallGasLimit:         result.CallGasLimit.ToInt(),
		VerificationGasLimit: result.VerificationGasLimit.ToInt(),
		PreVerificationGas:   result.PreVerificationGas.ToInt(),
	}, nil
}

// Submit sends a signed operation to the bundler and returns its hash.
func (c *Client) Submit(ctx context.Context, op model.SignedUserOperation, entryPoint common.Address) (common.Hash, error) {
	var result string
	err := c.rpc.CallContext(ctx, &result, "eth_sendUserOperation", userop.ToWire(op.UserOperation), entryPoint.Hex())
	if err != nil {
		return common.Hash{}, apperrors.SubmissionFailed(err)
	}
	return common.HexToHash(result), nil
}

// PollReceipt polls at a fixed interval until the bundler reports a receipt.
// Exhausting maxAttempts is a reportable error, never silently swallowed:
// the caller decides whether to resubmit or flag for review.
func (c *Client) PollReceipt(ctx context.Context, opHash common.Hash, maxAttempts int, interval time.Duration) (*UserOpReceipt, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var receipt *UserOpReceipt
		err := c.rpc.CallContext(ctx, &receipt, "eth_getUserOperationReceipt", opHash.Hex())
		if err != nil {
			log.Warn().Err(err).
				Str("opHash", opHash.Hex()).
				Int("attempt", attempt).
				Msg("receipt lookup failed")
		} else if receipt != nil {
			return receipt, nil
		}

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	return nil, apperrors.ReceiptNotFound(opHash.Hex(), maxAttempts)
}
