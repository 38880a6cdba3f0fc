package sponsor

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-resty/resty/v2"

	"github.com/vaultline/aa-relayer-go/internal/config"
	"github.com/vaultline/aa-relayer-go/internal/model"
	"github.com/vaultline/aa-relayer-go/internal/userop"
)

// Provider is one paymaster backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	Name() string
	SponsorUserOperation(ctx context.Context, op model.PartialUserOperation, entryPoint common.Address) (*model.SponsorData, error)
	SubmitUserOperation(ctx context.Context, op model.SignedUserOperation, entryPoint common.Address) (common.Hash, error)
	Ping(ctx context.Context) error
}

// RPCError is a JSON-RPC error returned by a provider. Receiving one means
// the provider is reachable; the request was just rejected.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	ID      int             `json:"id"`
}

// sponsorResult is the provider's wire response: the sponsor payload plus
// refreshed gas and fee fields, all hex-encoded.
type sponsorResult struct {
	PaymasterAndData     string `json:"paymasterAndData"`
	CallGasLimit         string `json:"callGasLimit"`
	VerificationGasLimit string `json:"verificationGasLimit"`
	PreVerificationGas   string `json:"preVerificationGas"`
	MaxFeePerGas         string `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas"`
}

// rpcProvider speaks the pm_* JSON-RPC surface over HTTPS.
type rpcProvider struct {
	name   string
	http   *resty.Client
	url    string
	apiKey string
}

// NewRPCProvider builds a provider for one paymaster endpoint. The API key,
// when set, travels as a bearer token.
func NewRPCProvider(name, url, apiKey string) Provider {
	client := resty.New().
		SetTimeout(config.HTTPClientTimeout).
		SetHeader("Content-Type", "application/json")
	return &rpcProvider{name: name, http: client, url: url, apiKey: apiKey}
}

func (p *rpcProvider) Name() string {
	return p.name
}

func (p *rpcProvider) call(ctx context.Context, method string, params []any, out any) error {
	req := p.http.R().SetContext(ctx).SetBody(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	})
	if p.apiKey != "" {
		req.SetAuthToken(p.apiKey)
	}

	resp, err := req.Post(p.url)
	if err != nil {
		return fmt.Errorf("%s %s: %w", p.name, method, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s %s: %d %s", p.name, method, resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(resp.Body(), &rpcResp); err != nil {
		return fmt.Errorf("%s %s: parse response: %w", p.name, method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("%s %s: parse result: %w", p.name, method, err)
		}
	}
	return nil
}

func (p *rpcProvider) SponsorUserOperation(ctx context.Context, op model.PartialUserOperation, entryPoint common.Address) (*model.SponsorData, error) {
	var result sponsorResult
	err := p.call(ctx, "pm_sponsorUserOperation", []any{userop.PartialToWire(op), entryPoint.Hex()}, &result)
	if err != nil {
		return nil, err
	}

	paymasterAndData, err := hexutil.Decode(result.PaymasterAndData)
	if err != nil {
		return nil, fmt.Errorf("%s: decode paymasterAndData: %w", p.name, err)
	}
	if len(paymasterAndData) == 0 {
		return nil, fmt.Errorf("%s: empty paymasterAndData in sponsor result", p.name)
	}

	data := &model.SponsorData{PaymasterAndData: paymasterAndData}
	for _, f := range []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"callGasLimit", result.CallGasLimit, &data.CallGasLimit},
		{"verificationGasLimit", result.VerificationGasLimit, &data.VerificationGasLimit},
		{"preVerificationGas", result.PreVerificationGas, &data.PreVerificationGas},
		{"maxFeePerGas", result.MaxFeePerGas, &data.MaxFeePerGas},
		{"maxPriorityFeePerGas", result.MaxPriorityFeePerGas, &data.MaxPriorityFeePerGas},
	} {
		if f.raw == "" {
			continue
		}
		v, err := hexutil.DecodeBig(f.raw)
		if err != nil {
			return nil, fmt.Errorf("%s: decode %s: %w", p.name, f.name, err)
		}
		*f.dst = v
	}
	return data, nil
}

func (p *rpcProvider) SubmitUserOperation(ctx context.Context, op model.SignedUserOperation, entryPoint common.Address) (common.Hash, error) {
	var result string
	err := p.call(ctx, "eth_sendUserOperation", []any{userop.ToWire(op.UserOperation), entryPoint.Hex()}, &result)
	if err != nil {
		return common.Hash{}, err
	}
	return common.HexToHash(result), nil
}

// Ping probes reachability with a deliberately empty sponsor request. A
// validation rejection still proves the provider is up.
func (p *rpcProvider) Ping(ctx context.Context) error {
	return p.call(ctx, "pm_sponsorUserOperation", []any{}, nil)
}
