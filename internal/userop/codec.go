// Package userop builds and hashes ERC-4337 user operations. Everything in
// here is pure: no I/O, no clocks, no globals beyond the parsed ABIs.
package userop

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vaultline/aa-relayer-go/internal/model"
)

const accountABIJSON = `[
	{"type":"function","name":"execute","inputs":[
		{"name":"dest","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"func","type":"bytes"}]},
	{"type":"function","name":"addSessionKey","inputs":[
		{"name":"key","type":"address"},
		{"name":"validUntil","type":"uint256"},
		{"name":"policyHash","type":"bytes32"}]},
	{"type":"function","name":"revokeSessionKey","inputs":[
		{"name":"key","type":"address"}]},
	{"type":"function","name":"capture","inputs":[
		{"name":"paramsHash","type":"bytes32"},
		{"name":"amount","type":"uint256"}]}
]`

var (
	accountABI abi.ABI

	// packArgs is the entry point v0.6 tuple: the signature is excluded and
	// every dynamic bytes field enters as its keccak hash. The layout must
	// byte-for-byte match what the entry point computes on-chain; any
	// normalization or reordering breaks signature verification.
	packArgs abi.Arguments

	// scopeArgs domain-separates the packed hash by entry point and chain.
	scopeArgs abi.Arguments
)

func init() {
	var err error
	accountABI, err = abi.JSON(strings.NewReader(accountABIJSON))
	if err != nil {
		panic(fmt.Errorf("invalid account ABI: %w", err))
	}

	addressT := mustNewType("address")
	uint256T := mustNewType("uint256")
	bytes32T := mustNewType("bytes32")

	packArgs = abi.Arguments{
		{Type: addressT}, // sender
		{Type: uint256T}, // nonce
		{Type: bytes32T}, // keccak(initCode)
		{Type: bytes32T}, // keccak(callData)
		{Type: uint256T}, // callGasLimit
		{Type: uint256T}, // verificationGasLimit
		{Type: uint256T}, // preVerificationGas
		{Type: uint256T}, // maxFeePerGas
		{Type: uint256T}, // maxPriorityFeePerGas
		{Type: bytes32T}, // keccak(paymasterAndData)
	}

	scopeArgs = abi.Arguments{
		{Type: bytes32T}, // keccak(packed op)
		{Type: addressT}, // entry point
		{Type: uint256T}, // chain id
	}
}

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Errorf("invalid ABI type %q: %w", t, err))
	}
	return typ
}

// PackExecute produces the calldata for "execute this call from the smart
// account": execute(dest, value, func).
func PackExecute(to common.Address, value *big.Int, data []byte) ([]byte, error) {
	if value == nil {
		value = big.NewInt(0)
	}
	if data == nil {
		data = []byte{}
	}
	return accountABI.Pack("execute", to, value, data)
}

// PackAddSessionKey produces the calldata registering a session key on the
// smart account, binding it to the hash of its policy.
func PackAddSessionKey(key common.Address, validUntil *big.Int, policyHash common.Hash) ([]byte, error) {
	return accountABI.Pack("addSessionKey", key, validUntil, policyHash)
}

// PackRevokeSessionKey produces the calldata revoking a session key.
func PackRevokeSessionKey(key common.Address) ([]byte, error) {
	return accountABI.Pack("revokeSessionKey", key)
}

// PackCapture produces the calldata capturing a hold against the spender
// contract, keyed by the hash of its originating parameters.
func PackCapture(paramsHash common.Hash, amount *big.Int) ([]byte, error) {
	if amount == nil {
		return nil, fmt.Errorf("pack capture: amount is nil")
	}
	return accountABI.Pack("capture", paramsHash, amount)
}

// Hash computes the network-scoped operation hash: keccak over the ABI-packed
// operation, then keccak over (that hash, entryPoint, chainID). This is the
// message that gets signed and that the entry point verifies against.
func Hash(op model.UserOperation, entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	if chainID == nil {
		return common.Hash{}, fmt.Errorf("hash user operation: chainID is nil")
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
			return common.Hash{}, fmt.Errorf("hash user operation: %s is not set", name)
		}
	}

	packed, err := packArgs.Pack(
		op.Sender,
		op.Nonce,
		crypto.Keccak256Hash(op.InitCode),
		crypto.Keccak256Hash(op.CallData),
		op.CallGasLimit,
		op.VerificationGasLimit,
		op.PreVerificationGas,
		op.MaxFeePerGas,
		op.MaxPriorityFeePerGas,
		crypto.Keccak256Hash(op.PaymasterAndData),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack user operation: %w", err)
	}

	scoped, err := scopeArgs.Pack(crypto.Keccak256Hash(packed), entryPoint, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack hash scope: %w", err)
	}

	return crypto.Keccak256Hash(scoped), nil
}
