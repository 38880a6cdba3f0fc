package userop

import (
	"fmt"
	"math/big"

	"github.com/vaultline/aa-relayer-go/internal/model"
)

// Wire is the hex-string JSON form of a user operation expected by bundler
// and paymaster RPC endpoints.
type Wire struct {
	Sender               string `json:"sender"`
	Nonce                string `json:"nonce"`
	InitCode             string `json:"initCode"`
	CallData             string `json:"callData"`
	CallGasLimit         string `json:"callGasLimit"`
	VerificationGasLimit string `json:"verificationGasLimit"`
	PreVerificationGas   string `json:"preVerificationGas"`
	MaxFeePerGas         string `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas"`
	PaymasterAndData     string `json:"paymasterAndData"`
	Signature            string `json:"signature"`
}

// ToWire encodes an operation for the JSON-RPC wire. Unset numeric fields
// encode as 0x0 so partially filled operations can be sent for estimation.
func ToWire(op model.UserOperation) Wire {
	return Wire{
		Sender:               op.Sender.Hex(),
		Nonce:                hexBig(op.Nonce),
		InitCode:             hexBytes(op.InitCode),
		CallData:             hexBytes(op.CallData),
		CallGasLimit:         hexBig(op.CallGasLimit),
		VerificationGasLimit: hexBig(op.VerificationGasLimit),
		PreVerificationGas:   hexBig(op.PreVerificationGas),
		MaxFeePerGas:         hexBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: hexBig(op.MaxPriorityFeePerGas),
		PaymasterAndData:     hexBytes(op.PaymasterAndData),
		Signature:            hexBytes(op.Signature),
	}
}

// PartialToWire encodes a pre-sponsorship operation.
func PartialToWire(p model.PartialUserOperation) Wire {
	return ToWire(model.UserOperation{
		Sender:               p.Sender,
		Nonce:                p.Nonce,
		InitCode:             p.InitCode,
		CallData:             p.CallData,
		CallGasLimit:         p.CallGasLimit,
		VerificationGasLimit: p.VerificationGasLimit,
		PreVerificationGas:   p.PreVerificationGas,
		MaxFeePerGas:         p.MaxFeePerGas,
		MaxPriorityFeePerGas: p.MaxPriorityFeePerGas,
	})
}

func hexBig(v *big.Int) string {
	if v == nil {
		return "0x0"
	}
	return "0x" + v.Text(16)
}

func hexBytes(b []byte) string {
	return fmt.Sprintf("0x%x", b)
}
