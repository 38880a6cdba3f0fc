package relay

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/vaultline/aa-relayer-go/internal/model"
)

func partialOp() model.PartialUserOperation {
	return model.PartialUserOperation{
		Sender:   common.HexToAddress("0xAAA0000000000000000000000000000000000aaa"),
		Nonce:    big.NewInt(1),
		CallData: []byte{0x01},
	}
}

func signedOp(t *testing.T) model.SignedUserOperation {
	t.Helper()
	op, err := model.PartialUserOperation{
		Sender:               common.HexToAddress("0xAAA0000000000000000000000000000000000aaa"),
		Nonce:                big.NewInt(1),
		CallData:             []byte{0x01},
		CallGasLimit:         big.NewInt(100000),
		VerificationGasLimit: big.NewInt(200000),
		PreVerificationGas:   big.NewInt(30000),
		MaxFeePerGas:         big.NewInt(2_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(1_000_000_000),
	}.Complete(model.SponsorData{PaymasterAndData: []byte{0xde, 0xad}})
	require.NoError(t, err)
	signed, err := op.Signed([]byte{0x01})
	require.NoError(t, err)
	return signed
}
