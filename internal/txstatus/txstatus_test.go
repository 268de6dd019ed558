package txstatus

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/basemcp/internal/testutil"
)

func signedTx(t *testing.T) (*types.Transaction, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	to := common.HexToAddress("0x000000000000000000000000000000000000bEEF")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(8453),
		Nonce:     4,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(10),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(12345),
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(8453)), key)
	require.NoError(t, err)
	return signed, crypto.PubkeyToAddress(key.PublicKey)
}

func TestCheck_Mined(t *testing.T) {
	fake := testutil.NewFakeEthClient(8453)
	tx, from := signedTx(t)
	fake.Txs[tx.Hash()] = tx
	fake.Receipts[tx.Hash()] = &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		BlockNumber:       big.NewInt(90),
		GasUsed:           21000,
		EffectiveGasPrice: big.NewInt(2),
	}

	st, err := New(fake, 8453).Check(context.Background(), tx.Hash().Hex(), 0)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, st.Status)
	assert.Equal(t, from.Hex(), *st.From)
	assert.Equal(t, "0x000000000000000000000000000000000000bEEF", *st.To)
	assert.Equal(t, "12345", *st.Value)
	assert.Equal(t, "4", *st.Nonce)
	assert.Equal(t, "90", *st.BlockNumber)
	assert.Equal(t, "10", *st.Confirmations)
	assert.Equal(t, "21000", *st.GasUsed)
	assert.Equal(t, "42000", *st.GasFee)
	assert.Equal(t, "https://basescan.org/tx/"+tx.Hash().Hex(), st.ExplorerURL)
}

func TestCheck_FailedAndPending(t *testing.T) {
	fake := testutil.NewFakeEthClient(84532)
	tx, _ := signedTx(t)
	fake.Txs[tx.Hash()] = tx

	c := New(fake, 84532)
	st, err := c.Check(context.Background(), tx.Hash().Hex(), 0)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, st.Status)
	assert.Nil(t, st.BlockNumber)
	assert.Nil(t, st.Confirmations)
	assert.Contains(t, st.ExplorerURL, "sepolia.basescan.org")

	fake.Receipts[tx.Hash()] = &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(100)}
	st, err = c.Check(context.Background(), tx.Hash().Hex(), 0)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, "0", *st.Confirmations)
}

func TestCheck_Errors(t *testing.T) {
	c := New(testutil.NewFakeEthClient(8453), 8453)

	_, err := c.Check(context.Background(), "0x1234", 0)
	assert.EqualError(t, err, "Invalid transaction hash: 0x1234")

	_, err = c.Check(context.Background(), common.Hash{1}.Hex(), 999)
	assert.EqualError(t, err, "Invalid chain ID: 999")

	_, err = c.Check(context.Background(), common.Hash{1}.Hex(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "Failed to get transaction status: transaction not found")
}
