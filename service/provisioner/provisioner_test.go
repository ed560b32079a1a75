package provisioner

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	errs "github.com/sol-hydraulics/multisender/service/errors"
	"github.com/sol-hydraulics/multisender/service/solana_helpers/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ata(t *testing.T, wallet, mint solana.PublicKey) solana.PublicKey {
	t.Helper()
	a, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	require.NoError(t, err)
	return a
}

func TestProvisionExisting(t *testing.T) {
	rpc := mocks.NewRPC()
	payer, wallet, mint := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	rpc.SetAccountExists(ata(t, wallet, mint))

	res, err := New(rpc, 2).Provision(context.Background(), payer, wallet, mint)
	require.NoError(t, err)
	assert.True(t, res.Exists)
	assert.False(t, res.NeedsAccount())
	assert.Empty(t, res.Instructions)
	assert.Zero(t, res.RentLamports)
	assert.Equal(t, ata(t, wallet, mint), res.TokenAccount)
}

func TestProvisionMissing(t *testing.T) {
	rpc := mocks.NewRPC()
	payer, wallet, mint := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()

	res, err := New(rpc, 2).Provision(context.Background(), payer, wallet, mint)
	require.NoError(t, err)
	assert.True(t, res.NeedsAccount())
	assert.Equal(t, uint64(mocks.DefaultRentLamports), res.RentLamports)
	require.Len(t, res.Instructions, 1)
	assert.Equal(t, solana.SPLAssociatedTokenAccountProgramID, res.Instructions[0].ProgramID())

	// CreateIdempotent, so a concurrently created account does not fail the batch
	data, err := res.Instructions[0].Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, data)
	accounts := res.Instructions[0].Accounts()
	require.Len(t, accounts, 6)
	assert.Equal(t, payer, accounts[0].PublicKey)
	assert.True(t, accounts[0].IsSigner)
	assert.Equal(t, ata(t, wallet, mint), accounts[1].PublicKey)
	assert.Equal(t, wallet, accounts[2].PublicKey)
	assert.Equal(t, mint, accounts[3].PublicKey)

	// nothing was sent
	assert.Empty(t, rpc.Sent())
}

func TestProvisionLookupFailure(t *testing.T) {
	rpc := mocks.NewRPC()
	payer, wallet, mint := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	rpc.SetLookupError(ata(t, wallet, mint), errors.New("i/o timeout"))

	_, err := New(rpc, 2).Provision(context.Background(), payer, wallet, mint)
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, errs.KindAccountLookupFailed, kind)
}

func TestProvisionAllKeepsOrder(t *testing.T) {
	rpc := mocks.NewRPC()
	payer, mint := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()

	wallets := make([]solana.PublicKey, 20)
	for i := range wallets {
		wallets[i] = solana.NewWallet().PublicKey()
		if i%2 == 0 {
			rpc.SetAccountExists(ata(t, wallets[i], mint))
		}
	}
	rpc.SetLookupError(ata(t, wallets[7], mint), errors.New("connection refused"))

	results, lookupErrs := New(rpc, 4).ProvisionAll(context.Background(), payer, mint, wallets)
	require.Len(t, results, len(wallets))
	require.Len(t, lookupErrs, len(wallets))

	for i, w := range wallets {
		if i == 7 {
			assert.Nil(t, results[i])
			assert.Error(t, lookupErrs[i])
			continue
		}
		require.NoError(t, lookupErrs[i])
		assert.Equal(t, w, results[i].Wallet)
		assert.Equal(t, i%2 == 0, results[i].Exists)
	}
}
