package http

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/sol-hydraulics/multisender/service/app"
	"github.com/sol-hydraulics/multisender/service/common"
	"github.com/sol-hydraulics/multisender/service/fees"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wallet() common.SolanaAddress {
	return common.SolanaAddress(solana.NewWallet().PublicKey())
}

func TestReqCreateDistributionToApp(t *testing.T) {
	base := uint64(42)
	req := ReqCreateDistribution{
		SenderWallet: wallet(),
		TokenAddress: wallet(),
		Decimals:     2,
		Priority:     "fast",
		Recipients: []ReqRecipient{
			{Wallet: wallet(), Amount: "1.25"},
			{Wallet: wallet(), BaseUnits: &base},
		},
	}

	job, err := req.ToApp()
	require.NoError(t, err)
	assert.Equal(t, fees.PriorityTierFast, job.PriorityTier)
	assert.Equal(t, uint64(125), job.Recipients[0].Amount)
	assert.Equal(t, uint64(42), job.Recipients[1].Amount)

	// Left to the configured default
	req.Priority = ""
	job, err = req.ToApp()
	require.NoError(t, err)
	assert.Empty(t, job.PriorityTier)
}

func TestReqRecipientAmounts(t *testing.T) {
	base := uint64(1)

	_, err := ReqRecipient{Amount: "1", BaseUnits: &base}.baseUnits(0)
	assert.Error(t, err)

	_, err = ReqRecipient{}.baseUnits(0)
	assert.Error(t, err)

	_, err = ReqRecipient{Amount: "0.001"}.baseUnits(2)
	assert.Error(t, err)
}

func TestResTokenOrderFromApp(t *testing.T) {
	sig := common.Signature(solana.Signature{3})
	job := &app.DistributionJob{
		Status: common.JobStatusProcessing,
		Recipients: []app.Recipient{
			{Status: common.RecipientStatusSent, TransactionSignature: sig},
			{Status: common.RecipientStatusSent, TransactionSignature: sig},
			{Status: common.RecipientStatusFailed},
			{Status: common.RecipientStatusAccountCreated},
		},
	}

	res := ResTokenOrderFromApp(job)
	assert.False(t, res.Done)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Pending)
	assert.Equal(t, []common.Signature{sig}, res.Signatures)
}
