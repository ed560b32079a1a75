package batcher

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/google/uuid"
	errs "github.com/sol-hydraulics/multisender/service/errors"
	"github.com/sol-hydraulics/multisender/service/fees"
	"github.com/sol-hydraulics/multisender/service/solana_helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSizer charges a fixed size per instruction
type countingSizer int

func (s countingSizer) Size(ixs []solana.Instruction) (int, error) {
	return len(ixs) * int(s), nil
}

func transferGroup(owner solana.PublicKey, n int) Group {
	src := solana.NewWallet().PublicKey()
	ixs := make([]solana.Instruction, n)
	for i := range ixs {
		ixs[i] = token.NewTransferInstruction(uint64(10*(i+1)), src, solana.NewWallet().PublicKey(), owner, nil).Build()
	}
	return Group{RecipientID: uuid.New(), Instructions: ixs}
}

func ids(groups []Group) []uuid.UUID {
	res := make([]uuid.UUID, len(groups))
	for i, g := range groups {
		res[i] = g.RecipientID
	}
	return res
}

func flatten(batches []Batch) []uuid.UUID {
	res := []uuid.UUID{}
	for _, b := range batches {
		res = append(res, b.RecipientIDs...)
	}
	return res
}

func TestInstructionLimit(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	groups := make([]Group, 5)
	for i := range groups {
		groups[i] = transferGroup(owner, 2)
	}

	overhead := func(int) []solana.Instruction { return fees.PriorityTierTurbo.Budget().Instructions() }
	b := New(Limits{MaxInstructions: 6, MaxSize: 0}, nil, overhead)

	batches, rejections, err := b.Batch(groups)
	require.NoError(t, err)
	assert.Empty(t, rejections)

	require.Len(t, batches, 3)
	assert.Len(t, batches[0].RecipientIDs, 2)
	assert.Len(t, batches[1].RecipientIDs, 2)
	assert.Len(t, batches[2].RecipientIDs, 1)
	assert.Len(t, batches[0].Instructions, 6)
	assert.Len(t, batches[2].Instructions, 4)

	assert.Equal(t, ids(groups), flatten(batches))
}

func TestDeterministic(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	groups := make([]Group, 40)
	for i := range groups {
		groups[i] = transferGroup(owner, 1+i%3)
	}

	b := New(DefaultLimits(), solana_helpers.TransactionSizer{Payer: owner}, nil)

	first, _, err := b.Batch(groups)
	require.NoError(t, err)
	second, _, err := b.Batch(groups)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].RecipientIDs, second[i].RecipientIDs)
	}
	assert.Equal(t, ids(groups), flatten(first))
}

func TestSizeLimit(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	groups := make([]Group, 30)
	for i := range groups {
		groups[i] = transferGroup(owner, 1)
	}

	sizer := solana_helpers.TransactionSizer{Payer: owner}
	b := New(DefaultLimits(), sizer, func(int) []solana.Instruction {
		return fees.PriorityTierFast.Budget().Instructions()
	})

	batches, rejections, err := b.Batch(groups)
	require.NoError(t, err)
	assert.Empty(t, rejections)
	assert.Greater(t, len(batches), 1)

	for _, batch := range batches {
		size, err := sizer.Size(batch.Instructions)
		require.NoError(t, err)
		assert.LessOrEqual(t, size, DefaultMaxSize)
		assert.LessOrEqual(t, len(batch.Instructions), DefaultMaxInstructions)
	}

	assert.Equal(t, ids(groups), flatten(batches))
}

func TestOversizedGroupIsRejected(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	groups := []Group{
		transferGroup(owner, 1),
		transferGroup(owner, 1),
		transferGroup(owner, 5),
		transferGroup(owner, 1),
	}

	b := New(Limits{MaxInstructions: 4}, countingSizer(1), nil)

	batches, rejections, err := b.Batch(groups)
	require.NoError(t, err)

	require.Len(t, rejections, 1)
	assert.Equal(t, groups[2].RecipientID, rejections[0].RecipientID)
	assert.Equal(t, errs.KindInstructionTooLarge, rejections[0].Err.Kind)

	// the oversized group is in no batch and the order of the rest holds
	batched := flatten(batches)
	assert.NotContains(t, batched, groups[2].RecipientID)
	assert.Equal(t, []uuid.UUID{groups[0].RecipientID, groups[1].RecipientID, groups[3].RecipientID}, batched)
}

func TestOverheadGrowsWithRecipients(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	groups := []Group{transferGroup(owner, 1), transferGroup(owner, 1), transferGroup(owner, 1)}

	// one extra instruction for every two recipients
	overhead := func(n int) []solana.Instruction {
		return make([]solana.Instruction, (n+1)/2)
	}

	batches, rejections, err := New(Limits{MaxInstructions: 4}, nil, overhead).Batch(groups)
	require.NoError(t, err)
	assert.Empty(t, rejections)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Instructions, 3)
	assert.Len(t, batches[1].Instructions, 2)
}

func TestEmptyInput(t *testing.T) {
	batches, rejections, err := New(DefaultLimits(), countingSizer(1), nil).Batch(nil)
	require.NoError(t, err)
	assert.Empty(t, batches)
	assert.Empty(t, rejections)
}
