// Package batcher packs per-recipient instruction groups into transactions.
package batcher

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	errs "github.com/sol-hydraulics/multisender/service/errors"
)

const (
	DefaultMaxInstructions = 16
	// Maximum serialized transaction size accepted by the cluster
	DefaultMaxSize = 1232
)

// Group is everything one recipient needs, in execution order. A group is
// never split across transactions.
type Group struct {
	RecipientID  uuid.UUID
	Instructions []solana.Instruction
}

// Batch is one transaction worth of groups. Instructions includes the
// overhead prefix.
type Batch struct {
	Instructions []solana.Instruction
	RecipientIDs []uuid.UUID
}

// Rejection is a group that does not fit into a transaction on its own.
type Rejection struct {
	RecipientID uuid.UUID
	Err         *errs.Error
}

type Limits struct {
	MaxInstructions int
	MaxSize         int
}

func DefaultLimits() Limits {
	return Limits{DefaultMaxInstructions, DefaultMaxSize}
}

type Sizer interface {
	Size(instructions []solana.Instruction) (int, error)
}

// OverheadFunc returns the instructions prefixed to a transaction covering
// the given number of recipients.
type OverheadFunc func(recipients int) []solana.Instruction

type Batcher struct {
	Limits   Limits
	Sizer    Sizer
	Overhead OverheadFunc
}

func New(limits Limits, sizer Sizer, overhead OverheadFunc) *Batcher {
	if overhead == nil {
		overhead = func(int) []solana.Instruction { return nil }
	}
	return &Batcher{limits, sizer, overhead}
}

// Batch greedily accumulates groups in order and closes the current batch
// when the next group would exceed either limit. Output is a pure function
// of the input and the limits.
func (b *Batcher) Batch(groups []Group) ([]Batch, []Rejection, error) {
	batches := []Batch{}
	rejections := []Rejection{}

	var current []Group

	for _, g := range groups {
		fits, err := b.fits(append(current[:len(current):len(current)], g))
		if err != nil {
			return nil, nil, err
		}
		if fits {
			current = append(current, g)
			continue
		}

		if len(current) > 0 {
			batches = append(batches, b.build(current))
			current = nil

			fits, err = b.fits([]Group{g})
			if err != nil {
				return nil, nil, err
			}
			if fits {
				current = []Group{g}
				continue
			}
		}

		rejections = append(rejections, Rejection{
			RecipientID: g.RecipientID,
			Err: errs.Newf(
				errs.KindInstructionTooLarge,
				"%d instructions do not fit into a single transaction (max %d instructions, %d bytes)",
				len(g.Instructions), b.Limits.MaxInstructions, b.Limits.MaxSize,
			),
		})
	}

	if len(current) > 0 {
		batches = append(batches, b.build(current))
	}

	return batches, rejections, nil
}

func (b *Batcher) instructions(groups []Group) []solana.Instruction {
	ixs := append([]solana.Instruction{}, b.Overhead(len(groups))...)
	for _, g := range groups {
		ixs = append(ixs, g.Instructions...)
	}
	return ixs
}

func (b *Batcher) fits(groups []Group) (bool, error) {
	ixs := b.instructions(groups)
	if b.Limits.MaxInstructions > 0 && len(ixs) > b.Limits.MaxInstructions {
		return false, nil
	}
	if b.Limits.MaxSize <= 0 || b.Sizer == nil {
		return true, nil
	}
	size, err := b.Sizer.Size(ixs)
	if err != nil {
		return false, fmt.Errorf("error while measuring transaction size: %w", err)
	}
	return size <= b.Limits.MaxSize, nil
}

func (b *Batcher) build(groups []Group) Batch {
	ids := make([]uuid.UUID, len(groups))
	for i, g := range groups {
		ids[i] = g.RecipientID
	}
	return Batch{Instructions: b.instructions(groups), RecipientIDs: ids}
}
