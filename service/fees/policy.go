// Package fees maps a priority tier to the compute budget attached to every
// distribution transaction.
package fees

import (
	"strings"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
)

type PriorityTier string

const (
	PriorityTierFast  PriorityTier = "FAST"
	PriorityTierTurbo PriorityTier = "TURBO"
	PriorityTierUltra PriorityTier = "ULTRA"
)

const DefaultTier = PriorityTierTurbo

// ComputeBudget separates the unit price (micro-lamports per compute unit)
// from the unit limit. Both are set explicitly on every transaction.
type ComputeBudget struct {
	UnitPrice uint64
	UnitLimit uint32
}

var budgets = map[PriorityTier]ComputeBudget{
	PriorityTierFast:  {UnitPrice: 50_000, UnitLimit: 200_000},
	PriorityTierTurbo: {UnitPrice: 250_000, UnitLimit: 400_000},
	PriorityTierUltra: {UnitPrice: 1_000_000, UnitLimit: 600_000},
}

// ParseTier is case-insensitive. Unknown or empty values fall back to
// DefaultTier.
func ParseTier(s string) PriorityTier {
	t := PriorityTier(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := budgets[t]; ok {
		return t
	}
	return DefaultTier
}

// ParseTierOr behaves like ParseTier but falls back to def (itself parsed)
// instead of DefaultTier.
func ParseTierOr(s string, def string) PriorityTier {
	t := PriorityTier(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := budgets[t]; ok {
		return t
	}
	return ParseTier(def)
}

func (t PriorityTier) Valid() bool {
	_, ok := budgets[t]
	return ok
}

func (t PriorityTier) Budget() ComputeBudget {
	if b, ok := budgets[t]; ok {
		return b
	}
	return budgets[DefaultTier]
}

// Instructions returns the compute budget program instructions, limit first.
func (b ComputeBudget) Instructions() []solana.Instruction {
	return []solana.Instruction{
		computebudget.NewSetComputeUnitLimitInstruction(b.UnitLimit).Build(),
		computebudget.NewSetComputeUnitPriceInstruction(b.UnitPrice).Build(),
	}
}

// PriorityFeeLamports is the most a transaction pays on top of the base
// signature fee when it consumes its whole unit limit.
func (b ComputeBudget) PriorityFeeLamports() uint64 {
	micro := b.UnitPrice * uint64(b.UnitLimit)
	return (micro + 999_999) / 1_000_000
}
