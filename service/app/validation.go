package app

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/sol-hydraulics/multisender/service/common"
)

func (job DistributionJob) Validate() error {
	if job.SenderWallet == (common.SolanaAddress{}) {
		return fmt.Errorf("sender wallet must be defined")
	}

	if job.TokenAddress == (common.SolanaAddress{}) {
		return fmt.Errorf("token address must be defined")
	}

	if !job.PriorityTier.Valid() {
		return fmt.Errorf("unknown priority tier %q", job.PriorityTier)
	}

	if len(job.Recipients) == 0 {
		return fmt.Errorf("no recipients provided")
	}

	seen := make(map[common.SolanaAddress]int, len(job.Recipients))
	var total uint64
	for i, r := range job.Recipients {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("error in recipient %d: %w", i+1, err)
		}
		if prev, ok := seen[r.WalletAddress]; ok {
			return fmt.Errorf("recipient %d duplicates wallet of recipient %d", i+1, prev+1)
		}
		seen[r.WalletAddress] = i

		// TotalAmount and refunds must fit a uint64
		sum, carry := bits.Add64(total, r.Amount, 0)
		if carry != 0 {
			return fmt.Errorf("total amount exceeds %d base units at recipient %d", uint64(math.MaxUint64), i+1)
		}
		total = sum
	}

	return nil
}

func (r Recipient) Validate() error {
	if r.WalletAddress == (common.SolanaAddress{}) {
		return fmt.Errorf("wallet address must be defined")
	}

	if r.Amount == 0 {
		return fmt.Errorf("amount can not be zero")
	}

	return nil
}
