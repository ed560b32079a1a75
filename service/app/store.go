package app

import (
	"github.com/google/uuid"
	"github.com/sol-hydraulics/multisender/service/common"
	"github.com/sol-hydraulics/multisender/service/transactions"
)

type Store interface {
	// Insert distribution job with its recipients
	InsertDistributionJob(*DistributionJob) error

	// Update distribution job, not its recipients
	UpdateDistributionJob(*DistributionJob) error

	// List distribution jobs, optionally of one sender
	ListDistributionJobs(sender *common.SolanaAddress, opt ListOptions) ([]DistributionJob, error)

	// Get distribution job with its recipients
	GetDistributionJob(id uuid.UUID) (*DistributionJob, error)

	// List ids of jobs in any of the given states, oldest first
	ListDistributionJobIDs(states ...common.JobStatus) ([]uuid.UUID, error)

	// Store the planning result of a job: the job, its recipients and its batches
	SavePlan(*DistributionJob, []*transactions.StorableTransaction) error

	// Store a resolved batch together with the recipients it affected
	SaveBatchResult(*DistributionJob, *transactions.StorableTransaction, []*Recipient) error

	// Distribution batches of a job in batch order
	GetJobTransactions(jobID uuid.UUID) ([]*transactions.StorableTransaction, error)

	// Refund batch of a job, nil if there is none
	GetRefundTransaction(jobID uuid.UUID) (*transactions.StorableTransaction, error)

	InsertTransaction(*transactions.StorableTransaction) error
	UpdateTransaction(*transactions.StorableTransaction) error
}

type ListOptions struct {
	Limit  int
	Offset int
}

const DefaultLimit = 1000

func ParseListOptions(limit, offset int) ListOptions {
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 0 {
		limit = -1
		offset = 0
	}
	if offset < 0 {
		offset = 0
	}
	return ListOptions{Limit: limit, Offset: offset}
}
