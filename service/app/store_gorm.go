package app

import (
	"github.com/google/uuid"
	"github.com/sol-hydraulics/multisender/service/common"
	"github.com/sol-hydraulics/multisender/service/transactions"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct {
	db        *gorm.DB
	batchSize int
}

func NewGormStore(db *gorm.DB, batchSize int) *GormStore {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &GormStore{db, batchSize}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&DistributionJob{}, &Recipient{}); err != nil {
		return err
	}
	return transactions.Migrate(db)
}

// Insert distribution job
func (s *GormStore) InsertDistributionJob(j *DistributionJob) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		// Store job
		if err := tx.Omit(clause.Associations).Create(j).Error; err != nil {
			return err
		}

		// Update job IDs
		for i := range j.Recipients {
			j.Recipients[i].JobID = j.ID
		}

		// Store recipients in batches
		if err := tx.Omit(clause.Associations).CreateInBatches(j.Recipients, s.batchSize).Error; err != nil {
			return err
		}

		// Commit
		return nil
	})
}

// Update distribution job
// Note: this will not update recipients
func (s *GormStore) UpdateDistributionJob(j *DistributionJob) error {
	// Omit associations as saving associations (nested objects) was causing
	// duplicates of them to be created on each update.
	return s.db.Omit(clause.Associations).Save(j).Error
}

// List distribution jobs
func (s *GormStore) ListDistributionJobs(sender *common.SolanaAddress, opt ListOptions) ([]DistributionJob, error) {
	list := []DistributionJob{}
	q := s.db.Order("created_at desc").Limit(opt.Limit).Offset(opt.Offset)
	if sender != nil {
		q = q.Where("sender_wallet = ?", *sender)
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// Get distribution job
func (s *GormStore) GetDistributionJob(id uuid.UUID) (*DistributionJob, error) {
	job := DistributionJob{}
	err := s.db.
		Preload("Recipients", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		First(&job, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *GormStore) ListDistributionJobIDs(states ...common.JobStatus) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	err := s.db.Model(&DistributionJob{}).
		Where("status IN ?", states).
		Order("created_at asc").
		Pluck("id", &ids).Error
	return ids, err
}

func (s *GormStore) SavePlan(j *DistributionJob, batches []*transactions.StorableTransaction) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(j).Error; err != nil {
			return err
		}

		// Upsert, the recipients exist already
		err := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{UpdateAll: true}).
			CreateInBatches(j.Recipients, s.batchSize).Error
		if err != nil {
			return err
		}

		return transactions.InsertTransactions(tx, batches, s.batchSize)
	})
}

func (s *GormStore) SaveBatchResult(j *DistributionJob, t *transactions.StorableTransaction, recipients []*Recipient) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := t.Save(tx); err != nil {
			return err
		}

		for _, r := range recipients {
			if err := tx.Omit(clause.Associations).Save(r).Error; err != nil {
				return err
			}
		}

		// Only progress counters of the job change here
		return tx.Model(&DistributionJob{}).
			Where("id = ?", j.ID).
			Updates(map[string]interface{}{
				"sent_count":   j.SentCount,
				"failed_count": j.FailedCount,
			}).Error
	})
}

func (s *GormStore) GetJobTransactions(jobID uuid.UUID) ([]*transactions.StorableTransaction, error) {
	return transactions.JobTransactions(s.db, jobID)
}

func (s *GormStore) GetRefundTransaction(jobID uuid.UUID) (*transactions.StorableTransaction, error) {
	return transactions.RefundTransaction(s.db, jobID)
}

func (s *GormStore) InsertTransaction(t *transactions.StorableTransaction) error {
	return transactions.InsertTransactions(s.db, []*transactions.StorableTransaction{t}, s.batchSize)
}

func (s *GormStore) UpdateTransaction(t *transactions.StorableTransaction) error {
	return t.Save(s.db)
}
