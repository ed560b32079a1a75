package transactions

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&StorableTransaction{})
}

func (StorableTransaction) TableName() string {
	return "transactions"
}

func (t *StorableTransaction) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func (t *StorableTransaction) Save(db *gorm.DB) error {
	return db.Omit(clause.Associations).Save(t).Error
}

func InsertTransactions(db *gorm.DB, list []*StorableTransaction, batchSize int) error {
	if len(list) == 0 {
		return nil
	}
	return db.Omit(clause.Associations).CreateInBatches(list, batchSize).Error
}

func GetTransaction(db *gorm.DB, id uuid.UUID) (*StorableTransaction, error) {
	t := StorableTransaction{}
	return &t, db.First(&t, "id = ?", id).Error
}

// JobTransactions lists the distribution batches of a job in batch order.
func JobTransactions(db *gorm.DB, jobID uuid.UUID) ([]*StorableTransaction, error) {
	list := []*StorableTransaction{}
	err := db.Order("position asc").
		Where(map[string]interface{}{"job_id": jobID, "is_refund": false}).
		Find(&list).Error
	return list, err
}

// RefundTransaction returns the refund batch of a job, if any.
func RefundTransaction(db *gorm.DB, jobID uuid.UUID) (*StorableTransaction, error) {
	list := []*StorableTransaction{}
	err := db.Where(map[string]interface{}{"job_id": jobID, "is_refund": true}).
		Limit(1).
		Find(&list).Error
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}
