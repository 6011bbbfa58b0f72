package readmodel

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderRecord is one accepted order as journaled. The journal offset is
// the identity, so re-syncing the same range never duplicates a row.
type OrderRecord struct {
	JournalOffset int64           `gorm:"primaryKey;autoIncrement:false"`
	UserID        int64           `gorm:"index;not null"`
	ClientOrderID string          `gorm:"type:varchar(128);index;not null"`
	Side          string          `gorm:"type:varchar(4);not null"`
	InstrumentID  int64           `gorm:"index;not null"`
	Amount        decimal.Decimal `gorm:"type:varchar(64);not null"`
	Price         decimal.Decimal `gorm:"type:varchar(64);not null"`
	SyncedAt      time.Time
}

func (OrderRecord) TableName() string { return "orders" }

type DepositRecord struct {
	JournalOffset int64           `gorm:"primaryKey;autoIncrement:false"`
	UserID        int64           `gorm:"index;not null"`
	AssetID       int64           `gorm:"not null"`
	Amount        decimal.Decimal `gorm:"type:varchar(64);not null"`
	SyncedAt      time.Time
}

func (DepositRecord) TableName() string { return "deposits" }

type InstrumentRecord struct {
	ID             int64           `gorm:"primaryKey;autoIncrement:false"`
	Symbol         string          `gorm:"type:varchar(32);uniqueIndex;not null"`
	Name           string          `gorm:"type:varchar(128)"`
	BaseAssetID    int64           `gorm:"not null"`
	QuoteAssetID   int64           `gorm:"not null"`
	PricePrecision int32           `gorm:"not null"`
	MinAmount      decimal.Decimal `gorm:"type:varchar(64);not null"`
	TickSize       decimal.Decimal `gorm:"type:varchar(64);not null"`
	Status         string          `gorm:"type:varchar(16);not null"`
	UpdatedAt      time.Time
}

func (InstrumentRecord) TableName() string { return "instruments" }
