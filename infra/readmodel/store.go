package readmodel

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"matchcore/domain/event"
	"matchcore/domain/instrument"
	"matchcore/infra/journal"
)

type Config struct {
	Driver string // sqlite | postgres
	DSN    string
}

// Store is the queryable projection of the journal. It is written only by
// the sync task and never read by the engine.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func Open(cfg Config, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		if dir := filepath.Dir(cfg.DSN); dir != "." && cfg.DSN != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrap(err, "create read-model dir")
			}
		}
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, errors.Newf("unknown read-model driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s read-model", cfg.Driver)
	}
	if err := db.AutoMigrate(&OrderRecord{}, &DepositRecord{}, &InstrumentRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate read-model")
	}

	log.Info("readmodel_opened", zap.String("driver", cfg.Driver))
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

//
// ──────────────────────────────────────────────────────────
// Journal projection
// ──────────────────────────────────────────────────────────
//

// SaveBatch writes one batch of journal records in a single transaction.
// Rows already present are left untouched.
func (s *Store) SaveBatch(ctx context.Context, recs []journal.Record) error {
	if len(recs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	var orders []OrderRecord
	var deposits []DepositRecord
	for _, rec := range recs {
		switch ev := rec.Event.(type) {
		case event.OrderPlaced:
			orders = append(orders, OrderRecord{
				JournalOffset: rec.Offset,
				UserID:        ev.UserID,
				ClientOrderID: ev.ClientOrderID,
				Side:          ev.Side.String(),
				InstrumentID:  ev.InstrumentID,
				Amount:        ev.Amount,
				Price:         ev.Price,
				SyncedAt:      now,
			})
		case event.Deposit:
			deposits = append(deposits, DepositRecord{
				JournalOffset: rec.Offset,
				UserID:        ev.UserID,
				AssetID:       ev.AssetID,
				Amount:        ev.Amount,
				SyncedAt:      now,
			})
		default:
			return errors.Wrapf(journal.ErrUnknownEventType, "%T at offset %d", ev, rec.Offset)
		}
	}

	// a chained *gorm.DB must not be reused across statements
	ignore := clause.OnConflict{DoNothing: true}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(orders) > 0 {
			if err := tx.Clauses(ignore).CreateInBatches(&orders, 500).Error; err != nil {
				return errors.Wrap(err, "insert orders")
			}
		}
		if len(deposits) > 0 {
			if err := tx.Clauses(ignore).CreateInBatches(&deposits, 500).Error; err != nil {
				return errors.Wrap(err, "insert deposits")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Debug("readmodel_batch_saved",
		zap.Int("orders", len(orders)),
		zap.Int("deposits", len(deposits)),
		zap.Int64("last_offset", recs[len(recs)-1].Offset))
	return nil
}

func (s *Store) OrdersByUser(ctx context.Context, userID int64, limit int) ([]OrderRecord, error) {
	var out []OrderRecord
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("journal_offset")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "orders by user")
	}
	return out, nil
}

func (s *Store) DepositsByUser(ctx context.Context, userID int64) ([]DepositRecord, error) {
	var out []DepositRecord
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("journal_offset").Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "deposits by user")
	}
	return out, nil
}

// Counts returns the number of order and deposit rows.
func (s *Store) Counts(ctx context.Context) (orders, deposits int64, err error) {
	db := s.db.WithContext(ctx)
	if err = db.Model(&OrderRecord{}).Count(&orders).Error; err != nil {
		return 0, 0, errors.Wrap(err, "count orders")
	}
	if err = db.Model(&DepositRecord{}).Count(&deposits).Error; err != nil {
		return 0, 0, errors.Wrap(err, "count deposits")
	}
	return orders, deposits, nil
}

//
// ──────────────────────────────────────────────────────────
// Instruments
// ──────────────────────────────────────────────────────────
//

// SeedInstruments upserts list by id.
func (s *Store) SeedInstruments(ctx context.Context, list []instrument.Instrument) error {
	if len(list) == 0 {
		return nil
	}
	rows := make([]InstrumentRecord, len(list))
	for i, in := range list {
		rows[i] = InstrumentRecord{
			ID:             in.ID,
			Symbol:         in.Symbol,
			Name:           in.Name,
			BaseAssetID:    in.BaseAssetID,
			QuoteAssetID:   in.QuoteAssetID,
			PricePrecision: in.PricePrecision,
			MinAmount:      in.MinAmount,
			TickSize:       in.TickSize,
			Status:         string(in.Status),
			UpdatedAt:      time.Now().UTC(),
		}
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&rows).Error
	return errors.Wrap(err, "seed instruments")
}

func (s *Store) Instruments(ctx context.Context) ([]instrument.Instrument, error) {
	var rows []InstrumentRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load instruments")
	}
	out := make([]instrument.Instrument, 0, len(rows))
	for _, r := range rows {
		status, err := instrument.ParseStatus(r.Status)
		if err != nil {
			return nil, errors.Wrapf(err, "instrument %d", r.ID)
		}
		out = append(out, instrument.Instrument{
			ID:             r.ID,
			Symbol:         r.Symbol,
			Name:           r.Name,
			BaseAssetID:    r.BaseAssetID,
			QuoteAssetID:   r.QuoteAssetID,
			PricePrecision: r.PricePrecision,
			MinAmount:      r.MinAmount,
			TickSize:       r.TickSize,
			Status:         status,
		})
	}
	return out, nil
}
