package queue

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/packfinderz-pos/pkg/db"
	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps the queue in the terminal's SQLite database. The schema is
// owned by pkg/migrate.
type GormStore struct {
	client *db.Client
}

// NewGormStore wraps a migrated SQLite client.
func NewGormStore(client *db.Client) (*GormStore, error) {
	if client == nil {
		return nil, errors.New("db client required")
	}
	return &GormStore{client: client}, nil
}

func (s *GormStore) Append(ctx context.Context, sale Sale) (Sale, bool, error) {
	var (
		stored  Sale
		created bool
	)
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		var existing models.QueuedSale
		err := tx.Where("client_temp_id = ?", sale.ClientTempID.String()).Take(&existing).Error
		switch {
		case err == nil:
			stored, err = saleFromModel(existing)
			return err
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		row := models.QueuedSale{
			ClientTempID:   sale.ClientTempID.String(),
			CreatedAtNanos: sale.CreatedAt.UnixNano(),
			IdempotencyKey: sale.IdempotencyKey,
			Payload:        sale.Payload,
			EnqueuedAt:     sale.EnqueuedAt.UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		stored = sale
		stored.Seq = row.Seq
		created = true
		return nil
	})
	if err != nil {
		return Sale{}, false, err
	}
	return stored, created, nil
}

func (s *GormStore) Oldest(ctx context.Context) (*Sale, error) {
	var row models.QueuedSale
	err := s.client.DB().WithContext(ctx).
		Where("NOT EXISTS (SELECT 1 FROM sync_attention a WHERE a.client_temp_id = queued_sales.client_temp_id)").
		Order("seq ASC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sale, err := saleFromModel(row)
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *GormStore) Get(ctx context.Context, id uuid.UUID) (*Sale, error) {
	var row models.QueuedSale
	err := s.client.DB().WithContext(ctx).Where("client_temp_id = ?", id.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sale, err := saleFromModel(row)
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *GormStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("client_temp_id = ?", id.String()).Delete(&models.SyncAttention{}).Error; err != nil {
			return err
		}
		return tx.Where("client_temp_id = ?", id.String()).Delete(&models.QueuedSale{}).Error
	})
}

func (s *GormStore) Count(ctx context.Context) (int, error) {
	var count int64
	if err := s.client.DB().WithContext(ctx).Model(&models.QueuedSale{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *GormStore) Flag(ctx context.Context, attention Attention) error {
	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.QueuedSale{}).Where("client_temp_id = ?", attention.ClientTempID.String()).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}

		row := models.SyncAttention{
			ClientTempID: attention.ClientTempID.String(),
			Reason:       attention.Reason,
			StatusCode:   attention.StatusCode,
			FlaggedAt:    attention.FlaggedAt.UTC(),
		}
		if attention.Message != "" {
			msg := attention.Message
			row.Message = &msg
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_temp_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"reason", "status_code", "message", "flagged_at"}),
		}).Create(&row).Error
	})
}

func (s *GormStore) Unflag(ctx context.Context, id uuid.UUID) error {
	res := s.client.DB().WithContext(ctx).Where("client_temp_id = ?", id.String()).Delete(&models.SyncAttention{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListAttention(ctx context.Context) ([]AttentionEntry, error) {
	var flags []models.SyncAttention
	if err := s.client.DB().WithContext(ctx).Order("flagged_at ASC").Find(&flags).Error; err != nil {
		return nil, err
	}
	if len(flags) == 0 {
		return []AttentionEntry{}, nil
	}

	ids := make([]string, 0, len(flags))
	for _, f := range flags {
		ids = append(ids, f.ClientTempID)
	}
	var rows []models.QueuedSale
	if err := s.client.DB().WithContext(ctx).Where("client_temp_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]models.QueuedSale, len(rows))
	for _, r := range rows {
		byID[r.ClientTempID] = r
	}

	out := make([]AttentionEntry, 0, len(flags))
	for _, f := range flags {
		row, ok := byID[f.ClientTempID]
		if !ok {
			continue
		}
		sale, err := saleFromModel(row)
		if err != nil {
			return nil, err
		}
		att := Attention{
			ClientTempID: sale.ClientTempID,
			Reason:       f.Reason,
			StatusCode:   f.StatusCode,
			FlaggedAt:    f.FlaggedAt,
		}
		if f.Message != nil {
			att.Message = *f.Message
		}
		out = append(out, AttentionEntry{Attention: att, Sale: sale})
	}
	return out, nil
}

func (s *GormStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	total, err := s.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	var flagged int64
	if err := s.client.DB().WithContext(ctx).Model(&models.SyncAttention{}).Count(&flagged).Error; err != nil {
		return Stats{}, err
	}
	stats.Total = total
	stats.Attention = int(flagged)
	stats.Pending = total - int(flagged)

	oldest, err := s.Oldest(ctx)
	if err != nil {
		return Stats{}, err
	}
	if oldest != nil {
		at := oldest.CreatedAt
		stats.OldestAt = &at
	}
	return stats, nil
}

// Close is a no-op; the SQLite client is owned by the caller.
func (s *GormStore) Close() error {
	return nil
}

func saleFromModel(row models.QueuedSale) (Sale, error) {
	id, err := uuid.Parse(row.ClientTempID)
	if err != nil {
		return Sale{}, err
	}
	return Sale{
		Seq:            row.Seq,
		ClientTempID:   id,
		CreatedAt:      time.Unix(0, row.CreatedAtNanos).UTC(),
		IdempotencyKey: row.IdempotencyKey,
		Payload:        row.Payload,
		EnqueuedAt:     row.EnqueuedAt.UTC(),
	}, nil
}
