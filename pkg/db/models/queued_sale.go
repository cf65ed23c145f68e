package models

import "time"

// QueuedSale is a finalized sale awaiting confirmation from the Sales API.
// Rows are append-only; a row is removed only once the remote side has
// acknowledged its idempotency key.
type QueuedSale struct {
	Seq            int64     `gorm:"column:seq;primaryKey;autoIncrement"`
	ClientTempID   string    `gorm:"column:client_temp_id;not null;uniqueIndex"`
	CreatedAtNanos int64     `gorm:"column:created_at_ns;not null"`
	IdempotencyKey string    `gorm:"column:idempotency_key;not null;uniqueIndex"`
	Payload        []byte    `gorm:"column:payload;not null"`
	EnqueuedAt     time.Time `gorm:"column:enqueued_at;autoCreateTime"`
}

func (QueuedSale) TableName() string { return "queued_sales" }
