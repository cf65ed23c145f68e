package models

import (
	"time"

	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
)

// SyncAttention flags a queued sale the Sales API permanently rejected. The
// flagged sale stays in queued_sales until an operator releases or resolves it.
type SyncAttention struct {
	ClientTempID string                `gorm:"column:client_temp_id;primaryKey"`
	Reason       enums.AttentionReason `gorm:"column:reason;not null"`
	StatusCode   int                   `gorm:"column:status_code;not null;default:0"`
	Message      *string               `gorm:"column:message"`
	FlaggedAt    time.Time             `gorm:"column:flagged_at;autoCreateTime"`
}

func (SyncAttention) TableName() string { return "sync_attention" }
