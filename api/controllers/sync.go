package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-pos/api/responses"
	"github.com/angelmondragon/packfinderz-pos/api/validators"
	"github.com/angelmondragon/packfinderz-pos/internal/queue"
	"github.com/angelmondragon/packfinderz-pos/internal/salesync"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
)

type syncStatusReader interface {
	Status(ctx context.Context) (salesync.Status, error)
}

type syncTrigger interface {
	Trigger(trigger enums.SyncTrigger)
}

type attentionQueue interface {
	Attention(ctx context.Context) ([]queue.AttentionEntry, error)
	Release(ctx context.Context, id uuid.UUID) error
}

const (
	defaultAttentionLimit = 50
	maxAttentionLimit     = 500
)

// SyncStatus feeds the register's sync indicator.
func SyncStatus(svc syncStatusReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := svc.Status(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

// SyncAttentionList lists sales the Sales API rejected and that wait on an
// operator, oldest flag first.
func SyncAttentionList(q attentionQueue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", defaultAttentionLimit, 1, maxAttentionLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := q.Attention(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if len(entries) > limit {
			entries = entries[:limit]
		}
		if entries == nil {
			entries = []queue.AttentionEntry{}
		}
		responses.WriteSuccess(w, entries)
	}
}

// SyncAttentionRetry puts a flagged sale back into automatic retry under its
// original idempotency key and wakes the scheduler.
func SyncAttentionRetry(q attentionQueue, trigger syncTrigger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "clientTempId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithSaleID(ctx, id.String())
		}
		if err := q.Release(ctx, id); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(ctx, "sync.attention_released")
		}
		trigger.Trigger(enums.SyncTriggerManual)
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"clientTempId": id.String(), "status": "released"})
	}
}

// SyncTrigger asks for an immediate drain. It returns before the drain runs.
func SyncTrigger(trigger syncTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trigger.Trigger(enums.SyncTriggerManual)
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": "triggered"})
	}
}
