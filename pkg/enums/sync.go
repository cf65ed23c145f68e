package enums

// SyncState is the observable state of the sale sync scheduler.
type SyncState string

const (
	SyncStateIdle            SyncState = "idle"
	SyncStateDraining        SyncState = "draining"
	SyncStateSucceeded       SyncState = "succeeded"
	SyncStateFailedRetryable SyncState = "failed_retryable"
	SyncStateFailedPermanent SyncState = "failed_permanent"
)

func (s SyncState) String() string {
	return string(s)
}

// SyncTrigger records what woke the scheduler.
type SyncTrigger string

const (
	SyncTriggerTick      SyncTrigger = "tick"
	SyncTriggerReconnect SyncTrigger = "reconnect"
	SyncTriggerManual    SyncTrigger = "manual"
	SyncTriggerFollowUp  SyncTrigger = "follow_up"
)

// SubmissionMode tells the caller whether a sale reached the Sales API or was
// queued locally.
type SubmissionMode string

const (
	SubmissionModeOnline SubmissionMode = "online"
	SubmissionModeQueued SubmissionMode = "queued"
)

// AttentionReason explains why a queued sale was pulled out of automatic retry.
type AttentionReason string

const (
	AttentionReasonRejected       AttentionReason = "rejected"
	AttentionReasonDirectRejected AttentionReason = "direct_rejected"
)

var validAttentionReasons = []AttentionReason{
	AttentionReasonRejected,
	AttentionReasonDirectRejected,
}

func (r AttentionReason) IsValid() bool {
	for _, candidate := range validAttentionReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
