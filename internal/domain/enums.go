package domain

// JobType tags the kind of background work a job performs
type JobType string

const (
	JobTypeFullSync        JobType = "full_sync"
	JobTypeBulkSync        JobType = "bulk_sync"
	JobTypeIncrementalSync JobType = "incremental_sync"
	JobTypeProductSync     JobType = "product_sync"
	JobTypeInventorySync   JobType = "inventory_sync"
)

// IsValid checks if the job type is one of the known sync kinds
func (t JobType) IsValid() bool {
	switch t {
	case JobTypeFullSync,
		JobTypeBulkSync,
		JobTypeIncrementalSync,
		JobTypeProductSync,
		JobTypeInventorySync:
		return true
	default:
		return false
	}
}

// JobStatus represents where a job is in its lifecycle
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are expected
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo checks if a status transition is valid.
// running -> pending is the queue's retry path.
func (s JobStatus) CanTransitionTo(newStatus JobStatus) bool {
	switch s {
	case JobStatusPending:
		return newStatus == JobStatusRunning || newStatus == JobStatusFailed
	case JobStatusRunning:
		return newStatus == JobStatusCompleted ||
			newStatus == JobStatusFailed ||
			newStatus == JobStatusPending
	case JobStatusCompleted, JobStatusFailed:
		return false // Terminal states
	default:
		return false
	}
}

// SyncEventType is the kind of change a sync log entry records
type SyncEventType string

const (
	SyncEventProductUpdate   SyncEventType = "product_update"
	SyncEventInventoryUpdate SyncEventType = "inventory_update"
	SyncEventProductDelete   SyncEventType = "product_delete"
)

// SyncStatus is the outcome recorded on a sync log entry
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusError   SyncStatus = "error"
)

// IsValid checks if the sync status is valid
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusPending, SyncStatusSuccess, SyncStatusError:
		return true
	default:
		return false
	}
}
