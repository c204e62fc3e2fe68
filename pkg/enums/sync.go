package enums

import "fmt"

// SyncAction is the outbound mutation a sync queue job performs on a channel.
type SyncAction string

const (
	SyncActionUpdateStock   SyncAction = "UPDATE_STOCK"
	SyncActionUpdatePrice   SyncAction = "UPDATE_PRICE"
	SyncActionCreateListing SyncAction = "CREATE_LISTING"
	SyncActionDeleteListing SyncAction = "DELETE_LISTING"
)

var validSyncActions = []SyncAction{
	SyncActionUpdateStock,
	SyncActionUpdatePrice,
	SyncActionCreateListing,
	SyncActionDeleteListing,
}

func (a SyncAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known SyncAction.
func (a SyncAction) IsValid() bool {
	for _, candidate := range validSyncActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseSyncAction converts raw input into a SyncAction.
func ParseSyncAction(value string) (SyncAction, error) {
	for _, candidate := range validSyncActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync action %q", value)
}

// SyncStatus tracks a sync queue job.
type SyncStatus string

const (
	SyncStatusPending    SyncStatus = "PENDING"
	SyncStatusProcessing SyncStatus = "PROCESSING"
	SyncStatusCompleted  SyncStatus = "COMPLETED"
	SyncStatusFailed     SyncStatus = "FAILED"
)

var validSyncStatuses = []SyncStatus{
	SyncStatusPending,
	SyncStatusProcessing,
	SyncStatusCompleted,
	SyncStatusFailed,
}

func (s SyncStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SyncStatus.
func (s SyncStatus) IsValid() bool {
	for _, candidate := range validSyncStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

