package outbox

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	"github.com/angelmondragon/stocksync-backend/pkg/enums"
)

func deadSyncJob(eventID uuid.UUID, reason enums.OutboxDLQErrorReason, msg string) models.OutboxDLQ {
	return models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventSyncJobDead,
		AggregateType: enums.AggregateSyncJob,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  5,
	}
}

func TestDLQInsertIgnoresDuplicateEvent(t *testing.T) {
	db := newTestDB(t)
	dlq := NewDLQRepository(db)
	eventID := uuid.New()

	require.NoError(t, dlq.InsertTx(db, deadSyncJob(eventID, enums.OutboxDLQReasonMaxAttempts, "first")))
	require.NoError(t, dlq.InsertTx(db, deadSyncJob(eventID, enums.OutboxDLQReasonNonRetryable, "second")))

	var rows []models.OutboxDLQ
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "first", *rows[0].ErrorMessage)
}

func TestDLQInsertClipsLongMessages(t *testing.T) {
	db := newTestDB(t)
	dlq := NewDLQRepository(db)
	// 3-byte runes straddle the limit
	msg := strings.Repeat("€", maxDLQErrorLen)

	require.NoError(t, dlq.InsertTx(db, deadSyncJob(uuid.New(), enums.OutboxDLQReasonMaxAttempts, msg)))

	var row models.OutboxDLQ
	require.NoError(t, db.First(&row).Error)
	require.NotNil(t, row.ErrorMessage)
	assert.LessOrEqual(t, len(*row.ErrorMessage), maxDLQErrorLen)
	assert.True(t, utf8.ValidString(*row.ErrorMessage))
}

func TestDLQDeleteBeforeAndCountByReason(t *testing.T) {
	db := newTestDB(t)
	dlq := NewDLQRepository(db)
	ctx := context.Background()

	require.NoError(t, dlq.InsertTx(db, deadSyncJob(uuid.New(), enums.OutboxDLQReasonMaxAttempts, "a")))
	require.NoError(t, dlq.InsertTx(db, deadSyncJob(uuid.New(), enums.OutboxDLQReasonMaxAttempts, "b")))
	require.NoError(t, dlq.InsertTx(db, deadSyncJob(uuid.New(), enums.OutboxDLQReasonUnknownType, "c")))

	old := time.Now().UTC().Add(-100 * 24 * time.Hour)
	require.NoError(t, db.Model(&models.OutboxDLQ{}).
		Where("error_reason = ?", enums.OutboxDLQReasonUnknownType).
		Update("failed_at", old).Error)

	counts, err := dlq.CountByReason(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[enums.OutboxDLQReasonMaxAttempts])
	assert.Equal(t, int64(1), counts[enums.OutboxDLQReasonUnknownType])

	deleted, err := dlq.DeleteBefore(ctx, nil, time.Now().UTC().Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	counts, err = dlq.CountByReason(ctx)
	require.NoError(t, err)
	assert.NotContains(t, counts, enums.OutboxDLQReasonUnknownType)
}
