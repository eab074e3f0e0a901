package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/keyshop-backend/pkg/db/models"
	"github.com/angelmondragon/keyshop-backend/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:outbox_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}); err != nil {
		t.Fatalf("migrate outbox: %v", err)
	}
	return db
}

type orderPing struct {
	OrderCode string `json:"order_code"`
}

func TestEmitWritesEnvelope(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)
	aggregateID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   aggregateID,
			Actor:         SystemActor("intake"),
			Data:          orderPing{OrderCode: "KS42"},
		})
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, db.First(&row, "aggregate_id = ?", aggregateID).Error)
	assert.Equal(t, enums.EventOrderCreated, row.EventType)
	assert.Nil(t, row.PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, ActorSystem, envelope.Actor.Kind)
	assert.JSONEq(t, `{"order_code":"KS42"}`, string(envelope.Data))
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	if err := svc.Emit(context.Background(), nil, DomainEvent{}); err == nil {
		t.Fatal("expected error without tx")
	}
}

func TestEmitBatchUsesFixedClock(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	orderID := uuid.New()

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx,
			DomainEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: orderID, Data: orderPing{OrderCode: "KS1"}},
			DomainEvent{EventType: enums.EventOrderExpired, AggregateType: enums.AggregateOrder, AggregateID: orderID, Data: orderPing{OrderCode: "KS1"}, Version: 3},
		)
	}))

	rows, err := NewRepository(db).ListByAggregate(context.Background(), orderID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	versions := map[enums.OutboxEventType]int{}
	for _, row := range rows {
		var env PayloadEnvelope
		require.NoError(t, json.Unmarshal(row.Payload, &env))
		assert.True(t, env.OccurredAt.Equal(fixed))
		versions[row.EventType] = env.Version
	}
	assert.Equal(t, 1, versions[enums.EventOrderCreated])
	assert.Equal(t, 3, versions[enums.EventOrderExpired])
}

func TestEmitRejectsUnmarshalableData(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)
	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          make(chan int),
		})
	})
	require.Error(t, err)
}

func TestEmitRolledBackWithTransaction(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderExpired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          orderPing{OrderCode: "KS1"},
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitOnceSkipsDuplicates(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)
	event := DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   uuid.New(),
		Data:          orderPing{OrderCode: "KS7"},
	}

	for i := 0; i < 2; i++ {
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			return svc.EmitOnce(context.Background(), tx, event)
		}))
	}

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	due := models.OutboxEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	later := time.Now().UTC().Add(time.Hour)
	deferred := models.OutboxEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), NextAttemptAt: &later}
	exhausted := models.OutboxEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), AttemptCount: 5}
	for _, row := range []*models.OutboxEvent{&due, &deferred, &exhausted} {
		require.NoError(t, db.Create(row).Error)
	}

	rows, err := repo.FetchUnpublishedForPublish(db, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, due.ID, rows[0].ID)

	require.NoError(t, repo.MarkFailedTx(db, due.ID, errors.New("broker down"), time.Now().UTC().Add(time.Minute)))
	rows, err = repo.FetchUnpublishedForPublish(db, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, rows)

	var failed models.OutboxEvent
	require.NoError(t, db.First(&failed, "id = ?", due.ID).Error)
	assert.Equal(t, 1, failed.AttemptCount)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "broker down", *failed.LastError)

	require.NoError(t, repo.MarkPublishedTx(db, deferred.ID))
	old := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("id = ?", deferred.ID).Update("published_at", old).Error)

	deleted, err := repo.DeletePublishedBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	exists, err := repo.Exists(ctx, enums.EventOrderCreated, enums.AggregateOrder, deferred.AggregateID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDLQRepositoryTruncatesMessage(t *testing.T) {
	db := newTestDB(t)
	dlq := NewDLQRepository(db)
	msg := strings.Repeat("x", 3000)
	eventID := uuid.New()

	require.NoError(t, dlq.InsertTx(db, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventOrderFulfilled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
		ErrorMessage:  &msg,
	}))

	row, err := dlq.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Len(t, *row.ErrorMessage, maxDLQErrorLen)
}

func TestDLQRequeueRestoresEvent(t *testing.T) {
	db := newTestDB(t)
	dlq := NewDLQRepository(db)
	ctx := context.Background()
	eventID := uuid.New()
	aggregateID := uuid.New()

	require.NoError(t, dlq.InsertTx(db, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventOrderExpired,
		AggregateType: enums.AggregateOrder,
		AggregateID:   aggregateID,
		Payload:       json.RawMessage(`{"event_id":"abc"}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		AttemptCount:  8,
	}))
	require.NoError(t, dlq.InsertTx(db, models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
	}))

	rows, err := dlq.List(ctx, DLQFilter{Reason: enums.OutboxDLQReasonMaxAttempts})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, eventID, rows[0].EventID)

	requeued, err := dlq.Requeue(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, aggregateID, requeued.AggregateID)
	assert.Zero(t, requeued.AttemptCount)
	assert.JSONEq(t, `{"event_id":"abc"}`, string(requeued.Payload))

	gone, err := dlq.FindByEventID(ctx, eventID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	_, err = dlq.Requeue(ctx, eventID)
	assert.ErrorIs(t, err, ErrDLQEntryNotFound)
}

func TestTruncateDLQErrorKeepsRunesWhole(t *testing.T) {
	msg := strings.Repeat("a", maxDLQErrorLen-1) + "é"
	got := truncateDLQError(msg)
	assert.Len(t, got, maxDLQErrorLen-1)
}
