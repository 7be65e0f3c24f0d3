package database

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEvent(messageID string) *SupplierMailEvent {
	return &SupplierMailEvent{
		Supplier:       "acme",
		MessageID:      messageID,
		ReceivedAt:     time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
		FromAddress:    "noreply@acme.example",
		Subject:        "Order #123456 shipped",
		OrderNumber:    "123456",
		Carrier:        "UPS",
		TrackingNumber: "1234567890",
		Preview:        "Order #123456 shipped | noreply@acme.example",
	}
}

func TestCreateMailEvent(t *testing.T) {
	db := setupTestDB(t)

	event := newTestEvent("<msg-1@acme>")
	created, err := db.MailEvents.Create(event)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, event.ID)
	assert.False(t, event.Matched())
}

func TestCreateMailEventIdempotent(t *testing.T) {
	db := setupTestDB(t)

	first := newTestEvent("<msg-1@acme>")
	created, err := db.MailEvents.Create(first)
	require.NoError(t, err)
	require.True(t, created)

	// Second insert with the same message id must not create a new row and
	// must hand back the original event.
	duplicate := newTestEvent("<msg-1@acme>")
	duplicate.Subject = "re-delivered copy"
	created, err = db.MailEvents.Create(duplicate)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, duplicate.ID)
	assert.Equal(t, "Order #123456 shipped", duplicate.Subject)
}

func TestGetByMessageID(t *testing.T) {
	db := setupTestDB(t)

	event := newTestEvent("<msg-1@acme>")
	_, err := db.MailEvents.Create(event)
	require.NoError(t, err)

	loaded, err := db.MailEvents.GetByMessageID("<msg-1@acme>")
	require.NoError(t, err)
	assert.Equal(t, event.ID, loaded.ID)
	assert.Equal(t, "123456", loaded.OrderNumber)

	_, err = db.MailEvents.GetByMessageID("<unknown@acme>")
	assert.Equal(t, sql.ErrNoRows, err)
}

func TestAttachMatch(t *testing.T) {
	db := setupTestDB(t)

	order := &SupplierOrder{RetailOrderID: 7, Supplier: "acme"}
	require.NoError(t, db.SupplierOrders.Create(order))

	event := newTestEvent("<msg-1@acme>")
	_, err := db.MailEvents.Create(event)
	require.NoError(t, err)

	require.NoError(t, db.MailEvents.AttachMatch(event.ID, order.ID, order.RetailOrderID))

	loaded, err := db.MailEvents.GetByMessageID(event.MessageID)
	require.NoError(t, err)
	require.True(t, loaded.Matched())
	assert.Equal(t, order.ID, *loaded.SupplierOrderID)
	assert.Equal(t, 7, *loaded.RetailOrderID)
}

func TestAttachMatchMissingEvent(t *testing.T) {
	db := setupTestDB(t)

	err := db.MailEvents.AttachMatch(9999, 1, 1)
	assert.Equal(t, sql.ErrNoRows, err)
}

func TestGetRecent(t *testing.T) {
	db := setupTestDB(t)

	order := &SupplierOrder{RetailOrderID: 1, Supplier: "acme"}
	require.NoError(t, db.SupplierOrders.Create(order))

	for i := 0; i < 5; i++ {
		event := newTestEvent(fmt.Sprintf("<msg-%d@acme>", i))
		event.ReceivedAt = time.Date(2026, 3, 10+i, 8, 0, 0, 0, time.UTC)
		_, err := db.MailEvents.Create(event)
		require.NoError(t, err)

		if i == 0 {
			require.NoError(t, db.MailEvents.AttachMatch(event.ID, order.ID, order.RetailOrderID))
		}
	}

	all, err := db.MailEvents.GetRecent(3, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "<msg-4@acme>", all[0].MessageID)

	unmatched, err := db.MailEvents.GetRecent(10, true)
	require.NoError(t, err)
	require.Len(t, unmatched, 4)
	for _, event := range unmatched {
		assert.False(t, event.Matched())
	}
}

func TestGetUnmatchedSince(t *testing.T) {
	db := setupTestDB(t)

	old := newTestEvent("<old@acme>")
	old.ReceivedAt = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	_, err := db.MailEvents.Create(old)
	require.NoError(t, err)

	recent := newTestEvent("<recent@acme>")
	recent.ReceivedAt = time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)
	_, err = db.MailEvents.Create(recent)
	require.NoError(t, err)

	events, err := db.MailEvents.GetUnmatchedSince("acme", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "<recent@acme>", events[0].MessageID)
}
