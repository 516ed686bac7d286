package export

import (
	"context"
	"database/sql"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "export.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, InitSchema(db))
	return db
}

func TestSheetAppend(t *testing.T) {
	db := openTestDB(t)
	sheet := NewSheet(db)

	created := time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)
	accepted := created.Add(4 * time.Minute)
	completed := created.Add(50 * time.Minute)

	err := sheet.Append(context.Background(), Record{
		CreatedAt:   created,
		AcceptedAt:  &accepted,
		CompletedAt: completed,
		Serial:      "S1",
		Problem:     "brake",
		Phone:       "+1234",
		Plate:       "XY12",
		Garage:      "G1",
		Technician:  "Alice",
		Outcome:     "resolved",
		Solution:    "replaced pad",
		PhotoRef:    "photo-1",
	})
	require.NoError(t, err)

	var createdAt, acceptedAt, completedAt, serial, technician, outcome string
	err = db.QueryRow(`SELECT created_at, accepted_at, completed_at, serial, technician, outcome FROM completed_tickets`).
		Scan(&createdAt, &acceptedAt, &completedAt, &serial, &technician, &outcome)
	require.NoError(t, err)

	assert.Equal(t, "2025-03-10 08:30:00", createdAt)
	assert.Equal(t, "08:34:00", acceptedAt)
	assert.Equal(t, "09:20:00", completedAt)
	assert.Equal(t, "S1", serial)
	assert.Equal(t, "Alice", technician)
	assert.Equal(t, "resolved", outcome)
}

func TestSheetAppendWithoutAcceptedTime(t *testing.T) {
	db := openTestDB(t)
	sheet := NewSheet(db)

	err := sheet.Append(context.Background(), Record{
		CreatedAt:   time.Now(),
		CompletedAt: time.Now(),
		Serial:      "S2",
		Problem:     "wipers",
		Phone:       "+1",
		Plate:       "AB1",
		Garage:      "G2",
		Technician:  "Bob",
		Outcome:     "unresolved",
		Solution:    "n/a",
		PhotoRef:    "photo-2",
	})
	require.NoError(t, err)

	var acceptedAt string
	require.NoError(t, db.QueryRow(`SELECT accepted_at FROM completed_tickets`).Scan(&acceptedAt))
	assert.Equal(t, "", acceptedAt)
}

func TestAuditRecord(t *testing.T) {
	db := openTestDB(t)
	audit := NewAudit(log.New(io.Discard, "", 0), db)

	audit.Record(context.Background(), 20, "ticket_accepted", "ticket #7")
	audit.Record(context.Background(), 20, "ticket_completed", "ticket #7")

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM actions WHERE user_id=20`).Scan(&n))
	assert.Equal(t, 2, n)

	var id, action string
	require.NoError(t, db.QueryRow(`SELECT id, action FROM actions WHERE action='ticket_accepted'`).Scan(&id, &action))
	assert.NotEmpty(t, id)
}

func TestAuditFailureIsSwallowed(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Close())

	audit := NewAudit(log.New(io.Discard, "", 0), db)
	// must not panic or propagate
	audit.Record(context.Background(), 20, "ticket_accepted", "ticket #7")
}
