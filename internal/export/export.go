// Package export holds the two persistent, append-only sinks: the completed
// ticket sheet and the action audit log. Both are strictly downstream of
// committed domain transitions; a failed write never rolls anything back.
package export

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/google/uuid"
)

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS completed_tickets (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  created_at TEXT NOT NULL,
  accepted_at TEXT NOT NULL,
  completed_at TEXT NOT NULL,
  serial TEXT NOT NULL,
  problem TEXT NOT NULL,
  phone TEXT NOT NULL,
  plate TEXT NOT NULL,
  garage TEXT NOT NULL,
  technician TEXT NOT NULL,
  outcome TEXT NOT NULL,
  solution TEXT NOT NULL,
  photo_ref TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_completed_created_at ON completed_tickets(created_at);

CREATE TABLE IF NOT EXISTS actions (
  id TEXT PRIMARY KEY,
  ts TEXT NOT NULL,
  user_id INTEGER NOT NULL,
  action TEXT NOT NULL,
  details TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_actions_ts ON actions(ts);
`)
	return err
}

// Record is the ordered row appended once per completed ticket: created
// date/time, accepted time (may be empty), completed time, the five ticket
// fields, technician display name, outcome, solution and photo reference.
type Record struct {
	CreatedAt   time.Time
	AcceptedAt  *time.Time
	CompletedAt time.Time
	Serial      string
	Problem     string
	Phone       string
	Plate       string
	Garage      string
	Technician  string
	Outcome     string
	Solution    string
	PhotoRef    string
}

type Sheet struct {
	db *sql.DB
}

func NewSheet(db *sql.DB) *Sheet {
	return &Sheet{db: db}
}

func (s *Sheet) Append(ctx context.Context, rec Record) error {
	accepted := ""
	if rec.AcceptedAt != nil {
		accepted = rec.AcceptedAt.UTC().Format("15:04:05")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO completed_tickets(created_at, accepted_at, completed_at, serial, problem, phone, plate, garage, technician, outcome, solution, photo_ref)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		accepted,
		rec.CompletedAt.UTC().Format("15:04:05"),
		rec.Serial, rec.Problem, rec.Phone, rec.Plate, rec.Garage,
		rec.Technician, rec.Outcome, rec.Solution, rec.PhotoRef,
	)
	return err
}

// Audit appends action records fire-and-forget; failures are logged only.
type Audit struct {
	logger *log.Logger
	db     *sql.DB
	now    func() time.Time
}

func NewAudit(logger *log.Logger, db *sql.DB) *Audit {
	return &Audit{logger: logger, db: db, now: time.Now}
}

func (a *Audit) Record(ctx context.Context, userID int64, action, details string) {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO actions(id, ts, user_id, action, details) VALUES(?,?,?,?,?)`,
		uuid.NewString(),
		a.now().UTC().Format(time.RFC3339Nano),
		userID, action, details,
	)
	if err != nil {
		a.logger.Printf("audit %s by %d: %v", action, userID, err)
	}
}
