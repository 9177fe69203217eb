package history

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/dirdaemon/jobqueue/dird"
	"github.com/dirdaemon/jobqueue/history/internal"
)

const schema = `CREATE TABLE IF NOT EXISTS job_history (
	job_id                  INTEGER PRIMARY KEY,
	type                    TEXT NOT NULL,
	level                   INTEGER NOT NULL,
	priority                INTEGER NOT NULL,
	status                  TEXT NOT NULL,
	client                  TEXT NOT NULL DEFAULT '',
	scheduled_time          DATETIME,
	initial_scheduled_time  DATETIME,
	bytes_written           INTEGER NOT NULL DEFAULT 0,
	reschedule_count        INTEGER NOT NULL DEFAULT 0,
	recorded_at             DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_job_history_type ON job_history (type);
CREATE INDEX IF NOT EXISTS ix_job_history_status ON job_history (status);
CREATE INDEX IF NOT EXISTS ix_job_history_client ON job_history (client);
CREATE INDEX IF NOT EXISTS ix_job_history_recorded_at ON job_history (recorded_at);`

// Entry is a point-in-time snapshot of a terminal JobRecord, as returned by
// Query.
type Entry struct {
	JobId                int64
	Type                 string
	Level                int
	Priority             int
	Status               string
	Client               string
	ScheduledTime        time.Time
	InitialScheduledTime time.Time
	BytesWritten         int64
	RescheduleCount      int
	RecordedAt           time.Time
}

// Query filters a call to Store.Query. Zero-valued fields are not applied
// as filters.
type Query struct {
	Type   string
	Status string
	Client string
	Since  time.Time
	Until  time.Time
	Limit  int
}

// Option configures a Store at Open time.
type Option func(*Store)

// WithLogger overrides the default stdlib-backed logger used to report
// best-effort write failures (never fatal; see package doc).
func WithLogger(logger dird.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithQueueDepth overrides the size of the internal write buffer. Once
// full, Record drops the new entry and logs, rather than blocking the
// caller.
func WithQueueDepth(n int) Option {
	return func(s *Store) { s.queueDepth = n }
}

// Store is the history index described in the package doc. It implements
// dird's historySink interface (Record(*dird.JobRecord)) structurally, so a
// dird.JobQueue can be wired to it via dird.WithHistory without either
// package importing the other's internals.
type Store struct {
	db         *sql.DB
	logger     dird.Logger
	queueDepth int

	writes chan *dird.JobRecord
	done   chan struct{}
}

// Open creates the schema (if needed) on a sqlite connection at dsn
// (":memory:" is the expected default for a reporting index with no
// durability requirement) and starts the background writer.
func Open(dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{
		db:         db,
		logger:     dird.DefaultLogger(),
		queueDepth: 256,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.writes = make(chan *dird.JobRecord, s.queueDepth)
	s.done = make(chan struct{})
	go s.run()
	return s, nil
}

// Close stops the background writer and closes the sqlite connection,
// after draining whatever writes are already buffered.
func (s *Store) Close() error {
	close(s.writes)
	<-s.done
	return s.db.Close()
}

// Record enqueues r for indexing. It never blocks: if the internal buffer
// is full the entry is dropped and logged, so the dispatch loop that
// calls it never stalls on a history write.
func (s *Store) Record(r *dird.JobRecord) {
	select {
	case s.writes <- r:
	default:
		s.logger.Printf("history: write buffer full, dropping job %d", r.JobId)
	}
}

func (s *Store) run() {
	defer close(s.done)
	for r := range s.writes {
		if err := s.insert(r); err != nil {
			s.logger.Printf("history: failed to index job %d: %v", r.JobId, err)
		}
	}
}

func (s *Store) insert(r *dird.JobRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var clientName string
	if r.Client != nil {
		clientName = r.Client.Name
	}

	return internal.RunWithRetry(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO job_history
				(job_id, type, level, priority, status, client, scheduled_time,
				 initial_scheduled_time, bytes_written, reschedule_count, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(job_id) DO UPDATE SET
				status=excluded.status, bytes_written=excluded.bytes_written,
				reschedule_count=excluded.reschedule_count, recorded_at=excluded.recorded_at`,
			r.JobId, r.Type.String(), int(r.Level), r.Priority, r.Status().String(), clientName,
			r.ScheduledTime, r.InitialScheduledTime, r.BytesWritten, r.RescheduleCount, time.Now())
		return err
	}, internal.IsLocked)
}

// Query returns entries matching q, most recently recorded first.
func (s *Store) Query(q Query) ([]Entry, error) {
	builder := sq.Select(
		"job_id", "type", "level", "priority", "status", "client",
		"scheduled_time", "initial_scheduled_time", "bytes_written",
		"reschedule_count", "recorded_at",
	).From("job_history").OrderBy("recorded_at DESC")

	if q.Type != "" {
		builder = builder.Where(sq.Eq{"type": q.Type})
	}
	if q.Status != "" {
		builder = builder.Where(sq.Eq{"status": q.Status})
	}
	if q.Client != "" {
		builder = builder.Where(sq.Eq{"client": q.Client})
	}
	if !q.Since.IsZero() {
		builder = builder.Where(sq.GtOrEq{"recorded_at": q.Since})
	}
	if !q.Until.IsZero() {
		builder = builder.Where(sq.LtOrEq{"recorded_at": q.Until})
	}
	if q.Limit > 0 {
		builder = builder.Limit(uint64(q.Limit))
	}

	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var level, priority, rescheduleCount int
		var bytesWritten int64
		if err := rows.Scan(&e.JobId, &e.Type, &level, &priority, &e.Status, &e.Client,
			&e.ScheduledTime, &e.InitialScheduledTime, &bytesWritten, &rescheduleCount, &e.RecordedAt); err != nil {
			return nil, err
		}
		e.Level = level
		e.Priority = priority
		e.BytesWritten = bytesWritten
		e.RescheduleCount = rescheduleCount
		out = append(out, e)
	}
	return out, rows.Err()
}
