package stoptimes

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hsltracker-data/internal/common/db"
	"github.com/hsltracker-data/internal/common/logger"
	"github.com/hsltracker-data/internal/gtfs-static/parser"
	"github.com/hsltracker-data/pkg/gtfs/models"
)

// Store bulk-loads the stop_times table into Postgres and serves the keyed
// queries the rest of the system needs. stop_times is the one static table
// too large to hold in memory alongside everything else.
type Store struct {
	db        *db.DB
	logger    logger.Logger
	batchSize int
}

func New(database *db.DB, log logger.Logger) *Store {
	return &Store{
		db:        database,
		logger:    log,
		batchSize: 1000,
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.DB().ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS stop_times (
			trip_id TEXT NOT NULL,
			arrival_time TEXT NOT NULL,
			departure_time TEXT NOT NULL,
			stop_id TEXT NOT NULL,
			stop_sequence INTEGER NOT NULL,
			pickup_type INTEGER,
			drop_off_type INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_stop_times_trip ON stop_times (trip_id);
		CREATE INDEX IF NOT EXISTS idx_stop_times_stop ON stop_times (stop_id, departure_time);
	`)
	if err != nil {
		return fmt.Errorf("creating stop_times schema: %w", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM stop_times`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting stop_times: %w", err)
	}
	return count, nil
}

// Load streams stop_times.txt from dir into Postgres in batched inserts
// inside one transaction. Already-populated tables are left alone.
func (s *Store) Load(ctx context.Context, dir string, p *parser.Parser) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}

	count, err := s.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		s.logger.Info("stop_times already loaded", "rows", count)
		return nil
	}

	s.logger.Info("Loading stop_times into database")

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	batch := newBatchInserter(tx, s.batchSize)
	inserted := 0

	callbacks := parser.ParseCallbacks{
		OnStopTime: func(st *models.StopTime) error {
			if err := batch.Add(
				st.TripID,
				st.ArrivalTime,
				st.DepartureTime,
				st.StopID,
				st.StopSequence,
				st.PickupType,
				st.DropOffType,
			); err != nil {
				return err
			}
			inserted++
			if inserted%100000 == 0 {
				s.logger.Info("Loading stop_times", "rows", inserted)
			}
			return nil
		},
	}

	if err := p.ParseDir(ctx, dir, callbacks); err != nil {
		return fmt.Errorf("loading stop_times: %w", err)
	}

	if err := batch.Flush(); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing stop_times load: %w", err)
	}

	s.logger.Info("Loaded stop_times into database", "rows", inserted)
	return nil
}

// StopTimesForTrip returns the trip's stop times ordered by stop sequence.
func (s *Store) StopTimesForTrip(ctx context.Context, tripID string) ([]models.StopTime, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT trip_id, arrival_time, departure_time, stop_id, stop_sequence, pickup_type, drop_off_type
		FROM stop_times
		WHERE trip_id = $1
		ORDER BY stop_sequence
	`, tripID)
	if err != nil {
		return nil, fmt.Errorf("querying stop_times for trip: %w", err)
	}
	defer rows.Close()
	return scanStopTimes(rows)
}

// DeparturesAfter returns the stop's departures at or after minDeparture
// (HH:MM:SS), ordered ascending by departure time.
func (s *Store) DeparturesAfter(ctx context.Context, stopID, minDeparture string) ([]models.StopTime, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT trip_id, arrival_time, departure_time, stop_id, stop_sequence, pickup_type, drop_off_type
		FROM stop_times
		WHERE stop_id = $1 AND departure_time >= $2
		ORDER BY departure_time
	`, stopID, minDeparture)
	if err != nil {
		return nil, fmt.Errorf("querying departures for stop: %w", err)
	}
	defer rows.Close()
	return scanStopTimes(rows)
}

func scanStopTimes(rows *sql.Rows) ([]models.StopTime, error) {
	var out []models.StopTime
	for rows.Next() {
		var st models.StopTime
		var pickup, dropOff sql.NullInt64
		if err := rows.Scan(&st.TripID, &st.ArrivalTime, &st.DepartureTime, &st.StopID, &st.StopSequence, &pickup, &dropOff); err != nil {
			return nil, fmt.Errorf("scanning stop_time: %w", err)
		}
		st.PickupType = int(pickup.Int64)
		st.DropOffType = int(dropOff.Int64)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stop_times: %w", err)
	}
	return out, nil
}

var stopTimeColumns = []string{
	"trip_id", "arrival_time", "departure_time", "stop_id", "stop_sequence", "pickup_type", "drop_off_type",
}

type batchInserter struct {
	tx         *sql.Tx
	batchSize  int
	fieldCount int
	values     []interface{}
	valueCount int
}

func newBatchInserter(tx *sql.Tx, batchSize int) *batchInserter {
	return &batchInserter{
		tx:         tx,
		batchSize:  batchSize,
		fieldCount: len(stopTimeColumns),
	}
}

func (b *batchInserter) Add(args ...interface{}) error {
	if len(args) != b.fieldCount {
		return fmt.Errorf("expected %d values, got %d", b.fieldCount, len(args))
	}

	b.values = append(b.values, args...)
	b.valueCount++

	if b.valueCount >= b.batchSize {
		return b.Flush()
	}
	return nil
}

func (b *batchInserter) Flush() error {
	if b.valueCount == 0 {
		return nil
	}

	_, err := b.tx.Exec(b.buildInsertQuery(), b.values...)
	if err != nil {
		return fmt.Errorf("executing batch insert: %w", err)
	}

	b.values = b.values[:0]
	b.valueCount = 0
	return nil
}

func (b *batchInserter) buildInsertQuery() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("INSERT INTO stop_times (%s) VALUES ",
		strings.Join(stopTimeColumns, ", ")))

	for i := 0; i < b.valueCount; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := 0; j < b.fieldCount; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("$%d", i*b.fieldCount+j+1))
		}
		sb.WriteString(")")
	}

	return sb.String()
}
