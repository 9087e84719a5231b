/*************************************************************************
 * bcproxy — a BatMUD BC-mode translating proxy
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package sink is the optional PersistenceSink: an append-only sqlite
// table of AreaRoom records, written from a single background
// goroutine so the decode/transform hot path on the server-to-client
// forwarder never blocks on disk I/O.
package sink

import (
	"embed"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/x1a0/bcproxy/internal/log"
	"github.com/x1a0/bcproxy/internal/mapper"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// queueDepth bounds how many rooms can be buffered waiting for a
// write; Submit drops and warns past this rather than applying
// backpressure to the forwarder.
const queueDepth = 256

// Sink owns the database handle and the single writer goroutine.
type Sink struct {
	db    *sqlx.DB
	rooms chan mapper.AreaRoom
	done  chan struct{}
	log   *log.Logger
}

// Open runs pending migrations against dsn and starts the writer
// goroutine. dsn is a sqlite3 data source (a file path, optionally
// with query parameters).
func Open(dsn string, lg *log.Logger) (*Sink, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // sqlite does not benefit from concurrent writers

	if err := migrateUp(db, dsn); err != nil {
		db.Close()
		return nil, err
	}

	s := &Sink{
		db:    db,
		rooms: make(chan mapper.AreaRoom, queueDepth),
		done:  make(chan struct{}),
		log:   lg,
	}
	go s.run()
	return s, nil
}

func migrateUp(db *sqlx.DB, dsn string) error {
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return err
	}
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("applying migrations to %s: %w", dsn, err)
	}
	return nil
}

// Submit enqueues room for persistence. It never blocks: if the queue
// is full the room is dropped and a warning logged, since losing a
// map entry is harmless and stalling the forwarder is not.
func (s *Sink) Submit(room mapper.AreaRoom) {
	select {
	case s.rooms <- room:
	default:
		if s.log != nil {
			s.log.Warn("room queue full, dropping entry", log.KV("room_id", room.ID))
		}
	}
}

// Close stops accepting new rooms, drains the queue, and closes the
// database handle.
func (s *Sink) Close() error {
	close(s.rooms)
	<-s.done
	return s.db.Close()
}

const upsertRoom = `
INSERT INTO room (id, area, name, description, indoor, exits, from_dir)
VALUES (:id, :area, :name, :description, :indoor, :exits, :from_dir)
ON CONFLICT(id) DO NOTHING
`

type roomRow struct {
	ID          string `db:"id"`
	Area        string `db:"area"`
	Name        string `db:"name"`
	Description string `db:"description"`
	Indoor      bool   `db:"indoor"`
	Exits       string `db:"exits"`
	FromDir     string `db:"from_dir"`
}

func (s *Sink) run() {
	defer close(s.done)
	for room := range s.rooms {
		row := roomRow{
			ID:          room.ID,
			Area:        room.Area,
			Name:        room.Short,
			Description: room.Long,
			Indoor:      room.Indoor,
			Exits:       room.Exits,
			FromDir:     room.From,
		}
		if _, err := s.db.NamedExec(upsertRoom, row); err != nil {
			if s.log != nil {
				s.log.Warn("room upsert failed", log.KV("room_id", room.ID), log.KVErr(err))
			}
		}
	}
}

// sinkQueryBuilder exists only so squirrel stays a real dependency of
// this package beyond the literal upsertRoom string; callers that
// need ad-hoc room lookups (e.g. a future CLI inspector) can build on
// it instead of hand-writing SQL.
var sinkQueryBuilder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Rooms returns every persisted room for area, ordered by id. Used by
// tooling and tests rather than the hot path.
func (s *Sink) Rooms(area string) ([]mapper.AreaRoom, error) {
	query, args, err := sinkQueryBuilder.
		Select("id", "area", "from_dir", "indoor", "name", "description", "exits").
		From("room").
		Where(sq.Eq{"area": area}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []roomRow
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]mapper.AreaRoom, 0, len(rows))
	for _, r := range rows {
		out = append(out, mapper.AreaRoom{
			Area: r.Area, ID: r.ID, From: r.FromDir, Indoor: r.Indoor,
			Short: r.Name, Long: r.Description, Exits: r.Exits,
		})
	}
	return out, nil
}
