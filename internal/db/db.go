// Package db is the persistence adapter over two SQLite databases: a
// read-only games store and a read-write plays store, plus the singleton
// "currently playing" row. It mirrors the schema and queries of the
// original prototype's database layer, translated onto database/sql with
// the pure-Go ncruces/go-sqlite3 driver so the daemon carries no cgo
// dependency.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/kagehashi-labs/arcadewatchd/internal/domain"
	"github.com/kagehashi-labs/arcadewatchd/internal/errors"
	"github.com/kagehashi-labs/arcadewatchd/internal/logging"
	"github.com/kagehashi-labs/arcadewatchd/internal/workerpool"
)

// IntakeEvent mirrors the recovery classification in load_intake_backlog:
// one event per unacknowledged Play, shaped by which of end_time/intake_id
// are already set.
type IntakeEvent struct {
	Kind           IntakeEventKind
	PlayID         int64
	GameLabel      string
	Language       domain.Language
	StartTime      int64
	EndTime        int64
	IntakeID       string
}

// IntakeEventKind distinguishes the backlog event shapes.
type IntakeEventKind int

const (
	SubmitStarted IntakeEventKind = iota
	SubmitEnded
	SubmitFull
)

// DB is the persistence adapter. games is read-only; plays is read-write.
// Both are dispatched through pool so database latency never stalls the
// orchestrator's event loop.
type DB struct {
	games *sql.DB
	plays *sql.DB
	pool  *workerpool.Pool
	log   logging.Logger
}

// Open connects to both SQLite files. gamesPath is opened read-only;
// playsPath read-write. Both must already exist with the expected schema —
// this daemon does not create or migrate tables.
func Open(ctx context.Context, gamesPath, playsPath string, pool *workerpool.Pool) (*DB, error) {
	games, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", gamesPath))
	if err != nil {
		return nil, errors.NewFatalError("open games database", err)
	}
	if err := games.PingContext(ctx); err != nil {
		games.Close()
		return nil, errors.NewFatalError("connect to games database", err)
	}

	plays, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=rw", playsPath))
	if err != nil {
		games.Close()
		return nil, errors.NewFatalError("open plays database", err)
	}
	if err := plays.PingContext(ctx); err != nil {
		games.Close()
		plays.Close()
		return nil, errors.NewFatalError("connect to plays database", err)
	}

	return &DB{
		games: games,
		plays: plays,
		pool:  pool,
		log:   logging.Named("db"),
	}, nil
}

// Close releases both database handles.
func (d *DB) Close() error {
	err1 := d.games.Close()
	err2 := d.plays.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func nowUnix() int64 { return time.Now().Unix() }

// GameForPath looks up a Game by its canonical filesystem path. Returns
// errors.ErrNotFound if no row matches.
func (d *DB) GameForPath(ctx context.Context, path string) (domain.Game, error) {
	var game domain.Game
	err := d.pool.Do(ctx, func() error {
		row := d.games.QueryRowContext(ctx,
			`SELECT rowid, directory, language, label FROM games WHERE path = ?`, path)

		var lang string
		if err := row.Scan(&game.ID, &game.Directory, &lang, &game.Label); err != nil {
			if err == sql.ErrNoRows {
				return errors.ErrNotFound
			}
			return errors.NewDatabaseError("game_for_path query", err)
		}
		game.Path = path
		game.Language = parseLanguage(lang)
		return nil
	})
	return game, err
}

func parseLanguage(v string) domain.Language {
	switch v {
	case "en":
		return domain.Language{Known: domain.English}
	case "ja":
		return domain.Language{Known: domain.Japanese}
	case "can":
		return domain.Language{Known: domain.Cantonese}
	default:
		return domain.Language{Known: domain.OtherLanguage, Other: v}
	}
}

// StartedPlaying inserts a new Play row with start_time=now.
func (d *DB) StartedPlaying(ctx context.Context, game domain.Game) (domain.Play, error) {
	play := domain.Play{Game: game, StartTime: nowUnix()}
	err := d.pool.Do(ctx, func() error {
		res, err := d.plays.ExecContext(ctx,
			`INSERT INTO plays (game, start_time) VALUES (?, ?)`, game.Path, play.StartTime)
		if err != nil {
			return errors.NewDatabaseError("started_playing insert", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return errors.NewDatabaseError("started_playing last insert id", err)
		}
		play.ID = id
		return nil
	})
	return play, err
}

// FinishedPlaying sets end_time=now for play.ID and returns the updated Play.
func (d *DB) FinishedPlaying(ctx context.Context, play domain.Play) (domain.Play, error) {
	endTime := nowUnix()
	err := d.pool.Do(ctx, func() error {
		_, err := d.plays.ExecContext(ctx,
			`UPDATE plays SET end_time=? WHERE rowid=?`, endTime, play.ID)
		if err != nil {
			return errors.NewDatabaseError("finished_playing update", err)
		}
		return nil
	})
	if err != nil {
		return play, err
	}
	play.EndTime = &endTime
	return play, nil
}

// DetachSaveCurrentlyPlaying atomically replaces the "currently playing"
// singleton with either zero rows (playID == nil) or exactly one row
// referencing *playID, in a single transaction. It runs fire-and-forget on
// the worker pool; failures are reported to onError rather than returned
// synchronously, mirroring the original's detached-task behavior.
func (d *DB) DetachSaveCurrentlyPlaying(playID *int64, onError func(error)) {
	go func() {
		ctx := context.Background()
		err := d.pool.Do(ctx, func() error {
			tx, err := d.plays.BeginTx(ctx, nil)
			if err != nil {
				return err
			}
			defer tx.Rollback()

			if _, err := tx.ExecContext(ctx, `DELETE FROM current`); err != nil {
				return err
			}
			if playID != nil {
				if _, err := tx.ExecContext(ctx, `INSERT INTO current (play) VALUES (?)`, *playID); err != nil {
					return err
				}
			}
			return tx.Commit()
		})
		if err != nil {
			d.log.Error().Err(err).Msg("could not save currently playing")
			if onError != nil {
				onError(errors.NewDatabaseError("save currently playing", err))
			}
		}
	}()
}

// LoadPreviouslyPlaying returns the Play referenced by the singleton row,
// or (zero value, false) if none is set.
func (d *DB) LoadPreviouslyPlaying(ctx context.Context) (domain.Play, bool, error) {
	type row struct {
		rowid                                                int64
		gamePath                                              string
		startTime                                             int64
		endTime, submittedStart, submittedEnd                 sql.NullInt64
		intakeID                                               sql.NullString
		skipped                                                bool
	}
	var r row
	found := false

	err := d.pool.Do(ctx, func() error {
		q := `SELECT rowid, game, start_time, end_time, intake_id, submitted_start, submitted_end, skipped
		      FROM plays WHERE rowid = (SELECT play FROM current)`
		dbRow := d.plays.QueryRowContext(ctx, q)
		err := dbRow.Scan(&r.rowid, &r.gamePath, &r.startTime, &r.endTime, &r.intakeID, &r.submittedStart, &r.submittedEnd, &r.skipped)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return errors.NewDatabaseError("load_previously_playing query", err)
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return domain.Play{}, false, err
	}

	game, err := d.GameForPath(ctx, r.gamePath)
	if err != nil {
		return domain.Play{}, false, err
	}

	play := domain.Play{
		ID:        r.rowid,
		Game:      game,
		StartTime: r.startTime,
		Skipped:   r.skipped,
	}
	if r.endTime.Valid {
		v := r.endTime.Int64
		play.EndTime = &v
	}
	if r.intakeID.Valid {
		v := r.intakeID.String
		play.IntakeID = &v
	}
	if r.submittedStart.Valid {
		v := r.submittedStart.Int64
		play.SubmittedStart = &v
	}
	if r.submittedEnd.Valid {
		v := r.submittedEnd.Int64
		play.SubmittedEnd = &v
	}
	return play, true, nil
}

// LoadIntakeBacklog returns one submission event per Play where
// submitted_end IS NULL AND skipped = 0, classified per the (end_time,
// intake_id) table: a live session with an intake_id already assigned is
// omitted — it resumes through orchestrator startup state instead (see
// PreviousGame).
func (d *DB) LoadIntakeBacklog(ctx context.Context) ([]IntakeEvent, error) {
	type partial struct {
		rowid      int64
		gamePath   string
		startTime  int64
		endTime    sql.NullInt64
		intakeID   sql.NullString
	}

	var rows []partial
	err := d.pool.Do(ctx, func() error {
		q := `SELECT rowid, game, start_time, end_time, intake_id FROM plays WHERE submitted_end IS NULL AND skipped = 0`
		rs, err := d.plays.QueryContext(ctx, q)
		if err != nil {
			return errors.NewDatabaseError("load_intake_backlog query", err)
		}
		defer rs.Close()
		for rs.Next() {
			var p partial
			if err := rs.Scan(&p.rowid, &p.gamePath, &p.startTime, &p.endTime, &p.intakeID); err != nil {
				return errors.NewDatabaseError("load_intake_backlog scan", err)
			}
			rows = append(rows, p)
		}
		return rs.Err()
	})
	if err != nil || len(rows) == 0 {
		return nil, err
	}

	gameCache := map[string]domain.Game{}
	events := make([]IntakeEvent, 0, len(rows))

	for _, p := range rows {
		game, ok := gameCache[p.gamePath]
		if !ok {
			g, gerr := d.GameForPath(ctx, p.gamePath)
			if gerr != nil {
				d.log.Error().Err(gerr).Str(logging.FieldPath, p.gamePath).Msg("did not find mapping for game")
				continue
			}
			game = g
			gameCache[p.gamePath] = g
		}

		switch {
		case !p.endTime.Valid && p.intakeID.Valid:
			// live session with a remote rowid already; resumes via PreviousGame.
			continue
		case !p.endTime.Valid && !p.intakeID.Valid:
			events = append(events, IntakeEvent{
				Kind: SubmitStarted, PlayID: p.rowid, GameLabel: game.Label,
				Language: game.Language, StartTime: p.startTime,
			})
		case p.endTime.Valid && p.intakeID.Valid:
			events = append(events, IntakeEvent{
				Kind: SubmitEnded, PlayID: p.rowid, IntakeID: p.intakeID.String, EndTime: p.endTime.Int64,
			})
		case p.endTime.Valid && !p.intakeID.Valid:
			events = append(events, IntakeEvent{
				Kind: SubmitFull, PlayID: p.rowid, GameLabel: game.Label,
				Language: game.Language, StartTime: p.startTime, EndTime: p.endTime.Int64,
			})
		}
	}
	return events, nil
}

// InitialIntake records a play's remote rowid and start-submission time.
func (d *DB) InitialIntake(ctx context.Context, playID int64, intakeID string, submittedStart int64) error {
	return d.pool.Do(ctx, func() error {
		_, err := d.plays.ExecContext(ctx,
			`UPDATE plays SET intake_id=?, submitted_start=? WHERE rowid=?`, intakeID, submittedStart, playID)
		if err != nil {
			return errors.NewDatabaseError("initial_intake update", err)
		}
		return nil
	})
}

// FinalIntake records a play's end-submission time.
func (d *DB) FinalIntake(ctx context.Context, playID int64, submittedEnd int64) error {
	return d.pool.Do(ctx, func() error {
		_, err := d.plays.ExecContext(ctx,
			`UPDATE plays SET submitted_end=? WHERE rowid=?`, submittedEnd, playID)
		if err != nil {
			return errors.NewDatabaseError("final_intake update", err)
		}
		return nil
	})
}

// FullIntake records a play's remote rowid, start-, and end-submission times
// in one update (used when the first submission to the remote carries both
// timestamps at once).
func (d *DB) FullIntake(ctx context.Context, playID int64, intakeID string, submittedStart, submittedEnd int64) error {
	return d.pool.Do(ctx, func() error {
		_, err := d.plays.ExecContext(ctx,
			`UPDATE plays SET intake_id=?, submitted_start=?, submitted_end=? WHERE rowid=?`,
			intakeID, submittedStart, submittedEnd, playID)
		if err != nil {
			return errors.NewDatabaseError("full_intake update", err)
		}
		return nil
	})
}
