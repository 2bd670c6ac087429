package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/kagehashi-labs/arcadewatchd/internal/domain"
	"github.com/kagehashi-labs/arcadewatchd/internal/errors"
	"github.com/kagehashi-labs/arcadewatchd/internal/workerpool"
)

const gamesSchema = `
CREATE TABLE games (path TEXT UNIQUE, directory TEXT, language TEXT, label TEXT);
INSERT INTO games (path, directory, language, label) VALUES
  ('/roms/gameA.gba', 'dirA', 'en', 'Game A'),
  ('/roms/gameB.gba', 'dirB', 'ja', 'Game B');
`

const playsSchema = `
CREATE TABLE plays (
  game TEXT, start_time INTEGER, end_time INTEGER,
  intake_id TEXT, submitted_start INTEGER, submitted_end INTEGER,
  skipped BOOLEAN DEFAULT 0
);
CREATE TABLE current (play INTEGER);
`

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	gamesPath := filepath.Join(dir, "games.db")
	playsPath := filepath.Join(dir, "plays.db")

	gamesRaw, err := sql.Open("sqlite3", gamesPath)
	require.NoError(t, err)
	_, err = gamesRaw.Exec(gamesSchema)
	require.NoError(t, err)
	require.NoError(t, gamesRaw.Close())

	playsRaw, err := sql.Open("sqlite3", playsPath)
	require.NoError(t, err)
	_, err = playsRaw.Exec(playsSchema)
	require.NoError(t, err)
	require.NoError(t, playsRaw.Close())

	d, err := Open(context.Background(), gamesPath, playsPath, workerpool.New(4))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestGameForPath(t *testing.T) {
	d := setupTestDB(t)
	game, err := d.GameForPath(context.Background(), "/roms/gameA.gba")
	require.NoError(t, err)
	assert.Equal(t, "dirA", game.Directory)
	assert.Equal(t, "Game A", game.Label)
	assert.Equal(t, domain.English, game.Language.Known)
}

func TestGameForPathNotFound(t *testing.T) {
	d := setupTestDB(t)
	_, err := d.GameForPath(context.Background(), "/roms/missing.gba")
	assert.True(t, errors.IsNotFound(err))
}

func TestStartedAndFinishedPlaying(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	game, err := d.GameForPath(ctx, "/roms/gameA.gba")
	require.NoError(t, err)

	play, err := d.StartedPlaying(ctx, game)
	require.NoError(t, err)
	assert.NotZero(t, play.ID)
	assert.Nil(t, play.EndTime)

	done, err := d.FinishedPlaying(ctx, play)
	require.NoError(t, err)
	require.NotNil(t, done.EndTime)
}

func TestDetachSaveCurrentlyPlayingEnforcesSingleton(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	game, err := d.GameForPath(ctx, "/roms/gameA.gba")
	require.NoError(t, err)

	p1, err := d.StartedPlaying(ctx, game)
	require.NoError(t, err)
	p2, err := d.StartedPlaying(ctx, game)
	require.NoError(t, err)

	done := make(chan struct{})
	d.DetachSaveCurrentlyPlaying(&p1.ID, func(error) { close(done) })
	waitForCurrent(t, d, p1.ID)

	id2 := p2.ID
	d.DetachSaveCurrentlyPlaying(&id2, func(error) { close(done) })
	waitForCurrent(t, d, p2.ID)

	var count int
	row := d.plays.QueryRow(`SELECT count(*) FROM current`)
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)
}

func waitForCurrent(t *testing.T, d *DB, wantID int64) {
	t.Helper()
	for i := 0; i < 200; i++ {
		var id int64
		row := d.plays.QueryRow(`SELECT play FROM current`)
		if err := row.Scan(&id); err == nil && id == wantID {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("current row never reached play id %d", wantID)
}

func TestLoadPreviouslyPlayingNone(t *testing.T) {
	d := setupTestDB(t)
	_, found, err := d.LoadPreviouslyPlaying(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLoadIntakeBacklogClassification(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	_, err := d.plays.Exec(`INSERT INTO plays (game, start_time, end_time, intake_id) VALUES (?, 100, NULL, NULL)`, "/roms/gameA.gba")
	require.NoError(t, err)
	_, err = d.plays.Exec(`INSERT INTO plays (game, start_time, end_time, intake_id) VALUES (?, 100, NULL, 'R1')`, "/roms/gameA.gba")
	require.NoError(t, err)
	_, err = d.plays.Exec(`INSERT INTO plays (game, start_time, end_time, intake_id) VALUES (?, 100, 200, 'R2')`, "/roms/gameA.gba")
	require.NoError(t, err)
	_, err = d.plays.Exec(`INSERT INTO plays (game, start_time, end_time, intake_id) VALUES (?, 100, 200, NULL)`, "/roms/gameA.gba")
	require.NoError(t, err)

	events, err := d.LoadIntakeBacklog(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3, "the live+intake_id row is omitted, it resumes via PreviousGame")

	kinds := map[IntakeEventKind]int{}
	for _, e := range events {
		kinds[e.Kind]++
	}
	assert.Equal(t, 1, kinds[SubmitStarted])
	assert.Equal(t, 1, kinds[SubmitEnded])
	assert.Equal(t, 1, kinds[SubmitFull])
}

func TestIntakeUpdates(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	game, err := d.GameForPath(ctx, "/roms/gameA.gba")
	require.NoError(t, err)
	play, err := d.StartedPlaying(ctx, game)
	require.NoError(t, err)

	require.NoError(t, d.InitialIntake(ctx, play.ID, "R1", 100))
	require.NoError(t, d.FinalIntake(ctx, play.ID, 200))

	var intakeID string
	var submittedStart, submittedEnd int64
	row := d.plays.QueryRow(`SELECT intake_id, submitted_start, submitted_end FROM plays WHERE rowid=?`, play.ID)
	require.NoError(t, row.Scan(&intakeID, &submittedStart, &submittedEnd))
	assert.Equal(t, "R1", intakeID)
	assert.Equal(t, int64(100), submittedStart)
	assert.Equal(t, int64(200), submittedEnd)
}
