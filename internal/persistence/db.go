// Package persistence provides SQLite-based storage for characters and their
// decision audit log. A character is stored as its core traits, context
// modifiers, quirk names and traumas; the template is configuration and is
// supplied again on load.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/npc-cognition/internal/decision"
	"github.com/talgya/npc-cognition/internal/engine"
	"github.com/talgya/npc-cognition/internal/personality"
	"github.com/talgya/npc-cognition/internal/stimulus"
)

// ErrNoMeta is returned by GetMeta for a missing key.
var ErrNoMeta = errors.New("meta key not found")

// DB wraps a SQLite connection for simulation state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS characters (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		core_json TEXT NOT NULL,
		context_json TEXT NOT NULL,
		quirks_json TEXT NOT NULL,
		traumas_json TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		character_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		event_id TEXT NOT NULL,
		schema_name TEXT NOT NULL,
		intent TEXT NOT NULL,
		selected TEXT NOT NULL,
		failed INTEGER NOT NULL,
		record_json TEXT NOT NULL,
		UNIQUE (character_id, seq)
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_decisions_tick ON decisions(tick);
	CREATE INDEX IF NOT EXISTS idx_decisions_selected ON decisions(selected);
	`
	if _, err := db.conn.Exec(schema); err != nil {
		return err
	}
	// Databases created before traumas were stored; fails harmlessly when
	// the column exists.
	db.conn.Exec("ALTER TABLE characters ADD COLUMN traumas_json TEXT NOT NULL DEFAULT '[]'")
	return nil
}

type characterRow struct {
	ID          string `db:"id"`
	Position    int    `db:"position"`
	Name        string `db:"name"`
	Description string `db:"description"`
	CoreJSON    string `db:"core_json"`
	ContextJSON string `db:"context_json"`
	QuirksJSON  string `db:"quirks_json"`
	TraumasJSON string `db:"traumas_json"`
}

// SaveCharacters writes every character snapshot (full replace). Order is
// kept so a restored run spawns characters in the same order.
func (db *DB) SaveCharacters(snaps []personality.Snapshot) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM characters"); err != nil {
		return err
	}

	stmt, err := tx.PrepareNamed(`INSERT INTO characters
		(id, position, name, description, core_json, context_json, quirks_json, traumas_json)
		VALUES (:id, :position, :name, :description, :core_json, :context_json, :quirks_json, :traumas_json)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, s := range snaps {
		coreJSON, err := json.Marshal(s.CoreTraits)
		if err != nil {
			return fmt.Errorf("encode traits of %s: %w", s.ID, err)
		}
		ctxJSON, err := json.Marshal(s.Context)
		if err != nil {
			return fmt.Errorf("encode context of %s: %w", s.ID, err)
		}
		quirks := s.Quirks
		if quirks == nil {
			quirks = []string{}
		}
		quirksJSON, _ := json.Marshal(quirks)
		traumas := s.Traumas
		if traumas == nil {
			traumas = []stimulus.TraumaTag{}
		}
		traumasJSON, _ := json.Marshal(traumas)

		row := characterRow{
			ID:          s.ID,
			Position:    i,
			Name:        s.Name,
			Description: s.Description,
			CoreJSON:    string(coreJSON),
			ContextJSON: string(ctxJSON),
			QuirksJSON:  string(quirksJSON),
			TraumasJSON: string(traumasJSON),
		}
		if _, err := stmt.Exec(row); err != nil {
			return fmt.Errorf("insert character %s: %w", s.ID, err)
		}
	}

	return tx.Commit()
}

// LoadCharacters returns every stored snapshot in save order.
func (db *DB) LoadCharacters() ([]personality.Snapshot, error) {
	var rows []characterRow
	if err := db.conn.Select(&rows, "SELECT * FROM characters ORDER BY position"); err != nil {
		return nil, fmt.Errorf("load characters: %w", err)
	}

	snaps := make([]personality.Snapshot, 0, len(rows))
	for _, r := range rows {
		s := personality.Snapshot{ID: r.ID, Name: r.Name, Description: r.Description}
		if err := json.Unmarshal([]byte(r.CoreJSON), &s.CoreTraits); err != nil {
			return nil, fmt.Errorf("decode traits of %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.ContextJSON), &s.Context); err != nil {
			return nil, fmt.Errorf("decode context of %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.QuirksJSON), &s.Quirks); err != nil {
			return nil, fmt.Errorf("decode quirks of %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.TraumasJSON), &s.Traumas); err != nil {
			return nil, fmt.Errorf("decode traumas of %s: %w", r.ID, err)
		}
		if len(s.Traumas) == 0 {
			s.Traumas = nil
		}
		snaps = append(snaps, s)
	}
	return snaps, nil
}

// HasWorldState reports whether any characters have been saved.
func (db *DB) HasWorldState() bool {
	var n int
	if err := db.conn.Get(&n, "SELECT COUNT(*) FROM characters"); err != nil {
		return false
	}
	return n > 0
}

// AppendDecisions adds decision records to the audit log. Records already
// stored for the same character and sequence number are skipped.
func (db *DB) AppendDecisions(entries []engine.DecisionEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range entries {
		rec := e.Record
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode decision %s/%d: %w", e.CharacterID, rec.Seq, err)
		}
		failed := 0
		if rec.Failed {
			failed = 1
		}
		_, err = tx.Exec(`INSERT OR IGNORE INTO decisions
			(character_id, seq, tick, event_id, schema_name, intent, selected, failed, record_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.CharacterID, rec.Seq, rec.Tick, rec.Stimulus.EventID,
			string(rec.Stimulus.Schema), string(rec.Stimulus.Intent), rec.Selected, failed, string(data),
		)
		if err != nil {
			return fmt.Errorf("insert decision %s/%d: %w", e.CharacterID, rec.Seq, err)
		}
	}

	return tx.Commit()
}

// LoadDecisions returns the latest limit records of a character, oldest first.
func (db *DB) LoadDecisions(characterID string, limit int) ([]decision.DecisionRecord, error) {
	var blobs []string
	err := db.conn.Select(&blobs,
		"SELECT record_json FROM decisions WHERE character_id = ? ORDER BY seq DESC LIMIT ?",
		characterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("load decisions: %w", err)
	}

	records := make([]decision.DecisionRecord, len(blobs))
	for i, b := range blobs {
		if err := json.Unmarshal([]byte(b), &records[len(blobs)-1-i]); err != nil {
			return nil, fmt.Errorf("decode decision of %s: %w", characterID, err)
		}
	}
	return records, nil
}

// ToolUsage counts stored selections per tool across all characters.
func (db *DB) ToolUsage() (map[string]int, error) {
	var rows []struct {
		Selected string `db:"selected"`
		N        int    `db:"n"`
	}
	if err := db.conn.Select(&rows, "SELECT selected, COUNT(*) AS n FROM decisions GROUP BY selected"); err != nil {
		return nil, fmt.Errorf("tool usage: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Selected] = r.N
	}
	return out, nil
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value. A missing key yields ErrNoMeta.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoMeta
	}
	return value, err
}

// SaveWorldState saves every character, the decisions recorded since the
// last save and the current tick. On failure the decisions go back to the
// simulation's queue for the next save; rows already written are ignored
// on retry.
func (db *DB) SaveWorldState(sim *engine.Simulation) (err error) {
	chars := sim.Characters()
	snaps := make([]personality.Snapshot, len(chars))
	for i, c := range chars {
		snaps[i] = c.Snapshot()
	}
	entries := sim.TakeDecisions()
	defer func() {
		if err != nil {
			sim.RequeueDecisions(entries)
		}
	}()
	slog.Info("saving world state", "characters", len(snaps), "decisions", len(entries))

	if err := db.SaveCharacters(snaps); err != nil {
		return fmt.Errorf("save characters: %w", err)
	}
	if err := db.AppendDecisions(entries); err != nil {
		return fmt.Errorf("save decisions: %w", err)
	}
	if err := db.SaveMeta("last_tick", strconv.FormatUint(sim.CurrentTick(), 10)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	slog.Info("world state saved")
	return nil
}

// Reset deletes all saved characters, decisions and metadata.
func (db *DB) Reset() error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"characters", "decisions", "world_meta"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// LastTick returns the saved tick, or 0 when none was saved.
func (db *DB) LastTick() uint64 {
	v, err := db.GetMeta("last_tick")
	if err != nil {
		return 0
	}
	t, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0
	}
	return t
}
