package persist

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"swimfeed/internal/state"
)

// History indexes archived flights in SQLite so the history API can answer
// callsign and date queries without scanning the JSONL files.
type History struct {
	db *sql.DB
}

// OpenHistory opens or creates the index database at path.
func OpenHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	// WAL keeps readers off the writer's back during archive appends.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &History{db: db}, nil
}

// Close closes the database connection.
func (h *History) Close() error { return h.db.Close() }

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS flights (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		gufi TEXT NOT NULL,
		guid TEXT,
		callsign TEXT,
		origin TEXT,
		destination TEXT,
		aircraft_type TEXT,
		status TEXT,
		day TEXT NOT NULL,
		first_seen TEXT,
		last_seen TEXT,
		record_json TEXT NOT NULL,
		created_at TEXT DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS idx_flights_gufi ON flights(gufi);
	CREATE INDEX IF NOT EXISTS idx_flights_callsign ON flights(callsign);
	CREATE INDEX IF NOT EXISTS idx_flights_day ON flights(day);
	`
	_, err := db.Exec(schema)
	return err
}

// Insert indexes one archived flight under its archive day.
func (h *History) Insert(rec *state.FlightRecord, day string) error {
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = h.db.Exec(`
		INSERT INTO flights (gufi, guid, callsign, origin, destination, aircraft_type, status, day, first_seen, last_seen, record_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.GUFI, rec.GUID, rec.Callsign, rec.Origin, rec.Destination, rec.AircraftType,
		string(rec.Status), day,
		rec.FirstSeen.UTC().Format(time.RFC3339), rec.LastSeen.UTC().Format(time.RFC3339),
		string(recordJSON))
	if err != nil {
		return fmt.Errorf("insert flight: %w", err)
	}
	return nil
}

// HistoryQuery filters a history search. An empty Query matches everything;
// Date, when set, restricts to one archive day.
type HistoryQuery struct {
	Query string // callsign or GUFI, LIKE match
	Date  string // archive day, exact match
	Limit int    // max rows (default 100)
}

// HistoryRow is one indexed flight.
type HistoryRow struct {
	ID           int64           `json:"id"`
	GUFI         string          `json:"gufi"`
	GUID         string          `json:"guid,omitempty"`
	Callsign     string          `json:"callsign,omitempty"`
	Origin       string          `json:"origin,omitempty"`
	Destination  string          `json:"destination,omitempty"`
	AircraftType string          `json:"acType,omitempty"`
	Status       string          `json:"status,omitempty"`
	Day          string          `json:"day"`
	FirstSeen    time.Time       `json:"firstSeen"`
	LastSeen     time.Time       `json:"lastSeen"`
	Record       json.RawMessage `json:"record,omitempty"`
}

// Search returns indexed flights matching the query, newest first.
func (h *History) Search(q HistoryQuery) ([]HistoryRow, error) {
	var conditions []string
	var args []any

	if q.Query != "" {
		conditions = append(conditions, "(callsign LIKE ? OR gufi LIKE ?)")
		like := "%" + strings.ToUpper(q.Query) + "%"
		args = append(args, like, like)
	}
	if q.Date != "" {
		conditions = append(conditions, "day = ?")
		args = append(args, q.Date)
	}

	query := `SELECT id, gufi, guid, callsign, origin, destination, aircraft_type, status, day, first_seen, last_seen, record_json FROM flights`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	limit := 100
	if q.Limit > 0 {
		limit = q.Limit
	}
	query += fmt.Sprintf(" ORDER BY last_seen DESC LIMIT %d", limit)

	rows, err := h.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query flights: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []HistoryRow
	for rows.Next() {
		var r HistoryRow
		var guid, callsign, origin, dest, acType, status, first, last sql.NullString
		var record string
		if err := rows.Scan(&r.ID, &r.GUFI, &guid, &callsign, &origin, &dest,
			&acType, &status, &r.Day, &first, &last, &record); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.GUID = guid.String
		r.Callsign = callsign.String
		r.Origin = origin.String
		r.Destination = dest.String
		r.AircraftType = acType.String
		r.Status = status.String
		if first.Valid {
			r.FirstSeen, _ = time.Parse(time.RFC3339, first.String)
		}
		if last.Valid {
			r.LastSeen, _ = time.Parse(time.RFC3339, last.String)
		}
		r.Record = json.RawMessage(record)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Dates returns the distinct archive days present, newest first.
func (h *History) Dates() ([]string, error) {
	rows, err := h.db.Query("SELECT DISTINCT day FROM flights ORDER BY day DESC")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var days []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}
