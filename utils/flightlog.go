package utils

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// FlightSample is one logged tick of a run.
type FlightSample struct {
	TimeS           float64
	Mode            string
	PitchSp         float64
	PitchAng        float64
	ThrustCmd       float64
	VzCmd           float64
	AOA             float64
	CL              float64
	LiftWeightRatio float64
	Airspeed        float64
	Altitude        float64
	SideslipAng     float64
	SysidtState     string
	Status          json.RawMessage // full status record
}

// ModeEvent is a mode edge with the reason the supervisor gave.
type ModeEvent struct {
	TimeS  float64
	From   string
	To     string
	Reason string
}

// FlightSession describes one recorded run.
type FlightSession struct {
	ID        uuid.UUID
	Name      string
	StartedAt time.Time
	Params    json.RawMessage
}

// ErrNoSession is returned when recording before StartSession.
var ErrNoSession = errors.New("flight log has no active session")

// FlightLog records runs into a sqlite database, one session per run.
type FlightLog struct {
	mu      sync.Mutex
	db      *sql.DB
	session uuid.UUID
	sample  *sql.Stmt
	event   *sql.Stmt
}

// OpenFlightLog opens or creates the database at path.
func OpenFlightLog(path string) (*FlightLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open flight log: %w", err)
	}
	// one writer; sqlite serialises anyway
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			name TEXT,
			started_at_ns INTEGER,
			params_json TEXT
		);
		CREATE TABLE IF NOT EXISTS samples (
			session_id TEXT NOT NULL,
			t_s DOUBLE NOT NULL,
			mode TEXT,
			pitch_sp DOUBLE,
			pitch_ang DOUBLE,
			thrust_cmd DOUBLE,
			vz_cmd DOUBLE,
			aoa DOUBLE,
			cl DOUBLE,
			lift_weight_ratio DOUBLE,
			airspeed DOUBLE,
			altitude DOUBLE,
			sideslip_ang DOUBLE,
			sysidt_state TEXT,
			status_json TEXT,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE INDEX IF NOT EXISTS samples_session_t ON samples(session_id, t_s);
		CREATE TABLE IF NOT EXISTS mode_events (
			session_id TEXT NOT NULL,
			t_s DOUBLE NOT NULL,
			from_mode TEXT,
			to_mode TEXT,
			reason TEXT,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create flight log schema: %w", err)
	}

	l := &FlightLog{db: db}
	l.sample, err = db.Prepare(`INSERT INTO samples (session_id, t_s, mode, pitch_sp, pitch_ang, thrust_cmd,
		vz_cmd, aoa, cl, lift_weight_ratio, airspeed, altitude, sideslip_ang, sysidt_state, status_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare sample insert: %w", err)
	}
	l.event, err = db.Prepare(`INSERT INTO mode_events (session_id, t_s, from_mode, to_mode, reason) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		l.sample.Close()
		db.Close()
		return nil, fmt.Errorf("prepare event insert: %w", err)
	}
	return l, nil
}

// StartSession opens a new session and makes it current. params is stored as
// JSON alongside it.
func (l *FlightLog) StartSession(name string, params any) (uuid.UUID, error) {
	blob, err := json.Marshal(params)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal session params: %w", err)
	}
	id := uuid.New()

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.db.Exec("INSERT INTO sessions (session_id, name, started_at_ns, params_json) VALUES (?, ?, ?, ?)",
		id.String(), name, time.Now().UnixNano(), string(blob))
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert session: %w", err)
	}
	l.session = id
	return id, nil
}

// Session returns the current session id.
func (l *FlightLog) Session() uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// RecordSample appends s to the current session.
func (l *FlightLog) RecordSample(s FlightSample) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == uuid.Nil {
		return ErrNoSession
	}
	_, err := l.sample.Exec(l.session.String(), s.TimeS, s.Mode, s.PitchSp, s.PitchAng, s.ThrustCmd,
		s.VzCmd, s.AOA, s.CL, s.LiftWeightRatio, s.Airspeed, s.Altitude, s.SideslipAng, s.SysidtState,
		string(s.Status))
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// RecordModeEvent appends e to the current session.
func (l *FlightLog) RecordModeEvent(e ModeEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == uuid.Nil {
		return ErrNoSession
	}
	if _, err := l.event.Exec(l.session.String(), e.TimeS, e.From, e.To, e.Reason); err != nil {
		return fmt.Errorf("insert mode event: %w", err)
	}
	return nil
}

// Sessions lists the recorded sessions, newest first.
func (l *FlightLog) Sessions() ([]FlightSession, error) {
	rows, err := l.db.Query("SELECT session_id, name, started_at_ns, params_json FROM sessions ORDER BY started_at_ns DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FlightSession
	for rows.Next() {
		var (
			id, name, params string
			startedNS        int64
		)
		if err := rows.Scan(&id, &name, &startedNS, &params); err != nil {
			return nil, err
		}
		uid, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("session id %q: %w", id, err)
		}
		out = append(out, FlightSession{ID: uid, Name: name, StartedAt: time.Unix(0, startedNS), Params: json.RawMessage(params)})
	}
	return out, rows.Err()
}

// Samples returns the samples of session in time order.
func (l *FlightLog) Samples(session uuid.UUID) ([]FlightSample, error) {
	rows, err := l.db.Query(`SELECT t_s, mode, pitch_sp, pitch_ang, thrust_cmd, vz_cmd, aoa, cl,
		lift_weight_ratio, airspeed, altitude, sideslip_ang, sysidt_state, status_json
		FROM samples WHERE session_id = ? ORDER BY t_s`, session.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FlightSample
	for rows.Next() {
		var (
			s      FlightSample
			status string
		)
		if err := rows.Scan(&s.TimeS, &s.Mode, &s.PitchSp, &s.PitchAng, &s.ThrustCmd, &s.VzCmd, &s.AOA, &s.CL,
			&s.LiftWeightRatio, &s.Airspeed, &s.Altitude, &s.SideslipAng, &s.SysidtState, &status); err != nil {
			return nil, err
		}
		if status != "" {
			s.Status = json.RawMessage(status)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ModeEvents returns the mode edges of session in time order.
func (l *FlightLog) ModeEvents(session uuid.UUID) ([]ModeEvent, error) {
	rows, err := l.db.Query("SELECT t_s, from_mode, to_mode, reason FROM mode_events WHERE session_id = ? ORDER BY t_s",
		session.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModeEvent
	for rows.Next() {
		var e ModeEvent
		if err := rows.Scan(&e.TimeS, &e.From, &e.To, &e.Reason); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *FlightLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.sample.Close()
	_ = l.event.Close()
	return l.db.Close()
}
