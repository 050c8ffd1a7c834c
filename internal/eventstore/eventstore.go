package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"intldossier/api/internal/util"
)

// ErrVersionConflict is returned when an append races another writer for the
// same aggregate version.
var ErrVersionConflict = errors.New("event version conflict")

// SnapshotEvery controls how often Append writes a fresh snapshot. Snapshots
// are a replay cache only; deleting them must never change state.
const SnapshotEvery = 25

type Event struct {
	EventID       string         `json:"eventId"`
	AggregateType string         `json:"aggregateType"`
	AggregateID   string         `json:"aggregateId"`
	EventType     string         `json:"eventType"`
	EventCategory string         `json:"eventCategory"`
	Payload       map[string]any `json:"payload"`
	Changes       map[string]any `json:"changes"`
	CorrelationID string         `json:"correlationId"`
	CausationID   string         `json:"causationId"`
	Version       int            `json:"version"`
	CreatedAt     time.Time      `json:"createdAt"`
}

type Snapshot struct {
	AggregateType string
	AggregateID   string
	State         map[string]any
	Version       int
	CreatedAt     time.Time
}

// Applier folds one event into the running state and returns the new state.
type Applier func(state map[string]any, evt Event) map[string]any

// MergeChanges is the default applier: each event's changes map overwrites
// the corresponding state keys.
func MergeChanges(state map[string]any, evt Event) map[string]any {
	if state == nil {
		state = map[string]any{}
	}
	for k, v := range evt.Changes {
		state[k] = v
	}
	return state
}

// Replay left-folds events over an initial state. Events must already be in
// version order.
func Replay(initial map[string]any, events []Event, apply Applier) map[string]any {
	state := initial
	if state == nil {
		state = map[string]any{}
	}
	if apply == nil {
		apply = MergeChanges
	}
	for _, evt := range events {
		state = apply(state, evt)
	}
	return state
}

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append writes an event with the next version for its aggregate. The unique
// (aggregate_type, aggregate_id, version) index turns concurrent appends into
// ErrVersionConflict instead of torn histories. Every SnapshotEvery versions
// a fresh snapshot is written from a full replay.
func (s *Store) Append(ctx context.Context, evt Event) (Event, error) {
	if evt.AggregateType == "" || evt.AggregateID == "" || evt.EventType == "" {
		return Event{}, errors.New("append: aggregate type, aggregate id and event type are required")
	}
	if evt.EventID == "" {
		evt.EventID = util.NewEventID()
	}
	if evt.Payload == nil {
		evt.Payload = map[string]any{}
	}
	if evt.Changes == nil {
		evt.Changes = map[string]any{}
	}

	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal payload: %w", err)
	}
	changes, err := json.Marshal(evt.Changes)
	if err != nil {
		return Event{}, fmt.Errorf("marshal changes: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO domain_events
			(event_id, aggregate_type, aggregate_id, event_type, event_category,
			 payload, changes, correlation_id, causation_id, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9,
			(SELECT COALESCE(MAX(version), 0) + 1 FROM domain_events
			  WHERE aggregate_type = $2 AND aggregate_id = $3))
		RETURNING version, created_at`,
		evt.EventID, evt.AggregateType, evt.AggregateID, evt.EventType, evt.EventCategory,
		payload, changes, evt.CorrelationID, evt.CausationID,
	).Scan(&evt.Version, &evt.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Event{}, ErrVersionConflict
		}
		return Event{}, fmt.Errorf("append event: %w", err)
	}

	if evt.Version%SnapshotEvery == 0 {
		if err := s.refreshSnapshot(ctx, evt.AggregateType, evt.AggregateID); err != nil {
			// The snapshot is a cache; losing one refresh is harmless.
			return evt, nil
		}
	}
	return evt, nil
}

// Events returns all events for an aggregate with version > sinceVersion, in
// version order.
func (s *Store) Events(ctx context.Context, aggregateType, aggregateID string, sinceVersion int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, aggregate_type, aggregate_id, event_type, event_category,
		       payload, changes, correlation_id, causation_id, version, created_at
		  FROM domain_events
		 WHERE aggregate_type = $1 AND aggregate_id = $2 AND version > $3
		 ORDER BY version ASC`,
		aggregateType, aggregateID, sinceVersion)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var evt Event
		var payload, changes []byte
		if err := rows.Scan(&evt.EventID, &evt.AggregateType, &evt.AggregateID,
			&evt.EventType, &evt.EventCategory, &payload, &changes,
			&evt.CorrelationID, &evt.CausationID, &evt.Version, &evt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal(payload, &evt.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		if err := json.Unmarshal(changes, &evt.Changes); err != nil {
			return nil, fmt.Errorf("decode changes: %w", err)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// LatestSnapshot returns the stored snapshot, or nil when none exists.
func (s *Store) LatestSnapshot(ctx context.Context, aggregateType, aggregateID string) (*Snapshot, error) {
	var snap Snapshot
	var state []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT aggregate_type, aggregate_id, state, version, created_at
		  FROM aggregate_snapshots
		 WHERE aggregate_type = $1 AND aggregate_id = $2`,
		aggregateType, aggregateID,
	).Scan(&snap.AggregateType, &snap.AggregateID, &state, &snap.Version, &snap.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	if err := json.Unmarshal(state, &snap.State); err != nil {
		return nil, fmt.Errorf("decode snapshot state: %w", err)
	}
	return &snap, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	state, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("marshal snapshot state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO aggregate_snapshots (aggregate_type, aggregate_id, state, version, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (aggregate_type, aggregate_id)
		DO UPDATE SET state = EXCLUDED.state, version = EXCLUDED.version, created_at = now()`,
		snap.AggregateType, snap.AggregateID, state, snap.Version)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// CurrentState replays an aggregate: snapshot state (if any) plus every event
// after the snapshot version.
func (s *Store) CurrentState(ctx context.Context, aggregateType, aggregateID string, apply Applier) (map[string]any, int, error) {
	var initial map[string]any
	since := 0
	snap, err := s.LatestSnapshot(ctx, aggregateType, aggregateID)
	if err != nil {
		return nil, 0, err
	}
	if snap != nil {
		initial = snap.State
		since = snap.Version
	}

	events, err := s.Events(ctx, aggregateType, aggregateID, since)
	if err != nil {
		return nil, 0, err
	}
	version := since
	if n := len(events); n > 0 {
		version = events[n-1].Version
	}
	return Replay(initial, events, apply), version, nil
}

func (s *Store) refreshSnapshot(ctx context.Context, aggregateType, aggregateID string) error {
	events, err := s.Events(ctx, aggregateType, aggregateID, 0)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	state := Replay(nil, events, nil)
	return s.SaveSnapshot(ctx, Snapshot{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		State:         state,
		Version:       events[len(events)-1].Version,
	})
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "23505")
}
