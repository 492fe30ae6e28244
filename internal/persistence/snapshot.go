package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"CollarLedger/internal/collar"
	"CollarLedger/internal/ledger"
	"CollarLedger/internal/oracle"
)

// SnapshotManager handles creating and loading state snapshots for recovery.
// A snapshot holds balances, the per-pair collar books (offers, both position
// sides, roll offers, token ownership), oracle observations, sequence
// counters, recent idempotency keys and the hash-chain tip.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData contains the full in-memory state at a point in time.
// Collar book structs serialize directly; balances flatten to rows because
// AccountKey is not a JSON-able map key.
type SnapshotData struct {
	Sequence           int64                                `json:"sequence"`
	StateHash          []byte                               `json:"state_hash"`
	Balances           []BalanceRow                         `json:"balances"`
	Offers             map[string][]*collar.LiquidityOffer  `json:"offers"`
	TakerPositions     map[string][]*collar.TakerPosition   `json:"taker_positions"`
	ProviderPositions  map[string][]*collar.ProviderPosition `json:"provider_positions"`
	RollOffers         map[string][]*collar.RollOffer       `json:"roll_offers"`
	TakerTokens        map[string]map[uuid.UUID]uuid.UUID   `json:"taker_tokens"`
	ProviderTokens     map[string]map[uuid.UUID]uuid.UUID   `json:"provider_tokens"`
	OracleObservations map[string][]oracle.Observation      `json:"oracle_observations"`
	SequenceState      map[string]int64                     `json:"sequence_state"`
	IdempotencyKeys    []string                             `json:"idempotency_keys"`
	CreatedAt          time.Time                            `json:"created_at"`
}

// BalanceRow is one serialized account balance.
type BalanceRow struct {
	Scope    uint8  `json:"scope"`
	EntityID string `json:"entity_id"`
	SubType  uint8  `json:"sub_type"`
	AssetID  uint16 `json:"asset_id"`
	Balance  int64  `json:"balance"`
}

// BalancesToRows flattens the tracker snapshot for serialization.
func BalancesToRows(balances map[ledger.AccountKey]int64) []BalanceRow {
	rows := make([]BalanceRow, 0, len(balances))
	for key, balance := range balances {
		rows = append(rows, BalanceRow{
			Scope:    uint8(key.Scope),
			EntityID: uuid.UUID(key.EntityID).String(),
			SubType:  uint8(key.SubType),
			AssetID:  uint16(key.AssetID),
			Balance:  balance,
		})
	}
	return rows
}

// RowsToBalances rebuilds the tracker map from serialized rows.
func RowsToBalances(rows []BalanceRow) (map[ledger.AccountKey]int64, error) {
	balances := make(map[ledger.AccountKey]int64, len(rows))
	for _, row := range rows {
		entityID, err := uuid.Parse(row.EntityID)
		if err != nil {
			return nil, fmt.Errorf("parse entity id %q: %w", row.EntityID, err)
		}
		key := ledger.AccountKey{
			Scope:    ledger.AccountScope(row.Scope),
			EntityID: entityID,
			SubType:  ledger.AccountSubType(row.SubType),
			AssetID:  ledger.AssetID(row.AssetID),
		}
		balances[key] = row.Balance
	}
	return balances, nil
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot to Postgres. Snapshots are taken
// periodically and verified by replaying events from the snapshot sequence
// forward before being trusted for recovery.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	sizeBytes := len(data)
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, sizeBytes, snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot. On warm
// restart the caller restores from it then replays events from
// snapshot.sequence+1.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No snapshot — cold start
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as verified after integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom loads events from a given sequence for replay. Used for
// warm restart (replay from snapshot) and cold restart (replay all).
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, pair, payload,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Pair,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty event log
	}
	return seq.Int64, nil
}
