package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"CollarLedger/internal/persistence"
	"CollarLedger/internal/testutil"
)

// ============================================================================
// Event log
// ============================================================================

func eventRow(sequence int64, idemKey string) persistence.EventRow {
	return persistence.EventRow{
		Sequence:       sequence,
		EventType:      "CashDeposited",
		IdempotencyKey: idemKey,
		Payload:        []byte(`{"Amount":1000}`),
		StateHash:      make([]byte, 32),
		PrevHash:       make([]byte, 32),
		Timestamp:      time.Now().UTC(),
		SourceSequence: sequence + 1,
	}
}

func TestEventLog_WriteAndReplay(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	writer := persistence.NewEventLogWriter(db, 100, time.Second)
	rows := []persistence.EventRow{
		eventRow(0, uuid.NewString()),
		eventRow(1, uuid.NewString()),
		eventRow(2, uuid.NewString()),
	}
	if err := writer.WriteEventBatch(ctx, db, rows); err != nil {
		t.Fatalf("WriteEventBatch: %v", err)
	}
	// Replaying the same batch is a no-op, not an error.
	if err := writer.WriteEventBatch(ctx, db, rows); err != nil {
		t.Fatalf("WriteEventBatch retry: %v", err)
	}

	sm := persistence.NewSnapshotManager(db)
	events, err := sm.LoadEventsFrom(ctx, 0, 10)
	if err != nil {
		t.Fatalf("LoadEventsFrom: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, e := range events {
		if e.Sequence != int64(i) {
			t.Errorf("event %d: sequence %d", i, e.Sequence)
		}
		if e.EventType != "CashDeposited" {
			t.Errorf("event %d: type %q", i, e.EventType)
		}
		if e.IdempotencyKey != rows[i].IdempotencyKey {
			t.Errorf("event %d: idempotency key %q, want %q", i, e.IdempotencyKey, rows[i].IdempotencyKey)
		}
	}

	latest, err := sm.GetLatestSequence(ctx)
	if err != nil {
		t.Fatalf("GetLatestSequence: %v", err)
	}
	if latest != 2 {
		t.Errorf("latest sequence: got %d, want 2", latest)
	}
}

func TestEventLog_LoadEventsFrom_ResumesMidLog(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	writer := persistence.NewEventLogWriter(db, 100, time.Second)
	var rows []persistence.EventRow
	for seq := int64(0); seq < 5; seq++ {
		rows = append(rows, eventRow(seq, uuid.NewString()))
	}
	if err := writer.WriteEventBatch(ctx, db, rows); err != nil {
		t.Fatalf("WriteEventBatch: %v", err)
	}

	// Warm restart replays from snapshot.sequence+1.
	sm := persistence.NewSnapshotManager(db)
	events, err := sm.LoadEventsFrom(ctx, 3, 10)
	if err != nil {
		t.Fatalf("LoadEventsFrom: %v", err)
	}
	if len(events) != 2 || events[0].Sequence != 3 || events[1].Sequence != 4 {
		t.Fatalf("resume from 3: got %d events starting at %d", len(events), events[0].Sequence)
	}
}

// ============================================================================
// Journal
// ============================================================================

func TestJournal_WriteBatchIdempotent(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	writer := persistence.NewEventLogWriter(db, 100, time.Second)
	batchID := uuid.NewString()
	journals := []persistence.JournalRow{
		{
			JournalID:     uuid.NewString(),
			BatchID:       batchID,
			EventRef:      uuid.NewString(),
			Sequence:      0,
			DebitAccount:  "user:" + uuid.NewString() + ":cash:1",
			CreditAccount: "system:external:1",
			AssetID:       1,
			Amount:        1_000,
			JournalType:   1,
			Timestamp:     time.Now().UnixMicro(),
		},
		{
			JournalID:     uuid.NewString(),
			BatchID:       batchID,
			EventRef:      uuid.NewString(),
			Sequence:      0,
			DebitAccount:  "system:external:1",
			CreditAccount: "user:" + uuid.NewString() + ":cash:1",
			AssetID:       1,
			Amount:        250,
			JournalType:   2,
			Timestamp:     time.Now().UnixMicro(),
		},
	}
	if err := writer.WriteJournalBatch(ctx, db, journals); err != nil {
		t.Fatalf("WriteJournalBatch: %v", err)
	}
	if err := writer.WriteJournalBatch(ctx, db, journals); err != nil {
		t.Fatalf("WriteJournalBatch retry: %v", err)
	}

	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_log.journal WHERE batch_id = $1`, batchID,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count journals: %v", err)
	}
	if count != 2 {
		t.Errorf("got %d journal rows, want 2", count)
	}
}

// ============================================================================
// Idempotency
// ============================================================================

func TestIdempotencyChecker_DBLookup(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	writer := persistence.NewEventLogWriter(db, 100, time.Second)
	key := uuid.NewString()
	if err := writer.WriteEventBatch(ctx, db, []persistence.EventRow{eventRow(0, key)}); err != nil {
		t.Fatalf("WriteEventBatch: %v", err)
	}

	checker := persistence.NewPostgresIdempotencyChecker(db)
	dup, err := checker.IsDuplicate("CashDeposited", key)
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if !dup {
		t.Error("written key must be a duplicate")
	}

	dup, err = checker.IsDuplicate("CashDeposited", uuid.NewString())
	if err != nil {
		t.Fatalf("IsDuplicate unknown: %v", err)
	}
	if dup {
		t.Error("unknown key must not be a duplicate")
	}

	keys, err := checker.WarmKeys(ctx, 10)
	if err != nil {
		t.Fatalf("WarmKeys: %v", err)
	}
	found := false
	for _, k := range keys {
		if k == "CashDeposited:"+key {
			found = true
		}
	}
	if !found {
		t.Errorf("WarmKeys missing composite key, got %v", keys)
	}
}

// ============================================================================
// Snapshots
// ============================================================================

func TestSnapshot_VerifiedRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sm := persistence.NewSnapshotManager(db)
	snap := &persistence.SnapshotData{
		Sequence:  42,
		StateHash: make([]byte, 32),
		Balances: []persistence.BalanceRow{
			{Scope: 1, EntityID: uuid.NewString(), SubType: 1, AssetID: 1, Balance: 5_000},
		},
		SequenceState:   map[string]int64{"global": 42},
		IdempotencyKeys: []string{"CashDeposited:" + uuid.NewString()},
		CreatedAt:       time.Now().UTC(),
	}
	if err := sm.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	// Unverified snapshots are never used for recovery.
	loaded, err := sm.LoadLatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadLatestSnapshot: %v", err)
	}
	if loaded != nil {
		t.Fatal("unverified snapshot must not load")
	}

	if err := sm.MarkVerified(ctx, 42); err != nil {
		t.Fatalf("MarkVerified: %v", err)
	}
	loaded, err = sm.LoadLatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadLatestSnapshot: %v", err)
	}
	if loaded == nil {
		t.Fatal("verified snapshot must load")
	}
	if loaded.Sequence != 42 {
		t.Errorf("sequence: got %d, want 42", loaded.Sequence)
	}
	if len(loaded.Balances) != 1 || loaded.Balances[0].Balance != 5_000 {
		t.Errorf("balances did not round-trip: %+v", loaded.Balances)
	}
	if loaded.SequenceState["global"] != 42 {
		t.Errorf("sequence state did not round-trip: %+v", loaded.SequenceState)
	}

	balances, err := persistence.RowsToBalances(loaded.Balances)
	if err != nil {
		t.Fatalf("RowsToBalances: %v", err)
	}
	if len(balances) != 1 {
		t.Errorf("got %d balance keys, want 1", len(balances))
	}
}
