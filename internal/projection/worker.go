package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"CollarLedger/internal/core"
)

// ProjectionOutput mirrors the data needed by projection workers.
// The orchestrator bridges between core.CoreOutput and this.
type ProjectionOutput struct {
	Sequence       int64
	EventType      string
	Pair           *string
	JournalEntries []JournalEntry
	Record         *core.ProjectionRecord
	Timestamp      int64
}

// JournalEntry is a simplified journal for projection consumption.
type JournalEntry struct {
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        int64
	JournalType   int32
}

// ProjectionWorker updates projection tables from processed events. The
// projection channel is non-blocking with drop: if projections fall behind,
// they can be rebuilt from the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v", output.Sequence, err)
				// Continue — projections are eventually consistent
				// and can be rebuilt from the event log
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, j := range output.JournalEntries {
		if err := pw.updateBalanceProjection(ctx, tx, j, output.Sequence); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	if output.Record != nil {
		if err := pw.applyRecord(ctx, tx, output.Record, output.Sequence); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (pw *ProjectionWorker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, j JournalEntry, seq int64) error {
	// Debit account: decrease balance
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, -$3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance - $3, last_sequence = $4
	`, j.DebitAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	// Credit account: increase balance
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, j.CreditAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	return nil
}

func (pw *ProjectionWorker) applyRecord(ctx context.Context, tx *sql.Tx, rec *core.ProjectionRecord, seq int64) error {
	if rec.Position != nil {
		p := rec.Position
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.positions (
				position_id, provider_position_id, pair, taker, cash_asset,
				initial_price, put_strike_price, call_strike_price,
				taker_locked, provider_locked, expiration_micros,
				settled, withdrawable, status, last_sequence, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW())
			ON CONFLICT (position_id) DO UPDATE SET
				settled = $12, withdrawable = $13, status = $14,
				last_sequence = $15, updated_at = NOW()
		`, p.PositionID, p.ProviderPositionID, p.Pair, p.Taker, p.CashAsset,
			p.InitialPrice, p.PutStrikePrice, p.CallStrikePrice,
			p.TakerLocked, p.ProviderLocked, p.ExpirationMicros,
			p.Settled, p.Withdrawable, p.Status, seq); err != nil {
			return fmt.Errorf("position projection: %w", err)
		}
	}

	if rec.PositionMark != nil {
		m := rec.PositionMark
		if _, err := tx.ExecContext(ctx, `
			UPDATE projections.positions
			SET status = $2, last_sequence = $3, updated_at = NOW()
			WHERE position_id = $1
		`, m.PositionID, m.Status, seq); err != nil {
			return fmt.Errorf("position mark: %w", err)
		}
	}

	if rec.Offer != nil {
		o := rec.Offer
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.offers (
				offer_id, provider, pair, asset, available,
				put_strike_deviation, call_strike_deviation, duration_seconds,
				last_sequence, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
			ON CONFLICT (offer_id) DO UPDATE SET
				available = $5, last_sequence = $9, updated_at = NOW()
		`, o.OfferID, o.Provider, o.Pair, o.Asset, o.Available,
			o.PutStrikeDeviation, o.CallStrikeDeviation, o.DurationSeconds, seq); err != nil {
			return fmt.Errorf("offer projection: %w", err)
		}
	}

	if rec.Settlement != nil {
		s := rec.Settlement
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.settlements (
				position_id, provider_position_id, pair, end_price,
				historical_price, taker_withdrawable, provider_delta,
				settled_sequence, settled_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
			ON CONFLICT (position_id) DO NOTHING
		`, s.PositionID, s.ProviderPositionID, s.Pair, s.EndPrice,
			s.HistoricalPrice, s.TakerWithdrawable, s.ProviderDelta, seq); err != nil {
			return fmt.Errorf("settlement projection: %w", err)
		}
	}

	if rec.Roll != nil {
		r := rec.Roll
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.rolls (
				roll_offer_id, old_position_id, new_position_id, pair,
				price, to_taker, to_provider, fee,
				new_taker_locked, new_provider_locked,
				executed_sequence, executed_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW())
			ON CONFLICT (roll_offer_id) DO NOTHING
		`, r.RollOfferID, r.OldPositionID, r.NewPositionID, r.Pair,
			r.Price, r.ToTaker, r.ToProvider, r.Fee,
			r.NewTakerLocked, r.NewProviderLocked, seq); err != nil {
			return fmt.Errorf("roll projection: %w", err)
		}
	}

	return nil
}

// RebuildProjections rebuilds the balance projection from the event log and
// clears the domain tables. Positions, offers, settlements, and rolls
// repopulate as the orchestrator replays the event log through the core.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.positions`,
		`TRUNCATE projections.offers`,
		`TRUNCATE projections.settlements`,
		`TRUNCATE projections.rolls`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Rebuild balances from journal entries
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			asset_id,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY credit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	// Subtract debits
	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			asset_id,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY debit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	log.Println("INFO: projection rebuild complete")
	return nil
}
