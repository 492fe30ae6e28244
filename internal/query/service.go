package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// QueryService provides read-only access to projection tables. Queries read
// from PostgreSQL projections, never from the deterministic core; every
// response carries as_of_sequence so callers can reason about freshness.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetBalance returns a user's cash balance for a specific asset, plus the
// escrow totals held by their open and settled taker positions.
func (qs *QueryService) GetBalance(
	ctx context.Context,
	userID uuid.UUID,
	asset string,
) (*BalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	cashPath := fmt.Sprintf("user:%s:cash:%s", userID, asset)
	cash, err := qs.getProjectedBalance(ctx, cashPath)
	if err != nil {
		return nil, err
	}

	var locked int64
	if err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(taker_locked), 0)
		FROM projections.positions
		WHERE taker = $1 AND cash_asset = $2 AND status = 'open'
	`, userID, asset).Scan(&locked); err != nil {
		return nil, err
	}

	var withdrawable int64
	if err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(withdrawable), 0)
		FROM projections.positions
		WHERE taker = $1 AND cash_asset = $2 AND status = 'settled'
	`, userID, asset).Scan(&withdrawable); err != nil {
		return nil, err
	}

	return &BalanceResponse{
		UserID:            userID,
		Asset:             asset,
		CashBalance:       cash,
		LockedInPositions: locked,
		Withdrawable:      withdrawable,
		AsOfSequence:      asOfSeq,
	}, nil
}

// GetPositions returns all positions opened by a taker.
func (qs *QueryService) GetPositions(
	ctx context.Context,
	taker uuid.UUID,
) ([]PositionResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT position_id, provider_position_id, pair, cash_asset,
		       initial_price, put_strike_price, call_strike_price,
		       taker_locked, provider_locked, expiration_micros,
		       settled, withdrawable, status
		FROM projections.positions
		WHERE taker = $1
		ORDER BY expiration_micros DESC
	`, taker)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []PositionResponse
	for rows.Next() {
		var p PositionResponse
		p.Taker = taker
		p.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&p.PositionID, &p.ProviderPositionID, &p.Pair, &p.CashAsset,
			&p.InitialPrice, &p.PutStrikePrice, &p.CallStrikePrice,
			&p.TakerLocked, &p.ProviderLocked, &p.ExpirationMicros,
			&p.Settled, &p.Withdrawable, &p.Status,
		); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}

	return positions, rows.Err()
}

// GetPosition returns one position by id.
func (qs *QueryService) GetPosition(
	ctx context.Context,
	positionID uuid.UUID,
) (*PositionResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var p PositionResponse
	p.AsOfSequence = asOfSeq
	err = qs.db.QueryRowContext(ctx, `
		SELECT position_id, provider_position_id, pair, taker, cash_asset,
		       initial_price, put_strike_price, call_strike_price,
		       taker_locked, provider_locked, expiration_micros,
		       settled, withdrawable, status
		FROM projections.positions
		WHERE position_id = $1
	`, positionID).Scan(
		&p.PositionID, &p.ProviderPositionID, &p.Pair, &p.Taker, &p.CashAsset,
		&p.InitialPrice, &p.PutStrikePrice, &p.CallStrikePrice,
		&p.TakerLocked, &p.ProviderLocked, &p.ExpirationMicros,
		&p.Settled, &p.Withdrawable, &p.Status,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetOffers returns the liquidity offers on a pair, deepest pool first.
func (qs *QueryService) GetOffers(
	ctx context.Context,
	pair string,
) ([]OfferResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT offer_id, provider, asset, available,
		       put_strike_deviation, call_strike_deviation, duration_seconds
		FROM projections.offers
		WHERE pair = $1 AND available > 0
		ORDER BY available DESC
	`, pair)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []OfferResponse
	for rows.Next() {
		var o OfferResponse
		o.Pair = pair
		o.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&o.OfferID, &o.Provider, &o.Asset, &o.Available,
			&o.PutStrikeDeviation, &o.CallStrikeDeviation, &o.DurationSeconds,
		); err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}

	return offers, rows.Err()
}

// GetSettlements returns settlement history for a pair with cursor-based
// pagination on the settlement sequence.
func (qs *QueryService) GetSettlements(
	ctx context.Context,
	pair string,
	limit int,
	afterSequence *int64,
) ([]SettlementResponse, error) {
	query := `
		SELECT position_id, provider_position_id, end_price, historical_price,
		       taker_withdrawable, provider_delta, settled_sequence
		FROM projections.settlements
		WHERE pair = $1
	`
	args := []interface{}{pair}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND settled_sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY settled_sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settlements []SettlementResponse
	for rows.Next() {
		var s SettlementResponse
		s.Pair = pair
		if err := rows.Scan(
			&s.PositionID, &s.ProviderPositionID, &s.EndPrice, &s.HistoricalPrice,
			&s.TakerWithdrawable, &s.ProviderDelta, &s.SettledSequence,
		); err != nil {
			return nil, err
		}
		settlements = append(settlements, s)
	}

	return settlements, rows.Err()
}

// GetRolls returns executed-roll history for a pair.
func (qs *QueryService) GetRolls(
	ctx context.Context,
	pair string,
	limit int,
) ([]RollResponse, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT roll_offer_id, old_position_id, new_position_id,
		       price, to_taker, to_provider, fee,
		       new_taker_locked, new_provider_locked, executed_sequence
		FROM projections.rolls
		WHERE pair = $1
		ORDER BY executed_sequence DESC
		LIMIT $2
	`, pair, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rolls []RollResponse
	for rows.Next() {
		var r RollResponse
		r.Pair = pair
		if err := rows.Scan(
			&r.RollOfferID, &r.OldPositionID, &r.NewPositionID,
			&r.Price, &r.ToTaker, &r.ToProvider, &r.Fee,
			&r.NewTakerLocked, &r.NewProviderLocked, &r.ExecutedSequence,
		); err != nil {
			return nil, err
		}
		rolls = append(rolls, r)
	}

	return rolls, rows.Err()
}

// GetJournalHistory returns journal entries touching a user's accounts with
// cursor-based pagination.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("user:%s:%%", userID)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE debit_account LIKE $1 OR credit_account LIKE $1
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity and the global zero-sum
// invariant against the persisted tables.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	// Check hash chain continuity
	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence, e1.prev_hash, e2.state_hash
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 0 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		var prevHash, expectedHash []byte
		if err := rows.Scan(&seq, &prevHash, &expectedHash); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}

	// Check global balance (should sum to zero across all accounts per asset)
	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance) as total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID uint16
		var total int64
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   assetID,
			Imbalance: total,
		})
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, accountPath string) (int64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}
