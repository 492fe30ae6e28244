package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"CollarLedger/internal/collar"
	"CollarLedger/internal/event"
	"CollarLedger/internal/ledger"
	"CollarLedger/internal/observability"
	"CollarLedger/internal/oracle"
)

// PairBooks bundles the per-pair state: the paired taker/provider ledgers and
// the price observation history that feeds them.
type PairBooks struct {
	Taker    *collar.TakerLedger
	Provider *collar.ProviderLedger
	Oracle   *oracle.TWAP
}

// Config carries the static engine parameters loaded at startup.
type Config struct {
	Pairs               []string
	CashAssets          []string
	Underlyings         []string
	OracleWindowMicros  int64
	IdempotencyCapacity int
}

// DeterministicCore is the single-threaded event processor
type DeterministicCore struct {
	sequence          int64
	hasher            *StateHasher
	balanceTracker    *ledger.BalanceTracker
	journalGen        *ledger.JournalGenerator
	validator         *ledger.InvariantValidator
	registry          *collar.StaticRegistry
	pairs             map[string]*PairBooks
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Batch      *ledger.Batch
	StateDelta []byte
	Projection *ProjectionRecord
}

// ledgerID derives a stable UUID for a per-pair ledger so replay and restart
// always reconstruct the same ids.
func ledgerID(role, pair string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("collarledger:"+role+":"+pair))
}

func NewDeterministicCore(
	startSequence int64,
	cfg Config,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) *DeterministicCore {
	balanceTracker := ledger.NewBalanceTracker()
	validator := ledger.NewInvariantValidator(balanceTracker)
	journalGen := ledger.NewJournalGenerator(startSequence, balanceTracker)
	registry := collar.NewStaticRegistry(cfg.CashAssets, cfg.Underlyings)

	window := cfg.OracleWindowMicros
	if window <= 0 {
		window = oracle.DefaultWindowMicros
	}
	capacity := cfg.IdempotencyCapacity
	if capacity <= 0 {
		capacity = 1_000_000
	}

	pairs := make(map[string]*PairBooks, len(cfg.Pairs))
	for _, pair := range cfg.Pairs {
		twap, err := oracle.New(pair, window)
		if err != nil {
			panic(fmt.Sprintf("FATAL: oracle init for %s: %v", pair, err))
		}
		taker := collar.NewTakerLedger(ledgerID("taker", pair), pair, registry, twap)
		provider := collar.NewProviderLedger(ledgerID("provider", pair), pair)
		taker.RegisterProvider(provider)
		registry.AllowOpen(taker.ID(), true)

		pairs[pair] = &PairBooks{Taker: taker, Provider: provider, Oracle: twap}
	}

	return &DeterministicCore{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		balanceTracker:    balanceTracker,
		journalGen:        journalGen,
		validator:         validator,
		registry:          registry,
		pairs:             pairs,
		idempotency:       NewIdempotencyChecker(capacity, dbChecker),
		sequenceValidator: NewSequenceValidator(),
		metrics:           metrics,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}
}

// ProcessEvent is the main processing pipeline
func (c *DeterministicCore) ProcessEvent(evt event.Event) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	isDuplicate := c.idempotency.IsDuplicate(eventType, idempotencyKey)

	// Step 2: Sequence validation. Price updates get the gap-tolerant path.
	partition := c.getPartition(evt)
	sourceSequence := evt.SourceSequence()

	if priceEvt, ok := evt.(*event.OraclePriceUpdate); ok {
		if err := c.sequenceValidator.ValidatePriceSequence(priceEvt.PairName, priceEvt.Sequence); err != nil {
			return err
		}
	} else {
		if err := c.sequenceValidator.ValidateSequence(partition, sourceSequence, idempotencyKey, isDuplicate); err != nil {
			return fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	// If duplicate, skip processing
	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil
	}

	// Step 3: Event dispatch - pre-checks, collar state mutation, batch
	batch, projection, err := c.dispatchEvent(evt)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "dispatch").Inc()
		}
		return fmt.Errorf("dispatch failed: %w", err)
	}

	// Step 4-6: Validate and apply. State-only events (price updates, roll
	// offer bookkeeping) produce no journals but still chain an envelope.
	if len(batch.Journals) > 0 {
		if err := c.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}
		if err := c.balanceTracker.ApplyBatch(batch); err != nil {
			return fmt.Errorf("apply batch failed: %w", err)
		}
	}

	// Step 7: State digest and hash chain
	stateDigest := c.computeStateDigest(batch)
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

	payload, err := json.Marshal(evt)
	if err != nil {
		panic(fmt.Sprintf("FATAL: event payload marshal: %v", err))
	}

	envelope := &event.EventEnvelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		EventType:      evt.EventType(),
		Pair:           evt.Pair(),
		Timestamp:      evt.Timestamp(),
		SourceSequence: sourceSequence,
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       c.hasher.GetPrevHash(),
	}

	output := CoreOutput{
		Envelope:   envelope,
		Batch:      batch,
		StateDelta: stateDigest,
		Projection: projection,
	}
	c.sequence++

	// Step 8: Post-checks
	if err := c.postCheckInvariants(evt); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 9: Emit outputs. Persistence uses a BLOCKING send — the core
	// stalls until the persistence worker drains, so no event is lost.
	// Projections use a NON-BLOCKING send and drop on full; projection
	// workers rebuild from the event log if they fall behind.
	c.persistChan <- output

	select {
	case c.projectionChan <- output:
	default:
		// Silently dropped — projection will catch up via rebuild
	}

	// Step 10: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(eventType, idempotencyKey)

	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
	}

	return nil
}

// getPartition determines partition key for sequence validation
func (c *DeterministicCore) getPartition(evt event.Event) string {
	if pair := evt.Pair(); pair != nil {
		return fmt.Sprintf("pair:%s", *pair)
	}
	return "global"
}

func (c *DeterministicCore) books(pair string) (*PairBooks, error) {
	books, ok := c.pairs[pair]
	if !ok {
		return nil, fmt.Errorf("unknown pair: %s", pair)
	}
	return books, nil
}

func (c *DeterministicCore) emptyBatch(evt event.Event) *ledger.Batch {
	return &ledger.Batch{
		BatchID:   uuid.New(),
		EventRef:  evt.IdempotencyKey(),
		Sequence:  c.sequence,
		Timestamp: evt.Timestamp(),
	}
}

// computeStateDigest creates canonical bytes for state hash
func (c *DeterministicCore) computeStateDigest(batch *ledger.Batch) []byte {
	// Collect all affected accounts
	affectedAccounts := make(map[ledger.AccountKey]bool)

	if batch != nil {
		for _, j := range batch.Journals {
			affectedAccounts[j.DebitAccount] = true
			affectedAccounts[j.CreditAccount] = true
		}
	}

	// Sort accounts deterministically
	accounts := make([]ledger.AccountKey, 0, len(affectedAccounts))
	for key := range affectedAccounts {
		accounts = append(accounts, key)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	digest := make([]byte, 0, len(accounts)*64)
	for _, key := range accounts {
		balance := c.balanceTracker.GetBalance(key)

		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = appendInt64LE(digest, balance)
	}

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants validates invariants after batch application
func (c *DeterministicCore) postCheckInvariants(evt event.Event) error {
	switch e := evt.(type) {
	case *event.CashWithdrawalRequested:
		assetID, _ := ledger.GetAssetID(e.Asset)
		if err := c.validator.ValidateUserCashNonNegative(e.UserID, assetID); err != nil {
			return fmt.Errorf("post-check cash: %w", err)
		}

	case *event.OfferAmountUpdated:
		assetID, _ := ledger.GetAssetID(e.Asset)
		if err := c.validator.ValidateOfferPoolNonNegative(e.OfferID, assetID); err != nil {
			return fmt.Errorf("post-check offer pool: %w", err)
		}

	case *event.PositionOpened:
		assetID, _ := ledger.GetAssetID(e.CashAsset)
		if err := c.validator.ValidateUserCashNonNegative(e.Taker, assetID); err != nil {
			return fmt.Errorf("post-check taker cash: %w", err)
		}
		if err := c.validator.ValidateOfferPoolNonNegative(e.OfferID, assetID); err != nil {
			return fmt.Errorf("post-check offer pool: %w", err)
		}
		if err := c.validator.ValidatePositionAccountsNonNegative(e.PositionID, assetID); err != nil {
			return fmt.Errorf("post-check taker escrow: %w", err)
		}
		if err := c.validator.ValidatePositionAccountsNonNegative(e.ProviderPositionID, assetID); err != nil {
			return fmt.Errorf("post-check provider escrow: %w", err)
		}

	case *event.PositionSettled:
		books, err := c.books(e.PairName)
		if err != nil {
			return err
		}
		pos, err := books.Taker.GetPosition(e.PositionID)
		if err != nil {
			return err
		}
		assetID, _ := ledger.GetAssetID(pos.CashAsset)
		if err := c.validator.ValidatePositionAccountsNonNegative(pos.ID, assetID); err != nil {
			return fmt.Errorf("post-check taker accounts: %w", err)
		}
		if err := c.validator.ValidatePositionAccountsNonNegative(pos.ProviderPositionID, assetID); err != nil {
			return fmt.Errorf("post-check provider accounts: %w", err)
		}

	case *event.RollExecuted:
		assetID, _ := ledger.GetAssetID(e.Asset)
		if err := c.validator.ValidatePositionAccountsNonNegative(e.NewPositionID, assetID); err != nil {
			return fmt.Errorf("post-check new taker escrow: %w", err)
		}
		if err := c.validator.ValidatePositionAccountsNonNegative(e.NewProviderPositionID, assetID); err != nil {
			return fmt.Errorf("post-check new provider escrow: %w", err)
		}
	}

	// Periodic global zero-sum check
	if c.sequence > 0 && c.sequence%1000 == 0 {
		totals := c.balanceTracker.ComputeGlobalBalance()
		for assetID, total := range totals {
			if total != 0 {
				return fmt.Errorf("global balance non-zero for asset %d: %d (at seq %d)",
					assetID, total, c.sequence)
			}
		}
	}

	return nil
}

func (c *DeterministicCore) dispatchEvent(evt event.Event) (*ledger.Batch, *ProjectionRecord, error) {
	switch e := evt.(type) {
	case *event.CashDeposited:
		batch, err := c.handleCashDeposited(e)
		return batch, nil, err
	case *event.CashWithdrawalRequested:
		batch, err := c.handleCashWithdrawal(e)
		return batch, nil, err
	case *event.OfferCreated:
		return c.handleOfferCreated(e)
	case *event.OfferAmountUpdated:
		return c.handleOfferAmountUpdated(e)
	case *event.PositionOpened:
		return c.handlePositionOpened(e)
	case *event.PositionSettled:
		return c.handlePositionSettled(e)
	case *event.PositionWithdrawn:
		return c.handlePositionWithdrawn(e)
	case *event.ProviderWithdrawn:
		batch, err := c.handleProviderWithdrawn(e)
		return batch, nil, err
	case *event.PositionCanceled:
		return c.handlePositionCanceled(e)
	case *event.RollOfferCreated:
		batch, err := c.handleRollOfferCreated(e)
		return batch, nil, err
	case *event.RollOfferCanceled:
		batch, err := c.handleRollOfferCanceled(e)
		return batch, nil, err
	case *event.RollExecuted:
		return c.handleRollExecuted(e)
	case *event.OraclePriceUpdate:
		batch, err := c.handleOraclePriceUpdate(e)
		return batch, nil, err
	default:
		return nil, nil, fmt.Errorf("unknown event type: %T", evt)
	}
}

func (c *DeterministicCore) handleCashDeposited(evt *event.CashDeposited) (*ledger.Batch, error) {
	assetID, ok := ledger.GetAssetID(evt.Asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", evt.Asset)
	}
	return c.journalGen.GenerateCashDeposited(evt, assetID)
}

func (c *DeterministicCore) handleCashWithdrawal(evt *event.CashWithdrawalRequested) (*ledger.Batch, error) {
	assetID, ok := ledger.GetAssetID(evt.Asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", evt.Asset)
	}
	return c.journalGen.GenerateCashWithdrawal(evt, assetID)
}

// handleOfferCreated funds the pool and registers the offer terms. The cash
// pre-check runs in the generator BEFORE the collar book mutates, so an
// underfunded provider rejects cleanly.
func (c *DeterministicCore) handleOfferCreated(evt *event.OfferCreated) (*ledger.Batch, *ProjectionRecord, error) {
	assetID, ok := ledger.GetAssetID(evt.Asset)
	if !ok {
		return nil, nil, fmt.Errorf("unknown asset: %s", evt.Asset)
	}
	books, err := c.books(evt.PairName)
	if err != nil {
		return nil, nil, err
	}

	batch, err := c.journalGen.GenerateOfferFunded(evt, assetID)
	if err != nil {
		return nil, nil, err
	}
	offer, err := books.Provider.CreateOffer(
		evt.OfferID, evt.Provider,
		evt.PutStrikeDeviation, evt.CallStrikeDeviation,
		evt.Amount, evt.DurationSeconds,
	)
	if err != nil {
		return nil, nil, err
	}
	return batch, &ProjectionRecord{Offer: offerRow(offer, evt.Asset)}, nil
}

func (c *DeterministicCore) handleOfferAmountUpdated(evt *event.OfferAmountUpdated) (*ledger.Batch, *ProjectionRecord, error) {
	assetID, ok := ledger.GetAssetID(evt.Asset)
	if !ok {
		return nil, nil, fmt.Errorf("unknown asset: %s", evt.Asset)
	}
	books, err := c.books(evt.PairName)
	if err != nil {
		return nil, nil, err
	}

	batch, err := c.journalGen.GenerateOfferAmountUpdated(evt, assetID)
	if err != nil {
		return nil, nil, err
	}
	offer, err := books.Provider.UpdateOfferAmount(evt.OfferID, evt.Caller, evt.Delta)
	if err != nil {
		return nil, nil, err
	}
	return batch, &ProjectionRecord{Offer: offerRow(offer, evt.Asset)}, nil
}

func (c *DeterministicCore) handlePositionOpened(evt *event.PositionOpened) (*ledger.Batch, *ProjectionRecord, error) {
	assetID, ok := ledger.GetAssetID(evt.CashAsset)
	if !ok {
		return nil, nil, fmt.Errorf("unknown asset: %s", evt.CashAsset)
	}
	books, err := c.books(evt.PairName)
	if err != nil {
		return nil, nil, err
	}

	// Cash sufficiency BEFORE the collar books mutate: a taker that cannot
	// fund the escrow must not consume offer liquidity.
	if err := c.balanceTracker.ValidateSufficientCash(evt.Taker, assetID, evt.TakerLocked); err != nil {
		return nil, nil, fmt.Errorf("open pre-check failed: %w", err)
	}

	outcome, err := books.Taker.OpenPairedPosition(
		evt.PositionID, evt.ProviderPositionID, evt.Taker, evt.TakerLocked,
		books.Provider.ID(), evt.OfferID, evt.CashAsset, evt.Underlying,
		evt.EventTime,
	)
	if err != nil {
		return nil, nil, err
	}

	batch, err := c.journalGen.GeneratePositionOpened(
		evt.IdempotencyKey(), evt.Taker,
		evt.PositionID, evt.ProviderPositionID, evt.OfferID,
		evt.TakerLocked, outcome.Taker.ProviderLocked,
		assetID, evt.EventTime,
	)
	if err != nil {
		return nil, nil, err
	}
	return batch, &ProjectionRecord{
		Position: positionRow(outcome.Taker, PositionStatusOpen),
		Offer:    offerRow(outcome.Offer, evt.CashAsset),
	}, nil
}

func (c *DeterministicCore) handlePositionSettled(evt *event.PositionSettled) (*ledger.Batch, *ProjectionRecord, error) {
	books, err := c.books(evt.PairName)
	if err != nil {
		return nil, nil, err
	}

	outcome, err := books.Taker.SettlePairedPosition(evt.PositionID, evt.EventTime)
	if err != nil {
		return nil, nil, err
	}
	assetID, ok := ledger.GetAssetID(outcome.Taker.CashAsset)
	if !ok {
		return nil, nil, fmt.Errorf("unknown asset: %s", outcome.Taker.CashAsset)
	}

	batch, err := c.journalGen.GenerateSettlement(
		evt.IdempotencyKey(),
		outcome.Taker.ID, outcome.Provider.ID,
		outcome.Taker.TakerLocked, outcome.Taker.ProviderLocked,
		outcome.TakerWithdrawable, outcome.ProviderDelta,
		assetID, evt.EventTime,
	)
	if err != nil {
		return nil, nil, err
	}
	return batch, &ProjectionRecord{
		Position: positionRow(outcome.Taker, PositionStatusSettled),
		Settlement: &SettlementRow{
			PositionID:         outcome.Taker.ID,
			ProviderPositionID: outcome.Provider.ID,
			Pair:               evt.PairName,
			EndPrice:           outcome.EndPrice,
			HistoricalPrice:    outcome.Historical,
			TakerWithdrawable:  outcome.TakerWithdrawable,
			ProviderDelta:      outcome.ProviderDelta,
		},
	}, nil
}

func (c *DeterministicCore) handlePositionWithdrawn(evt *event.PositionWithdrawn) (*ledger.Batch, *ProjectionRecord, error) {
	assetID, ok := ledger.GetAssetID(evt.Asset)
	if !ok {
		return nil, nil, fmt.Errorf("unknown asset: %s", evt.Asset)
	}
	books, err := c.books(evt.PairName)
	if err != nil {
		return nil, nil, err
	}

	amount, err := books.Taker.WithdrawFromSettled(evt.PositionID, evt.Caller)
	if err != nil {
		return nil, nil, err
	}
	record := &ProjectionRecord{
		PositionMark: &PositionMark{PositionID: evt.PositionID, Status: PositionStatusWithdrawn},
	}
	// A total-loss position has a zero claim; the token still burns and the
	// event still chains, but there is nothing to journal.
	if amount == 0 {
		return c.emptyBatch(evt), record, nil
	}

	batch, err := c.journalGen.GenerateTakerWithdrawal(
		evt.IdempotencyKey(), evt.PositionID, evt.Caller, amount, assetID, evt.EventTime)
	if err != nil {
		return nil, nil, err
	}
	return batch, record, nil
}

func (c *DeterministicCore) handleProviderWithdrawn(evt *event.ProviderWithdrawn) (*ledger.Batch, error) {
	assetID, ok := ledger.GetAssetID(evt.Asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", evt.Asset)
	}
	books, err := c.books(evt.PairName)
	if err != nil {
		return nil, err
	}

	amount, err := books.Provider.WithdrawSettled(evt.PositionID, evt.Caller)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return c.emptyBatch(evt), nil
	}

	return c.journalGen.GenerateProviderWithdrawal(
		evt.IdempotencyKey(), evt.PositionID, evt.Caller, amount, assetID, evt.EventTime)
}

func (c *DeterministicCore) handlePositionCanceled(evt *event.PositionCanceled) (*ledger.Batch, *ProjectionRecord, error) {
	assetID, ok := ledger.GetAssetID(evt.Asset)
	if !ok {
		return nil, nil, fmt.Errorf("unknown asset: %s", evt.Asset)
	}
	books, err := c.books(evt.PairName)
	if err != nil {
		return nil, nil, err
	}

	// The cancel destroys the pair; capture the provider-side id first.
	pos, err := books.Taker.GetPosition(evt.PositionID)
	if err != nil {
		return nil, nil, err
	}
	providerPositionID := pos.ProviderPositionID

	outcome, err := books.Taker.CancelPairedPosition(evt.PositionID, evt.Caller)
	if err != nil {
		return nil, nil, err
	}

	batch, err := c.journalGen.GenerateCancel(
		evt.IdempotencyKey(),
		evt.PositionID, providerPositionID, evt.Caller,
		outcome.TakerRefund, outcome.ProviderRefund,
		assetID, evt.EventTime,
	)
	if err != nil {
		return nil, nil, err
	}
	return batch, &ProjectionRecord{
		PositionMark: &PositionMark{PositionID: evt.PositionID, Status: PositionStatusCanceled},
	}, nil
}

func (c *DeterministicCore) handleRollOfferCreated(evt *event.RollOfferCreated) (*ledger.Batch, error) {
	books, err := c.books(evt.PairName)
	if err != nil {
		return nil, err
	}

	if _, err := books.Taker.CreateRollOffer(
		evt.RollOfferID, evt.Caller, evt.PositionID,
		evt.RollFee, evt.FeeDeltaFactorBips,
		evt.MinPrice, evt.MaxPrice, evt.MinToProvider,
		evt.DeadlineMicros, evt.EventTime,
	); err != nil {
		return nil, err
	}
	// Terms only; cash moves at execution.
	return c.emptyBatch(evt), nil
}

func (c *DeterministicCore) handleRollOfferCanceled(evt *event.RollOfferCanceled) (*ledger.Batch, error) {
	books, err := c.books(evt.PairName)
	if err != nil {
		return nil, err
	}

	if _, err := books.Taker.CancelRollOffer(evt.RollOfferID, evt.Caller); err != nil {
		return nil, err
	}
	return c.emptyBatch(evt), nil
}

func (c *DeterministicCore) handleRollExecuted(evt *event.RollExecuted) (*ledger.Batch, *ProjectionRecord, error) {
	assetID, ok := ledger.GetAssetID(evt.Asset)
	if !ok {
		return nil, nil, fmt.Errorf("unknown asset: %s", evt.Asset)
	}
	books, err := c.books(evt.PairName)
	if err != nil {
		return nil, nil, err
	}

	// Preview the transfer against current state for the cash pre-checks;
	// ExecuteRoll recomputes identically before mutating.
	ro, err := books.Taker.Rolls().Get(evt.RollOfferID)
	if err != nil {
		return nil, nil, err
	}
	oldPos, err := books.Taker.GetPosition(ro.TakerPositionID)
	if err != nil {
		return nil, nil, err
	}
	providerOwner, err := books.Provider.Tokens().OwnerOf(oldPos.ProviderPositionID)
	if err != nil {
		return nil, nil, err
	}
	price, err := books.Oracle.CurrentPrice()
	if err != nil {
		return nil, nil, fmt.Errorf("oracle read failed: %w", err)
	}
	preview, err := books.Taker.CalculateTransferAmounts(evt.RollOfferID, price)
	if err != nil {
		return nil, nil, err
	}
	if preview.ToTaker < 0 {
		if err := c.balanceTracker.ValidateSufficientCash(evt.Caller, assetID, -preview.ToTaker); err != nil {
			return nil, nil, fmt.Errorf("roll taker pre-check failed: %w", err)
		}
	}
	if preview.ToProvider < 0 {
		if err := c.balanceTracker.ValidateSufficientCash(providerOwner, assetID, -preview.ToProvider); err != nil {
			return nil, nil, fmt.Errorf("roll provider pre-check failed: %w", err)
		}
	}

	oldTakerLocked := oldPos.TakerLocked
	oldProviderLocked := oldPos.ProviderLocked

	outcome, err := books.Taker.ExecuteRoll(
		evt.RollOfferID, evt.Caller, evt.ExpectedToTaker,
		evt.NewPositionID, evt.NewProviderPositionID, evt.EventTime,
	)
	if err != nil {
		return nil, nil, err
	}

	batch, err := c.journalGen.GenerateRoll(ledger.RollJournalParams{
		EventRef:              evt.IdempotencyKey(),
		OldTakerPositionID:    outcome.OldTaker,
		OldProviderPositionID: outcome.OldProvider,
		NewTakerPositionID:    outcome.NewTaker.ID,
		NewProviderPositionID: outcome.NewProvider.ID,
		TakerOwner:            evt.Caller,
		ProviderOwner:         providerOwner,
		OldTakerLocked:        oldTakerLocked,
		OldProviderLocked:     oldProviderLocked,
		Transfer:              outcome.Transfer,
		AssetID:               assetID,
		Timestamp:             evt.EventTime,
	})
	if err != nil {
		return nil, nil, err
	}
	return batch, &ProjectionRecord{
		Position:     positionRow(outcome.NewTaker, PositionStatusOpen),
		PositionMark: &PositionMark{PositionID: outcome.OldTaker, Status: PositionStatusRolled},
		Roll: &RollRow{
			RollOfferID:       evt.RollOfferID,
			OldPositionID:     outcome.OldTaker,
			NewPositionID:     outcome.NewTaker.ID,
			Pair:              evt.PairName,
			Price:             outcome.Price,
			ToTaker:           outcome.Transfer.ToTaker,
			ToProvider:        outcome.Transfer.ToProvider,
			Fee:               outcome.Transfer.Fee,
			NewTakerLocked:    outcome.Transfer.NewTakerLocked,
			NewProviderLocked: outcome.Transfer.NewProviderLocked,
		},
	}, nil
}

func (c *DeterministicCore) handleOraclePriceUpdate(evt *event.OraclePriceUpdate) (*ledger.Batch, error) {
	books, err := c.books(evt.PairName)
	if err != nil {
		return nil, err
	}

	if err := books.Oracle.Record(evt.Price, evt.EventTime); err != nil {
		return nil, fmt.Errorf("price rejected: %w", err)
	}
	return c.emptyBatch(evt), nil
}

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the serializable in-memory state for restore.
// This mirrors persistence.SnapshotData but uses typed fields.
type SnapshotState struct {
	Sequence           int64
	StateHash          [32]byte
	Balances           map[ledger.AccountKey]int64
	Offers             map[string][]*collar.LiquidityOffer
	TakerPositions     map[string][]*collar.TakerPosition
	ProviderPositions  map[string][]*collar.ProviderPosition
	RollOffers         map[string][]*collar.RollOffer
	TakerTokens        map[string]map[uuid.UUID]uuid.UUID
	ProviderTokens     map[string]map[uuid.UUID]uuid.UUID
	OracleObservations map[string][]oracle.Observation
	SequenceState      map[string]int64
	IdempotencyKeys    []string
}

// RestoreFromSnapshot restores the core's in-memory state from a snapshot.
// On warm restart, load the latest snapshot then replay newer events.
func (c *DeterministicCore) RestoreFromSnapshot(snap *SnapshotState) {
	c.sequence = snap.Sequence + 1 // Next sequence to assign
	c.hasher.SetPrevHash(snap.StateHash)
	c.balanceTracker.Restore(snap.Balances)

	for pair, books := range c.pairs {
		for _, offer := range snap.Offers[pair] {
			books.Provider.RestoreOffer(offer)
		}
		for _, pos := range snap.TakerPositions[pair] {
			books.Taker.RestorePosition(pos)
		}
		for _, pos := range snap.ProviderPositions[pair] {
			books.Provider.RestorePosition(pos)
		}
		for _, ro := range snap.RollOffers[pair] {
			books.Taker.Rolls().Restore(ro)
		}
		if entries, ok := snap.TakerTokens[pair]; ok {
			books.Taker.Tokens().Restore(entries)
		}
		if entries, ok := snap.ProviderTokens[pair]; ok {
			books.Provider.Tokens().Restore(entries)
		}
		if obs, ok := snap.OracleObservations[pair]; ok {
			books.Oracle.Restore(obs)
		}
	}

	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.SetExpectedSequence(partition, nextSeq)
	}

	c.journalGen.SetSequence(snap.Sequence)
}

// WarmLRU loads recent idempotency keys into the LRU cache, avoiding
// cold-path DB lookups for recently processed events.
func (c *DeterministicCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// GetSequence returns the current global sequence number.
func (c *DeterministicCore) GetSequence() int64 {
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (c *DeterministicCore) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// GetBalanceTracker exposes balances for the query side.
func (c *DeterministicCore) GetBalanceTracker() *ledger.BalanceTracker {
	return c.balanceTracker
}

// GetPairBooks returns the books for one pair (query side).
func (c *DeterministicCore) GetPairBooks(pair string) (*PairBooks, bool) {
	books, ok := c.pairs[pair]
	return books, ok
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *DeterministicCore) CreateSnapshotState() *SnapshotState {
	snap := &SnapshotState{
		Sequence:           c.sequence - 1, // Last processed sequence
		StateHash:          c.hasher.GetPrevHash(),
		Balances:           c.balanceTracker.Snapshot(),
		Offers:             make(map[string][]*collar.LiquidityOffer, len(c.pairs)),
		TakerPositions:     make(map[string][]*collar.TakerPosition, len(c.pairs)),
		ProviderPositions:  make(map[string][]*collar.ProviderPosition, len(c.pairs)),
		RollOffers:         make(map[string][]*collar.RollOffer, len(c.pairs)),
		TakerTokens:        make(map[string]map[uuid.UUID]uuid.UUID, len(c.pairs)),
		ProviderTokens:     make(map[string]map[uuid.UUID]uuid.UUID, len(c.pairs)),
		OracleObservations: make(map[string][]oracle.Observation, len(c.pairs)),
		SequenceState:      c.sequenceValidator.GetAllPartitions(),
		IdempotencyKeys:    c.idempotency.lru.GetAllKeys(),
	}

	for pair, books := range c.pairs {
		snap.Offers[pair] = books.Provider.AllOffers()
		snap.TakerPositions[pair] = books.Taker.AllPositions()
		snap.ProviderPositions[pair] = books.Provider.AllPositions()
		snap.RollOffers[pair] = books.Taker.Rolls().All()
		snap.TakerTokens[pair] = books.Taker.Tokens().Snapshot()
		snap.ProviderTokens[pair] = books.Provider.Tokens().Snapshot()
		snap.OracleObservations[pair] = books.Oracle.Snapshot()
	}

	return snap
}
