package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"CollarLedger/internal/event"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The ingestion shell validates, parses, and converts raw
// events before sending them to the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "CashDeposited":
		return parseCashDeposited(raw.Data)
	case "CashWithdrawalRequested":
		return parseCashWithdrawalRequested(raw.Data)
	case "OfferCreated":
		return parseOfferCreated(raw.Data)
	case "OfferAmountUpdated":
		return parseOfferAmountUpdated(raw.Data)
	case "PositionOpened":
		return parsePositionOpened(raw.Data)
	case "PositionSettled":
		return parsePositionSettled(raw.Data)
	case "PositionWithdrawn":
		return parsePositionWithdrawn(raw.Data)
	case "ProviderWithdrawn":
		return parseProviderWithdrawn(raw.Data)
	case "PositionCanceled":
		return parsePositionCanceled(raw.Data)
	case "RollOfferCreated":
		return parseRollOfferCreated(raw.Data)
	case "RollOfferCanceled":
		return parseRollOfferCanceled(raw.Data)
	case "RollExecuted":
		return parseRollExecuted(raw.Data)
	case "OraclePriceUpdate":
		return parseOraclePriceUpdate(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type cashJSON struct {
	DepositID    string `json:"deposit_id,omitempty"`
	WithdrawalID string `json:"withdrawal_id,omitempty"`
	UserID       string `json:"user_id"`
	Asset        string `json:"asset"`
	Amount       int64  `json:"amount"`
	Sequence     int64  `json:"sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseCashDeposited(data []byte) (*event.CashDeposited, error) {
	var j cashJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CashDeposited: %w", err)
	}
	depositID, err := uuid.Parse(j.DepositID)
	if err != nil {
		return nil, fmt.Errorf("parse deposit_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return &event.CashDeposited{
		DepositID: depositID,
		UserID:    userID,
		Asset:     j.Asset,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		EventTime: j.TimestampUs,
	}, nil
}

func parseCashWithdrawalRequested(data []byte) (*event.CashWithdrawalRequested, error) {
	var j cashJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CashWithdrawalRequested: %w", err)
	}
	withdrawalID, err := uuid.Parse(j.WithdrawalID)
	if err != nil {
		return nil, fmt.Errorf("parse withdrawal_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return &event.CashWithdrawalRequested{
		WithdrawalID: withdrawalID,
		UserID:       userID,
		Asset:        j.Asset,
		Amount:       j.Amount,
		Sequence:     j.Sequence,
		EventTime:    j.TimestampUs,
	}, nil
}

type offerCreatedJSON struct {
	OfferID             string `json:"offer_id"`
	Provider            string `json:"provider"`
	Pair                string `json:"pair"`
	Asset               string `json:"asset"`
	Amount              int64  `json:"amount"`
	PutStrikeDeviation  int64  `json:"put_strike_deviation"`
	CallStrikeDeviation int64  `json:"call_strike_deviation"`
	DurationSeconds     int64  `json:"duration_seconds"`
	Sequence            int64  `json:"sequence"`
	TimestampUs         int64  `json:"timestamp_us"`
}

func parseOfferCreated(data []byte) (*event.OfferCreated, error) {
	var j offerCreatedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OfferCreated: %w", err)
	}
	offerID, err := uuid.Parse(j.OfferID)
	if err != nil {
		return nil, fmt.Errorf("parse offer_id: %w", err)
	}
	provider, err := uuid.Parse(j.Provider)
	if err != nil {
		return nil, fmt.Errorf("parse provider: %w", err)
	}
	return &event.OfferCreated{
		OfferID:             offerID,
		Provider:            provider,
		PairName:            j.Pair,
		Asset:               j.Asset,
		Amount:              j.Amount,
		PutStrikeDeviation:  j.PutStrikeDeviation,
		CallStrikeDeviation: j.CallStrikeDeviation,
		DurationSeconds:     j.DurationSeconds,
		Sequence:            j.Sequence,
		EventTime:           j.TimestampUs,
	}, nil
}

type offerUpdatedJSON struct {
	UpdateID    string `json:"update_id"`
	OfferID     string `json:"offer_id"`
	Caller      string `json:"caller"`
	Pair        string `json:"pair"`
	Asset       string `json:"asset"`
	Delta       int64  `json:"delta"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseOfferAmountUpdated(data []byte) (*event.OfferAmountUpdated, error) {
	var j offerUpdatedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OfferAmountUpdated: %w", err)
	}
	updateID, err := uuid.Parse(j.UpdateID)
	if err != nil {
		return nil, fmt.Errorf("parse update_id: %w", err)
	}
	offerID, err := uuid.Parse(j.OfferID)
	if err != nil {
		return nil, fmt.Errorf("parse offer_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	return &event.OfferAmountUpdated{
		UpdateID:  updateID,
		OfferID:   offerID,
		Caller:    caller,
		PairName:  j.Pair,
		Asset:     j.Asset,
		Delta:     j.Delta,
		Sequence:  j.Sequence,
		EventTime: j.TimestampUs,
	}, nil
}

type positionOpenedJSON struct {
	PositionID         string `json:"position_id"`
	ProviderPositionID string `json:"provider_position_id"`
	Taker              string `json:"taker"`
	Pair               string `json:"pair"`
	CashAsset          string `json:"cash_asset"`
	Underlying         string `json:"underlying"`
	OfferID            string `json:"offer_id"`
	TakerLocked        int64  `json:"taker_locked"`
	Sequence           int64  `json:"sequence"`
	TimestampUs        int64  `json:"timestamp_us"`
}

func parsePositionOpened(data []byte) (*event.PositionOpened, error) {
	var j positionOpenedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PositionOpened: %w", err)
	}
	positionID, err := uuid.Parse(j.PositionID)
	if err != nil {
		return nil, fmt.Errorf("parse position_id: %w", err)
	}
	providerPositionID, err := uuid.Parse(j.ProviderPositionID)
	if err != nil {
		return nil, fmt.Errorf("parse provider_position_id: %w", err)
	}
	taker, err := uuid.Parse(j.Taker)
	if err != nil {
		return nil, fmt.Errorf("parse taker: %w", err)
	}
	offerID, err := uuid.Parse(j.OfferID)
	if err != nil {
		return nil, fmt.Errorf("parse offer_id: %w", err)
	}
	return &event.PositionOpened{
		PositionID:         positionID,
		ProviderPositionID: providerPositionID,
		Taker:              taker,
		PairName:           j.Pair,
		CashAsset:          j.CashAsset,
		Underlying:         j.Underlying,
		OfferID:            offerID,
		TakerLocked:        j.TakerLocked,
		Sequence:           j.Sequence,
		EventTime:          j.TimestampUs,
	}, nil
}

type positionActionJSON struct {
	RequestID   string `json:"request_id"`
	PositionID  string `json:"position_id"`
	Caller      string `json:"caller"`
	Pair        string `json:"pair"`
	Asset       string `json:"asset,omitempty"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parsePositionAction(data []byte, what string) (*positionActionJSON, uuid.UUID, uuid.UUID, uuid.UUID, error) {
	var j positionActionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, uuid.Nil, uuid.Nil, uuid.Nil, fmt.Errorf("parse %s: %w", what, err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, uuid.Nil, uuid.Nil, uuid.Nil, fmt.Errorf("parse request_id: %w", err)
	}
	positionID, err := uuid.Parse(j.PositionID)
	if err != nil {
		return nil, uuid.Nil, uuid.Nil, uuid.Nil, fmt.Errorf("parse position_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, uuid.Nil, uuid.Nil, uuid.Nil, fmt.Errorf("parse caller: %w", err)
	}
	return &j, requestID, positionID, caller, nil
}

func parsePositionSettled(data []byte) (*event.PositionSettled, error) {
	j, requestID, positionID, caller, err := parsePositionAction(data, "PositionSettled")
	if err != nil {
		return nil, err
	}
	return &event.PositionSettled{
		RequestID:  requestID,
		PositionID: positionID,
		Caller:     caller,
		PairName:   j.Pair,
		Sequence:   j.Sequence,
		EventTime:  j.TimestampUs,
	}, nil
}

func parsePositionWithdrawn(data []byte) (*event.PositionWithdrawn, error) {
	j, requestID, positionID, caller, err := parsePositionAction(data, "PositionWithdrawn")
	if err != nil {
		return nil, err
	}
	return &event.PositionWithdrawn{
		RequestID:  requestID,
		PositionID: positionID,
		Caller:     caller,
		PairName:   j.Pair,
		Asset:      j.Asset,
		Sequence:   j.Sequence,
		EventTime:  j.TimestampUs,
	}, nil
}

func parseProviderWithdrawn(data []byte) (*event.ProviderWithdrawn, error) {
	j, requestID, positionID, caller, err := parsePositionAction(data, "ProviderWithdrawn")
	if err != nil {
		return nil, err
	}
	return &event.ProviderWithdrawn{
		RequestID:  requestID,
		PositionID: positionID,
		Caller:     caller,
		PairName:   j.Pair,
		Asset:      j.Asset,
		Sequence:   j.Sequence,
		EventTime:  j.TimestampUs,
	}, nil
}

func parsePositionCanceled(data []byte) (*event.PositionCanceled, error) {
	j, requestID, positionID, caller, err := parsePositionAction(data, "PositionCanceled")
	if err != nil {
		return nil, err
	}
	return &event.PositionCanceled{
		RequestID:  requestID,
		PositionID: positionID,
		Caller:     caller,
		PairName:   j.Pair,
		Asset:      j.Asset,
		Sequence:   j.Sequence,
		EventTime:  j.TimestampUs,
	}, nil
}

type rollOfferCreatedJSON struct {
	RollOfferID        string `json:"roll_offer_id"`
	PositionID         string `json:"position_id"`
	Caller             string `json:"caller"`
	Pair               string `json:"pair"`
	RollFee            int64  `json:"roll_fee"`
	FeeDeltaFactorBips int64  `json:"fee_delta_factor_bips"`
	MinPrice           int64  `json:"min_price"`
	MaxPrice           int64  `json:"max_price"`
	MinToProvider      int64  `json:"min_to_provider"`
	DeadlineUs         int64  `json:"deadline_us"`
	Sequence           int64  `json:"sequence"`
	TimestampUs        int64  `json:"timestamp_us"`
}

func parseRollOfferCreated(data []byte) (*event.RollOfferCreated, error) {
	var j rollOfferCreatedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RollOfferCreated: %w", err)
	}
	rollOfferID, err := uuid.Parse(j.RollOfferID)
	if err != nil {
		return nil, fmt.Errorf("parse roll_offer_id: %w", err)
	}
	positionID, err := uuid.Parse(j.PositionID)
	if err != nil {
		return nil, fmt.Errorf("parse position_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	return &event.RollOfferCreated{
		RollOfferID:        rollOfferID,
		PositionID:         positionID,
		Caller:             caller,
		PairName:           j.Pair,
		RollFee:            j.RollFee,
		FeeDeltaFactorBips: j.FeeDeltaFactorBips,
		MinPrice:           j.MinPrice,
		MaxPrice:           j.MaxPrice,
		MinToProvider:      j.MinToProvider,
		DeadlineMicros:     j.DeadlineUs,
		Sequence:           j.Sequence,
		EventTime:          j.TimestampUs,
	}, nil
}

type rollOfferCanceledJSON struct {
	RequestID   string `json:"request_id"`
	RollOfferID string `json:"roll_offer_id"`
	Caller      string `json:"caller"`
	Pair        string `json:"pair"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseRollOfferCanceled(data []byte) (*event.RollOfferCanceled, error) {
	var j rollOfferCanceledJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RollOfferCanceled: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	rollOfferID, err := uuid.Parse(j.RollOfferID)
	if err != nil {
		return nil, fmt.Errorf("parse roll_offer_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	return &event.RollOfferCanceled{
		RequestID:   requestID,
		RollOfferID: rollOfferID,
		Caller:      caller,
		PairName:    j.Pair,
		Sequence:    j.Sequence,
		EventTime:   j.TimestampUs,
	}, nil
}

type rollExecutedJSON struct {
	RequestID             string `json:"request_id"`
	RollOfferID           string `json:"roll_offer_id"`
	Caller                string `json:"caller"`
	Pair                  string `json:"pair"`
	Asset                 string `json:"asset"`
	ExpectedToTaker       int64  `json:"expected_to_taker"`
	NewPositionID         string `json:"new_position_id"`
	NewProviderPositionID string `json:"new_provider_position_id"`
	Sequence              int64  `json:"sequence"`
	TimestampUs           int64  `json:"timestamp_us"`
}

func parseRollExecuted(data []byte) (*event.RollExecuted, error) {
	var j rollExecutedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RollExecuted: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	rollOfferID, err := uuid.Parse(j.RollOfferID)
	if err != nil {
		return nil, fmt.Errorf("parse roll_offer_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	newPositionID, err := uuid.Parse(j.NewPositionID)
	if err != nil {
		return nil, fmt.Errorf("parse new_position_id: %w", err)
	}
	newProviderPositionID, err := uuid.Parse(j.NewProviderPositionID)
	if err != nil {
		return nil, fmt.Errorf("parse new_provider_position_id: %w", err)
	}
	return &event.RollExecuted{
		RequestID:             requestID,
		RollOfferID:           rollOfferID,
		Caller:                caller,
		PairName:              j.Pair,
		Asset:                 j.Asset,
		ExpectedToTaker:       j.ExpectedToTaker,
		NewPositionID:         newPositionID,
		NewProviderPositionID: newProviderPositionID,
		Sequence:              j.Sequence,
		EventTime:             j.TimestampUs,
	}, nil
}

type oraclePriceJSON struct {
	Pair        string `json:"pair"`
	Price       int64  `json:"price"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseOraclePriceUpdate(data []byte) (*event.OraclePriceUpdate, error) {
	var j oraclePriceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OraclePriceUpdate: %w", err)
	}
	return &event.OraclePriceUpdate{
		PairName:  j.Pair,
		Price:     j.Price,
		Sequence:  j.Sequence,
		EventTime: j.TimestampUs,
	}, nil
}
