package event

import "github.com/google/uuid"

// CashDeposited credits a user's cash balance from the external boundary.
// Idempotency key: deposit_id assigned by the custody gateway.
type CashDeposited struct {
	DepositID uuid.UUID
	UserID    uuid.UUID
	Asset     string
	Amount    int64 // Fixed-point: cash scale
	Sequence  int64
	EventTime int64 // Epoch microseconds
}

func (d *CashDeposited) IdempotencyKey() string {
	return d.DepositID.String()
}

func (d *CashDeposited) EventType() EventType {
	return EventTypeCashDeposited
}

func (d *CashDeposited) Pair() *string {
	return nil // Global event
}

func (d *CashDeposited) SourceSequence() int64 {
	return d.Sequence
}

func (d *CashDeposited) Timestamp() int64 {
	return d.EventTime
}

// CashWithdrawalRequested debits a user's cash to the external boundary.
// Rejected in-core when the available balance is insufficient.
type CashWithdrawalRequested struct {
	WithdrawalID uuid.UUID
	UserID       uuid.UUID
	Asset        string
	Amount       int64
	Sequence     int64
	EventTime    int64
}

func (w *CashWithdrawalRequested) IdempotencyKey() string {
	return w.WithdrawalID.String()
}

func (w *CashWithdrawalRequested) EventType() EventType {
	return EventTypeCashWithdrawalRequested
}

func (w *CashWithdrawalRequested) Pair() *string {
	return nil
}

func (w *CashWithdrawalRequested) SourceSequence() int64 {
	return w.Sequence
}

func (w *CashWithdrawalRequested) Timestamp() int64 {
	return w.EventTime
}
