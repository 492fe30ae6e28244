package ingestion_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"CollarLedger/internal/event"
	"CollarLedger/internal/ingestion"
	"CollarLedger/internal/testutil"
)

// TestNATS_DepositRoundTrip publishes a deposit onto JetStream and drives it
// through the subscriber and parser, the same path the ingestion loop runs.
func TestNATS_DepositRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)

	nc, js, err := ingestion.ConnectNATS(testutil.TestNATSURL())
	if err != nil {
		t.Skipf("test NATS not available: %v (start with: docker compose -f docker-compose.test.yml up -d)", err)
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		t.Fatalf("EnsureStreams: %v", err)
	}

	eventChan := make(chan ingestion.RawEvent, 16)
	sub := ingestion.NewNATSSubscriber(js, eventChan)

	// A per-run consumer name keeps redelivery state from earlier runs out.
	cfg := ingestion.SubjectConfig{
		Subject:      "collar.cash.deposits.>",
		EventType:    "CashDeposited",
		ConsumerName: "test-deposits-" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		StreamName:   "COLLAR_CASH",
	}
	if err := sub.Subscribe(ctx, []ingestion.SubjectConfig{cfg}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Stop()

	depositID := uuid.New()
	userID := uuid.New()
	payload, err := json.Marshal(map[string]interface{}{
		"deposit_id":   depositID.String(),
		"user_id":      userID.String(),
		"asset":        "USDC",
		"amount":       int64(1_000_000),
		"sequence":     int64(1),
		"timestamp_us": time.Now().UnixMicro(),
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	subject := fmt.Sprintf("collar.cash.deposits.%s", userID)
	if _, err := js.Publish(ctx, subject, payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// The stream retains earlier test traffic; drain until our deposit shows up.
	for {
		var raw ingestion.RawEvent
		select {
		case raw = <-eventChan:
		case <-ctx.Done():
			t.Fatal("timed out waiting for the published deposit")
		}
		raw.AckFunc()

		evt, err := ingestion.ParseRawEvent(raw, cfg.EventType)
		if err != nil {
			t.Fatalf("ParseRawEvent: %v", err)
		}
		deposited, ok := evt.(*event.CashDeposited)
		if !ok {
			t.Fatalf("got %T, want *event.CashDeposited", evt)
		}
		if deposited.DepositID != depositID {
			continue
		}
		if deposited.UserID != userID {
			t.Errorf("user: got %s, want %s", deposited.UserID, userID)
		}
		if deposited.Asset != "USDC" || deposited.Amount != 1_000_000 {
			t.Errorf("payload did not round-trip: %+v", deposited)
		}
		if raw.Subject != subject {
			t.Errorf("subject: got %q, want %q", raw.Subject, subject)
		}
		return
	}
}
