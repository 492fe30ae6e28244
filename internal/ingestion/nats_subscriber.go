package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSSubscriber subscribes to NATS JetStream subjects and feeds events
// into the deterministic core via the eventChan. NATS JetStream is the
// primary high-throughput ingestion surface; each subject maps to one
// event type.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
}

// RawEvent is the parsed-but-untyped event from NATS, ready for the shell
// to validate and convert into a typed event.Event before sending to the core.
type RawEvent struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after successful processing
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// SubjectConfig maps NATS subjects to event types.
type SubjectConfig struct {
	Subject      string
	EventType    string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject configuration. Each event
// type has its own subject for independent scaling.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "collar.cash.deposits.>", EventType: "CashDeposited", ConsumerName: "ledger-cash-deposits", StreamName: "COLLAR_CASH"},
		{Subject: "collar.cash.withdrawals.>", EventType: "CashWithdrawalRequested", ConsumerName: "ledger-cash-withdrawals", StreamName: "COLLAR_CASH"},
		{Subject: "collar.offers.created.>", EventType: "OfferCreated", ConsumerName: "ledger-offers-created", StreamName: "COLLAR_OFFERS"},
		{Subject: "collar.offers.updated.>", EventType: "OfferAmountUpdated", ConsumerName: "ledger-offers-updated", StreamName: "COLLAR_OFFERS"},
		{Subject: "collar.positions.opened.>", EventType: "PositionOpened", ConsumerName: "ledger-pos-opened", StreamName: "COLLAR_POSITIONS"},
		{Subject: "collar.positions.settled.>", EventType: "PositionSettled", ConsumerName: "ledger-pos-settled", StreamName: "COLLAR_POSITIONS"},
		{Subject: "collar.positions.withdrawn.>", EventType: "PositionWithdrawn", ConsumerName: "ledger-pos-withdrawn", StreamName: "COLLAR_POSITIONS"},
		{Subject: "collar.positions.provider_withdrawn.>", EventType: "ProviderWithdrawn", ConsumerName: "ledger-pos-prov-withdrawn", StreamName: "COLLAR_POSITIONS"},
		{Subject: "collar.positions.canceled.>", EventType: "PositionCanceled", ConsumerName: "ledger-pos-canceled", StreamName: "COLLAR_POSITIONS"},
		{Subject: "collar.rolls.created.>", EventType: "RollOfferCreated", ConsumerName: "ledger-rolls-created", StreamName: "COLLAR_ROLLS"},
		{Subject: "collar.rolls.canceled.>", EventType: "RollOfferCanceled", ConsumerName: "ledger-rolls-canceled", StreamName: "COLLAR_ROLLS"},
		{Subject: "collar.rolls.executed.>", EventType: "RollExecuted", ConsumerName: "ledger-rolls-executed", StreamName: "COLLAR_ROLLS"},
		{Subject: "collar.prices.>", EventType: "OraclePriceUpdate", ConsumerName: "ledger-prices", StreamName: "COLLAR_PRICES"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawEvent{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.eventChan <- raw:
				// Successfully queued for processing
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject, cfg.ConsumerName)
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "COLLAR_CASH",
			Subjects:  []string{"collar.cash.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "COLLAR_OFFERS",
			Subjects:  []string{"collar.offers.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "COLLAR_POSITIONS",
			Subjects:  []string{"collar.positions.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "COLLAR_ROLLS",
			Subjects:  []string{"collar.rolls.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "COLLAR_PRICES",
			Subjects:  []string{"collar.prices.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	log.Println("INFO: NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
