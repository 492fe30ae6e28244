package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"CollarLedger/internal/ingestion"
	"CollarLedger/internal/observability"
	"CollarLedger/internal/query"
)

// EventPublisher is the slice of jetstream.JetStream the command surface
// needs. Commands are validated, then published to the inbound subjects; the
// core consumes them through the same NATS path as any other producer.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// HTTPServer serves the command and query APIs plus the operational
// endpoints (/healthz, /readyz, /metrics).
type HTTPServer struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

// Deps holds the dependencies for the HTTP services.
type Deps struct {
	QueryService  *query.QueryService
	Publisher     EventPublisher
	HealthChecker *observability.HealthChecker
}

// commandRoute binds one command endpoint to its event type and the inbound
// subject the validated payload is published to. Pair-scoped subjects get the
// event's pair appended; global subjects a fixed "ingest" token so they match
// the stream wildcards.
type commandRoute struct {
	path      string
	eventType string
	subject   string
}

func commandRoutes() []commandRoute {
	return []commandRoute{
		{path: "/v1/cash/deposits", eventType: "CashDeposited", subject: "collar.cash.deposits"},
		{path: "/v1/cash/withdrawals", eventType: "CashWithdrawalRequested", subject: "collar.cash.withdrawals"},
		{path: "/v1/offers", eventType: "OfferCreated", subject: "collar.offers.created"},
		{path: "/v1/offers/update", eventType: "OfferAmountUpdated", subject: "collar.offers.updated"},
		{path: "/v1/positions/open", eventType: "PositionOpened", subject: "collar.positions.opened"},
		{path: "/v1/positions/settle", eventType: "PositionSettled", subject: "collar.positions.settled"},
		{path: "/v1/positions/withdraw", eventType: "PositionWithdrawn", subject: "collar.positions.withdrawn"},
		{path: "/v1/positions/provider-withdraw", eventType: "ProviderWithdrawn", subject: "collar.positions.provider_withdrawn"},
		{path: "/v1/positions/cancel", eventType: "PositionCanceled", subject: "collar.positions.canceled"},
		{path: "/v1/rolls", eventType: "RollOfferCreated", subject: "collar.rolls.created"},
		{path: "/v1/rolls/cancel", eventType: "RollOfferCanceled", subject: "collar.rolls.canceled"},
		{path: "/v1/rolls/execute", eventType: "RollExecuted", subject: "collar.rolls.executed"},
		{path: "/v1/prices", eventType: "OraclePriceUpdate", subject: "collar.prices"},
	}
}

// NewHTTPServer builds the router and wraps it in an http.Server.
func NewHTTPServer(addr string, deps *Deps) *HTTPServer {
	logger := observability.NewLogger("http")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Operational endpoints
	r.Get("/healthz", deps.HealthChecker.LivenessHandler)
	r.Get("/readyz", deps.HealthChecker.ReadinessHandler)
	r.Handle("/metrics", promhttp.Handler())

	// Command surface
	for _, route := range commandRoutes() {
		route := route
		r.Post(route.path, commandHandler(deps.Publisher, logger, route))
	}

	// Query surface
	r.Get("/v1/balances/{user}/{asset}", getBalanceHandler(deps.QueryService))
	r.Get("/v1/positions", listPositionsHandler(deps.QueryService))
	r.Get("/v1/positions/{id}", getPositionHandler(deps.QueryService))
	r.Get("/v1/offers/{pair}", listOffersHandler(deps.QueryService))
	r.Get("/v1/settlements/{pair}", listSettlementsHandler(deps.QueryService))
	r.Get("/v1/rolls/{pair}", listRollsHandler(deps.QueryService))
	r.Get("/v1/journal/{user}", journalHistoryHandler(deps.QueryService))

	// Admin surface
	r.Get("/v1/admin/integrity", integrityHandler(deps.QueryService))

	return &HTTPServer{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the HTTP server until Shutdown.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- command handlers ---

func commandHandler(pub EventPublisher, logger zerolog.Logger, route commandRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read body: "+err.Error())
			return
		}

		// Validate before publishing: a malformed command fails here with a
		// 400 instead of poisoning the stream.
		evt, err := ingestion.ParseRawEvent(ingestion.RawEvent{Data: body}, route.eventType)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		subject := route.subject
		if pair := evt.Pair(); pair != nil {
			subject = fmt.Sprintf("%s.%s", subject, *pair)
		} else {
			subject = subject + ".ingest"
		}

		if _, err := pub.Publish(r.Context(), subject, body); err != nil {
			logger.Error().Err(err).Str("subject", subject).Msg("command publish failed")
			writeError(w, http.StatusServiceUnavailable, "publish failed")
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":          "accepted",
			"idempotency_key": evt.IdempotencyKey(),
		})
	}
}

// --- query handlers ---

func getBalanceHandler(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(chi.URLParam(r, "user"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		resp, err := qs.GetBalance(r.Context(), userID, chi.URLParam(r, "asset"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listPositionsHandler(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taker, err := uuid.Parse(r.URL.Query().Get("taker"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "taker query parameter required")
			return
		}
		resp, err := qs.GetPositions(r.Context(), taker)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getPositionHandler(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		positionID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid position id")
			return
		}
		resp, err := qs.GetPosition(r.Context(), positionID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if resp == nil {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listOffersHandler(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := qs.GetOffers(r.Context(), chi.URLParam(r, "pair"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listSettlementsHandler(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryLimit(r, 100)
		var after *int64
		if v := r.URL.Query().Get("after_sequence"); v != "" {
			seq, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid after_sequence")
				return
			}
			after = &seq
		}
		resp, err := qs.GetSettlements(r.Context(), chi.URLParam(r, "pair"), limit, after)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listRollsHandler(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := qs.GetRolls(r.Context(), chi.URLParam(r, "pair"), queryLimit(r, 100))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func journalHistoryHandler(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(chi.URLParam(r, "user"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		var after *int64
		if v := r.URL.Query().Get("after_sequence"); v != "" {
			seq, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid after_sequence")
				return
			}
			after = &seq
		}
		resp, err := qs.GetJournalHistory(r.Context(), userID, queryLimit(r, 100), after)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func integrityHandler(qs *query.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := qs.VerifyIntegrity(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// --- helpers ---

func queryLimit(r *http.Request, def int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 1000 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
