package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/sovrhq/clearing/internal/adapter/http/handler"
	"github.com/sovrhq/clearing/internal/domain"
	"github.com/sovrhq/clearing/internal/usecase"
)

func TestNewRouter_HealthEndpointAvailable(t *testing.T) {
	router := NewRouter(newRouterConfig())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected /health to return 200, got %d", rec.Code)
	}
}

func TestNewRouter_RateLimiterBlocksExcessRequests(t *testing.T) {
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.RateLimitRPS = 1
		cfg.RateLimitBurst = 1
	}))

	req1 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req1.RemoteAddr = "1.2.3.4:1234"
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req2.RemoteAddr = "1.2.3.4:1234"
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", rec2.Code)
	}
}

func TestNewRouter_MetricsEndpointMountedWhenEnabled(t *testing.T) {
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.MetricsEnabled = true
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected /metrics to return 200, got %d", rec.Code)
	}
}

func TestNewRouter_RegistersKeyRoutes(t *testing.T) {
	router := NewRouter(newRouterConfig())

	chiRoutes, ok := router.(chi.Router)
	if !ok {
		t.Fatal("router does not implement chi.Routes")
	}

	seen := map[string]bool{}
	if err := chi.Walk(chiRoutes, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		seen[method+" "+route] = true
		return nil
	}); err != nil {
		t.Fatalf("walk failed: %v", err)
	}

	expected := []string{
		"GET /health",
		"GET /ready",
		"POST /api/v1/clearings/",
		"POST /api/v1/clearings/batch",
		"GET /api/v1/clearings/{intentID}",
		"POST /api/v1/accounts/",
		"GET /api/v1/accounts/",
		"GET /api/v1/accounts/{id}",
		"GET /api/v1/accounts/{id}/balance",
		"PATCH /api/v1/accounts/{id}/active",
		"GET /api/v1/narratives/",
		"GET /api/v1/narratives/{intentID}",
		"GET /api/v1/consistency/",
		"GET /api/v1/consistency/{intentID}",
	}

	for _, route := range expected {
		if !seen[route] {
			t.Fatalf("expected route %s to be registered", route)
		}
	}
}

func newRouterConfig(opts ...func(*RouterConfig)) RouterConfig {
	cfg := RouterConfig{
		ClearingHandler:    handler.NewClearingHandler(stubClearingService{}, stubBatchService{}),
		AccountHandler:     handler.NewAccountHandler(stubAccountService{}),
		NarrativeHandler:   handler.NewNarrativeHandler(stubNarrativeService{}),
		ConsistencyHandler: handler.NewConsistencyHandler(stubConsistencyService{}),
		HealthHandler:      &handler.HealthHandler{},
		Logger:             zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

type stubClearingService struct{}

func (stubClearingService) Clear(ctx context.Context, entry *domain.Entry) (*domain.ClearingResult, error) {
	return &domain.ClearingResult{IntentID: entry.IntentID, Status: domain.StatusClearedFinalized}, nil
}

func (stubClearingService) Lookup(ctx context.Context, intentID string) (*domain.ClearingResult, error) {
	return &domain.ClearingResult{IntentID: intentID, Status: domain.StatusClearedFinalized}, nil
}

type stubBatchService struct{}

func (stubBatchService) ExecuteAtomic(ctx context.Context, entries []*domain.Entry) (*usecase.BatchResult, error) {
	return &usecase.BatchResult{Outcome: usecase.BatchFullyCommitted}, nil
}

type stubAccountService struct{}

func (stubAccountService) Provision(ctx context.Context, input usecase.ProvisionAccountInput) (*domain.Account, error) {
	return &domain.Account{ID: "acct"}, nil
}

func (stubAccountService) Get(ctx context.Context, id string) (*domain.Account, error) {
	return &domain.Account{ID: id}, nil
}

func (stubAccountService) GetBalance(ctx context.Context, id string) (int64, error) {
	return 0, nil
}

func (stubAccountService) List(ctx context.Context, input usecase.ListAccountsInput) ([]*domain.Account, error) {
	return []*domain.Account{}, nil
}

func (stubAccountService) SetActive(ctx context.Context, id string, active bool) (*domain.Account, error) {
	return &domain.Account{ID: id, Active: active}, nil
}

type stubNarrativeService struct{}

func (stubNarrativeService) GetByIntent(ctx context.Context, intentID string) (*domain.NarrativeRecord, error) {
	return &domain.NarrativeRecord{IntentID: intentID}, nil
}

func (stubNarrativeService) Query(ctx context.Context, input usecase.QueryNarrativesInput) ([]*domain.NarrativeRecord, error) {
	return []*domain.NarrativeRecord{}, nil
}

type stubConsistencyService struct{}

func (stubConsistencyService) CheckIntent(ctx context.Context, intentID string) (*usecase.IntentConsistency, error) {
	return &usecase.IntentConsistency{IntentID: intentID}, nil
}

func (stubConsistencyService) Report(ctx context.Context, since time.Time, limit int) (*usecase.ConsistencyReport, error) {
	return &usecase.ConsistencyReport{MirrorConsistent: true, CheckedAt: time.Now().UTC()}, nil
}
