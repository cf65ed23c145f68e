package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad_Success(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.App.Env != "prod" {
		t.Fatalf("expected App.Env to be prod, got %q", cfg.App.Env)
	}
	if cfg.Terminal.ID != "till-01" {
		t.Fatalf("unexpected terminal id %q", cfg.Terminal.ID)
	}
	if got := cfg.Sync.TickInterval; got != 15*time.Second {
		t.Fatalf("expected default tick 15s, got %v", got)
	}
	if cfg.Queue.IsBolt() {
		t.Fatalf("expected sqlite backend by default")
	}
	if !strings.Contains(cfg.DB.DSN, "_synchronous=FULL") {
		t.Fatalf("expected derived DSN to request full sync, got %q", cfg.DB.DSN)
	}
	if !strings.Contains(cfg.DB.DSN, "_journal_mode=WAL") {
		t.Fatalf("expected derived DSN to request WAL, got %q", cfg.DB.DSN)
	}
}

func TestLoad_ExplicitDSNWins(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvDBDSN, "file:custom.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.DB.DSN != "file:custom.db" {
		t.Fatalf("unexpected DSN %q", cfg.DB.DSN)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setMinimalEnv(t)
	if err := os.Unsetenv(EnvAppEnv); err != nil {
		t.Fatalf("failed to unset %s: %v", EnvAppEnv, err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected missing required env to return an error")
	}
}

func TestLoad_RejectsUnknownQueueBackend(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvQueueBackend, "memory")

	if _, err := Load(); err == nil {
		t.Fatal("expected unknown queue backend to fail")
	}
}

func TestLoad_BoltBackend(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvQueueBackend, "BOLT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if !cfg.Queue.IsBolt() {
		t.Fatalf("expected bolt backend")
	}
}

func TestLoad_RejectsRelativeSalesAPIURL(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvSalesAPIBaseURL, "sales.local")

	if _, err := Load(); err == nil {
		t.Fatal("expected relative sales api url to fail")
	}
}

func TestLoad_RejectsNonPositivePromotionsTTL(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvPromotionsTTL, "0s")

	if _, err := Load(); err == nil {
		t.Fatal("expected zero promotions ttl to fail")
	}
}

func setMinimalEnv(t *testing.T) {
	t.Helper()

	t.Setenv(EnvAppEnv, "prod")
	t.Setenv(EnvTerminalID, "till-01")
	t.Setenv(EnvDBDSN, "")
	t.Setenv(EnvDBPath, "pos.db")
	t.Setenv(EnvQueueBackend, "sqlite")
	t.Setenv(EnvSalesAPIBaseURL, "http://localhost:9090")
}

func TestAppConfigEnvHelpers(t *testing.T) {
	devConfig := AppConfig{Env: "DEV"}
	if !devConfig.IsDev() {
		t.Fatalf("expected IsDev true for %q", devConfig.Env)
	}
	if devConfig.IsProd() {
		t.Fatalf("expected IsProd false for %q", devConfig.Env)
	}

	prodConfig := AppConfig{Env: "prod"}
	if !prodConfig.IsProd() {
		t.Fatalf("expected IsProd true for %q", prodConfig.Env)
	}
	if prodConfig.IsDev() {
		t.Fatalf("expected IsDev false for %q", prodConfig.Env)
	}
}

func TestLoad_PlannerURLDefaultsToSalesAPI(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if got := cfg.SalesAPI.PlannerURL(); got != "http://localhost:9090" {
		t.Fatalf("expected planner to default to sales api, got %q", got)
	}

	t.Setenv(EnvStockPlannerURL, "http://stock.local")
	t.Setenv(EnvCORSOrigins, "http://a.local,http://b.local")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if got := cfg.SalesAPI.PlannerURL(); got != "http://stock.local" {
		t.Fatalf("expected explicit planner url, got %q", got)
	}
	if len(cfg.App.CORSOrigins) != 2 {
		t.Fatalf("expected two cors origins, got %v", cfg.App.CORSOrigins)
	}
}

func TestLoadStubIgnoresTerminalSettings(t *testing.T) {
	t.Setenv(EnvAppEnv, "dev")
	t.Setenv(EnvStubPort, "9191")

	cfg, err := LoadStub()
	if err != nil {
		t.Fatalf("LoadStub() returned unexpected error: %v", err)
	}
	if cfg.Stub.Port != "9191" {
		t.Fatalf("unexpected stub port %q", cfg.Stub.Port)
	}
	if cfg.Redis.Address != "localhost:6379" {
		t.Fatalf("unexpected redis default %q", cfg.Redis.Address)
	}
}
