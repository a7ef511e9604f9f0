package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"ORDERS_DATABASE_URL":  "postgres://orders:pw@localhost:5432/orders",
		"ORDERS_STORE_SECRETS": "caravan.example.com=shh",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithEnvMap(baseEnv()),
		WithoutSystemEnv(),
		WithEnvFile(""),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("port %q", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Fatalf("read timeout %v", cfg.Server.ReadTimeout)
	}
	if cfg.Database.MaxConns != 25 || cfg.Database.MinConns != 2 {
		t.Fatalf("db pool %+v", cfg.Database)
	}
	if !cfg.Sheets.Enabled || cfg.Sheets.AnchorColumn != "C" || cfg.Sheets.HeaderRows != 4 {
		t.Fatalf("sheets %+v", cfg.Sheets)
	}
	if cfg.Webhook.SignatureHeader != "X-Webhook-Hmac-Sha256" || cfg.Webhook.MaxBodyBytes != 1<<20 {
		t.Fatalf("webhook %+v", cfg.Webhook)
	}
	if cfg.RateLimits.WebhookPerMinute != 120 {
		t.Fatalf("rate limits %+v", cfg.RateLimits)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	env := baseEnv()
	env["ORDERS_SERVER_PORT"] = "9090"
	env["ORDERS_SHEETS_ENABLED"] = "false"
	env["ORDERS_SHEETS_SYNC_PER_SECOND"] = "2.5"
	env["ORDERS_RATELIMIT_WEBHOOK_PER_MIN"] = "30"
	env["ORDERS_WEBHOOK_MAX_BODY_BYTES"] = "2048"

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Sheets.Enabled {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Sheets.SyncPerSecond != 2.5 || cfg.RateLimits.WebhookPerMinute != 30 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Webhook.MaxBodyBytes != 2048 {
		t.Fatalf("max body %d", cfg.Webhook.MaxBodyBytes)
	}
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(map[string]string{"ORDERS_STORE_SECRETS": "caravan.example.com=shh"}),
		WithoutSystemEnv(),
		WithEnvFile(""),
	)

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := validation.Fields()
	if len(fields) != 1 || fields[0] != "Database.URL" {
		t.Fatalf("fields %v", fields)
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	env := baseEnv()
	env["ORDERS_DATABASE_URL"] = "secret://db-url"
	env["ORDERS_STORE_SECRETS"] = "caravan.example.com=sm://webhook-secret"

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		switch ref {
		case "secret://db-url":
			return "postgres://resolved", nil
		case "secret://webhook-secret":
			return "resolved-shared-secret", nil
		}
		return "", errors.New("unexpected ref " + ref)
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.URL != "postgres://resolved" {
		t.Fatalf("database url %q", cfg.Database.URL)
	}
	if cfg.Stores.Secrets["caravan.example.com"] != "resolved-shared-secret" {
		t.Fatalf("store secrets %+v", cfg.Stores.Secrets)
	}
}

func TestLoadSecretResolutionFailure(t *testing.T) {
	env := baseEnv()
	env["ORDERS_DATABASE_URL"] = "secret://db-url"

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
	)

	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if secretErr.Ref != "secret://db-url" {
		t.Fatalf("ref %q", secretErr.Ref)
	}
}

func TestStoreRegistry(t *testing.T) {
	stores := StoresConfig{
		Secrets: map[string]string{
			"caravan.example.com":  "shh",
			"boatbeds.example.com": "hush",
			"ignored.example.com":  "",
		},
		DisplayNames: map[string]string{"caravan.example.com": "Caravan Mattresses"},
		OrderPrefix:  map[string]string{"caravan.example.com": "#CARA", "boatbeds.example.com": "#BOAT"},
	}

	registry := stores.StoreRegistry()
	if len(registry) != 2 {
		t.Fatalf("registry %+v, want empty-secret store dropped", registry)
	}
	caravan := registry["caravan.example.com"]
	if caravan.DisplayName != "Caravan Mattresses" || caravan.OrderPrefix != "#CARA" || caravan.SharedSecret != "shh" {
		t.Fatalf("caravan %+v", caravan)
	}
	boat := registry["boatbeds.example.com"]
	if boat.DisplayName != "boatbeds.example.com" {
		t.Fatalf("boat display name %q, want domain fallback", boat.DisplayName)
	}
}

func TestLoadSuppliersFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "suppliers.json")
	contents := `[
  {"key": "southern", "display_name": "Southern", "sheet_id": "sheet-1", "sku_keywords": ["Novo"]},
  {"key": "breasley", "display_name": "Breasley", "sheet_id": "sheet-2", "sku_keywords": ["Uno"]}
]`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write suppliers file: %v", err)
	}

	suppliers, err := SuppliersConfig{File: path}.LoadSuppliers()
	if err != nil {
		t.Fatalf("LoadSuppliers: %v", err)
	}
	if len(suppliers) != 2 || suppliers[0].Key != "southern" || suppliers[1].Key != "breasley" {
		t.Fatalf("suppliers %+v, want declaration order preserved", suppliers)
	}

	if _, err := (SuppliersConfig{File: filepath.Join(dir, "missing.json")}).LoadSuppliers(); err == nil {
		t.Fatal("expected error for missing file")
	}

	suppliers, err = SuppliersConfig{}.LoadSuppliers()
	if err != nil || suppliers != nil {
		t.Fatalf("empty path: %v %v", suppliers, err)
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	contents := "# local overrides\nexport ORDERS_SERVER_PORT=7000\nORDERS_DATABASE_URL=\"postgres://dotenv\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvMap(map[string]string{"ORDERS_STORE_SECRETS": "caravan.example.com=shh"}),
		WithoutSystemEnv(),
		WithEnvFile(path),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "7000" || cfg.Database.URL != "postgres://dotenv" {
		t.Fatalf("dotenv values not applied: %+v", cfg.Server)
	}
}
