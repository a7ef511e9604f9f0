package config

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caravanmattress/orders-api/internal/domain"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultDBMaxConns       = 25
	defaultDBMinConns       = 2
	defaultDBConnLifetime   = 30 * time.Minute
	defaultDBConnIdleTime   = 5 * time.Minute
	defaultSignatureHeader  = "X-Webhook-Hmac-Sha256"
	defaultStoreHeader      = "X-Webhook-Store-Domain"
	defaultTopicHeader      = "X-Webhook-Topic"
	defaultMaxBodyBytes     = 1 << 20
	defaultSheetAnchorCol   = "C"
	defaultSheetHeaderRows  = 4
	defaultSheetSyncRate    = 10.0
	defaultSheetSyncTimeout = 3 * time.Second
	defaultWebhookPerMinute = 120
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Stores     StoresConfig
	Sheets     SheetsConfig
	Suppliers  SuppliersConfig
	Events     EventsConfig
	Archive    ArchiveConfig
	Webhook    WebhookConfig
	RateLimits RateLimitConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// StoresConfig describes the registered webhook origins. Map keys are
// lowercase store domains.
type StoresConfig struct {
	Secrets      map[string]string
	DisplayNames map[string]string
	OrderPrefix  map[string]string
}

// SheetsConfig controls the external spreadsheet sync adapter.
type SheetsConfig struct {
	Enabled         bool
	CredentialsJSON string
	AnchorColumn    string
	HeaderRows      int
	SyncPerSecond   float64
	SyncTimeout     time.Duration
}

// SuppliersConfig points at the supplier registry definition.
type SuppliersConfig struct {
	File string
}

// EventsConfig configures best-effort Pub/Sub order event publishing.
type EventsConfig struct {
	ProjectID string
	Topic     string
}

// ArchiveConfig configures best-effort raw payload archival to Cloud Storage.
type ArchiveConfig struct {
	Bucket string
}

// WebhookConfig contains webhook parsing and header parameters.
type WebhookConfig struct {
	SignatureHeader string
	StoreHeader     string
	TopicHeader     string
	MaxBodyBytes    int64
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	WebhookPerMinute int
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// EnvironmentValues returns the effective key/value environment map after applying the same
// precedence rules as Load (dotenv < OS env < explicit env map). Callers can use the result to
// initialise dependencies before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	merge := func(source map[string]string) {
		for key, value := range source {
			values[key] = value
		}
	}

	merge(dotEnvValues)

	if options.useSystemEnv {
		system := make(map[string]string)
		for _, entry := range os.Environ() {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			if key == "" {
				continue
			}
			system[key] = parts[1]
		}
		merge(system)
	}

	merge(options.envMap)

	return values, nil
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "ORDERS_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "ORDERS_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "ORDERS_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "ORDERS_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Database: DatabaseConfig{
			URL:             stringWithDefault(lookup, "ORDERS_DATABASE_URL", ""),
			MaxConns:        intWithDefault(lookup, "ORDERS_DATABASE_MAX_CONNS", defaultDBMaxConns),
			MinConns:        intWithDefault(lookup, "ORDERS_DATABASE_MIN_CONNS", defaultDBMinConns),
			MaxConnLifetime: durationWithDefault(lookup, "ORDERS_DATABASE_CONN_LIFETIME", defaultDBConnLifetime),
			MaxConnIdleTime: durationWithDefault(lookup, "ORDERS_DATABASE_CONN_IDLE_TIME", defaultDBConnIdleTime),
		},
		Stores: StoresConfig{
			Secrets:      mapWithDefault(lookup, "ORDERS_STORE_SECRETS"),
			DisplayNames: mapWithDefault(lookup, "ORDERS_STORE_NAMES"),
			OrderPrefix:  mapWithDefault(lookup, "ORDERS_STORE_PREFIXES"),
		},
		Sheets: SheetsConfig{
			Enabled:         boolWithDefault(lookup, "ORDERS_SHEETS_ENABLED", true),
			CredentialsJSON: stringWithDefault(lookup, "ORDERS_SHEETS_CREDENTIALS", ""),
			AnchorColumn:    stringWithDefault(lookup, "ORDERS_SHEETS_ANCHOR_COLUMN", defaultSheetAnchorCol),
			HeaderRows:      intWithDefault(lookup, "ORDERS_SHEETS_HEADER_ROWS", defaultSheetHeaderRows),
			SyncPerSecond:   floatWithDefault(lookup, "ORDERS_SHEETS_SYNC_PER_SECOND", defaultSheetSyncRate),
			SyncTimeout:     durationWithDefault(lookup, "ORDERS_SHEETS_SYNC_TIMEOUT", defaultSheetSyncTimeout),
		},
		Suppliers: SuppliersConfig{
			File: stringWithDefault(lookup, "ORDERS_SUPPLIERS_FILE", ""),
		},
		Events: EventsConfig{
			ProjectID: stringWithDefault(lookup, "ORDERS_EVENTS_PROJECT_ID", ""),
			Topic:     stringWithDefault(lookup, "ORDERS_EVENTS_TOPIC", ""),
		},
		Archive: ArchiveConfig{
			Bucket: stringWithDefault(lookup, "ORDERS_ARCHIVE_BUCKET", ""),
		},
		Webhook: WebhookConfig{
			SignatureHeader: stringWithDefault(lookup, "ORDERS_WEBHOOK_SIGNATURE_HEADER", defaultSignatureHeader),
			StoreHeader:     stringWithDefault(lookup, "ORDERS_WEBHOOK_STORE_HEADER", defaultStoreHeader),
			TopicHeader:     stringWithDefault(lookup, "ORDERS_WEBHOOK_TOPIC_HEADER", defaultTopicHeader),
			MaxBodyBytes:    int64WithDefault(lookup, "ORDERS_WEBHOOK_MAX_BODY_BYTES", defaultMaxBodyBytes),
		},
		RateLimits: RateLimitConfig{
			WebhookPerMinute: intWithDefault(lookup, "ORDERS_RATELIMIT_WEBHOOK_PER_MIN", defaultWebhookPerMinute),
		},
	}

	// Resolve secret:// references for values that may live in Secret Manager.
	if resolved, err := resolveSecret(ctx, cfg.Database.URL, options.secret); err != nil {
		return Config{}, err
	} else {
		cfg.Database.URL = resolved
	}
	if resolved, err := resolveSecret(ctx, cfg.Sheets.CredentialsJSON, options.secret); err != nil {
		return Config{}, err
	} else {
		cfg.Sheets.CredentialsJSON = resolved
	}
	for domain, value := range cfg.Stores.Secrets {
		resolved, err := resolveSecret(ctx, value, options.secret)
		if err != nil {
			return Config{}, err
		}
		cfg.Stores.Secrets[domain] = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// StoreRegistry materialises the configured stores as domain entities keyed by
// lowercase store domain.
func (c StoresConfig) StoreRegistry() map[string]domain.Store {
	registry := make(map[string]domain.Store, len(c.Secrets))
	for key, secret := range c.Secrets {
		storeDomain := strings.ToLower(strings.TrimSpace(key))
		if storeDomain == "" || strings.TrimSpace(secret) == "" {
			continue
		}
		store := domain.Store{
			Domain:       storeDomain,
			DisplayName:  storeDomain,
			SharedSecret: secret,
		}
		if name := strings.TrimSpace(c.DisplayNames[storeDomain]); name != "" {
			store.DisplayName = name
		}
		if prefix := strings.TrimSpace(c.OrderPrefix[storeDomain]); prefix != "" {
			store.OrderPrefix = prefix
		}
		registry[storeDomain] = store
	}
	return registry
}

// LoadSuppliers reads the supplier registry from the configured JSON file. The
// file holds an ordered array; iteration order decides keyword precedence.
func (c SuppliersConfig) LoadSuppliers() ([]domain.Supplier, error) {
	path := strings.TrimSpace(c.File)
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: unable to read suppliers file %s: %w", path, err)
	}
	var suppliers []domain.Supplier
	if err := json.Unmarshal(raw, &suppliers); err != nil {
		return nil, fmt.Errorf("config: failed parsing suppliers file %s: %w", path, err)
	}
	return suppliers, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" {
		return value, nil
	}
	if !isSecretReference(value) {
		return value, nil
	}
	if resolver == nil {
		normalized := normalizeSecretReference(value)
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	normalized := normalizeSecretReference(value)
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if strings.TrimSpace(cfg.Database.URL) == "" {
		missing = append(missing, "Database.URL")
	}
	if cfg.Database.MaxConns <= 0 {
		missing = append(missing, "Database.MaxConns")
	}
	if len(cfg.Stores.Secrets) == 0 {
		missing = append(missing, "Stores.Secrets")
	}
	if cfg.Sheets.Enabled {
		if !isColumnRef(cfg.Sheets.AnchorColumn) {
			missing = append(missing, "Sheets.AnchorColumn")
		}
		if cfg.Sheets.SyncPerSecond <= 0 {
			missing = append(missing, "Sheets.SyncPerSecond")
		}
		if cfg.Sheets.SyncTimeout <= 0 {
			missing = append(missing, "Sheets.SyncTimeout")
		}
	}
	if cfg.Webhook.MaxBodyBytes <= 0 {
		missing = append(missing, "Webhook.MaxBodyBytes")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isColumnRef(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > 2 {
		return false
	}
	for _, r := range value {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func floatWithDefault(lookup func(string) (string, bool), key string, fallback float64) float64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func mapWithDefault(lookup func(string) (string, bool), key string) map[string]string {
	values := make(map[string]string)
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return values
	}
	entries := strings.Split(raw, ",")
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		if name == "" || value == "" {
			continue
		}
		values[name] = value
	}
	return values
}
