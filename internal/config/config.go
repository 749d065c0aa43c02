package config

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Client  ClientConfig
	Cache   CacheConfig
	Observe ObserveConfig
	Server  ServerConfig
}

type ServerConfig struct {
	Port                   int `env:"SERVER_PORT, default=8080"`
	ShutdownTimeoutSeconds int `env:"SERVER_SHUTDOWN_TIMEOUT_SECS, default=25"`

	OutgoingHTTPMaxIdleConns    int `env:"SERVER_OUTGOING_MAX_IDLE_CONNS, default=100"`
	OutgoingHTTPMaxConnsPerHost int `env:"SERVER_OUTGOING_MAX_CONNS_PER_HOST, default=20"`
	OutgoingHTTPTimeoutSeconds  int `env:"SERVER_OUTGOING_TIMEOUT_SECS, default=30"`
}

// ClientConfig identifies the API endpoints and the OAuth2 client used to
// talk to them. It is read once and not changed afterwards.
type ClientConfig struct {
	APIDomain  string `env:"YOUTHWEB_API_DOMAIN, default=https://api.youthweb.net"`
	AuthDomain string `env:"YOUTHWEB_AUTH_DOMAIN, default=https://youthweb.net"`
	APIVersion string `env:"YOUTHWEB_API_VERSION, default=0.20"`

	ClientID     string `env:"YOUTHWEB_CLIENT_ID, required"`
	ClientSecret string `env:"YOUTHWEB_CLIENT_SECRET, required"`
	RedirectURL  string `env:"YOUTHWEB_REDIRECT_URL, required"`

	// Scopes are requested in order. The environment value is comma separated.
	Scopes []string `env:"YOUTHWEB_SCOPES, default=user:read"`

	ResourceOwnerID string `env:"YOUTHWEB_RESOURCE_OWNER_ID"`
}

// CacheConfig specifies cache configuration.
type CacheConfig struct {
	// Type selects the cache implementation: "null", "memory" (default) or
	// "valkey". The null cache cannot persist tokens and exists so that
	// unauthenticated endpoints work without any backend.
	Type string `env:"CACHE_TYPE, default=memory"`

	// Namespace prefixes every cache key, separated by a ".".
	Namespace string `env:"CACHE_NAMESPACE, default=php_youthweb_api"`

	// MaxSize bounds the number of entries held by the memory cache.
	MaxSize int `env:"CACHE_MAX_SIZE, default=1000"`

	// Valkey holds distributed cache settings.
	Valkey ValkeyConfig

	// Encryption holds cache encryption settings.
	// Only supported with valkey cache type.
	Encryption CacheEncryptionConfig
}

// ValkeyConfig specifies distributed cache configuration.
type ValkeyConfig struct {
	// Address is the Valkey server address (host:port).
	Address string `env:"VALKEY_ADDRESS"`

	// TLS enables TLS connection to Valkey. Defaults to true so the secure option
	// is the default.
	TLS bool `env:"VALKEY_TLS, default=true"`

	// Username for Valkey authentication.
	Username string `env:"VALKEY_USERNAME"`

	// Password for Valkey authentication.
	Password string `env:"VALKEY_PASSWORD"`
}

// CacheEncryptionConfig holds settings for cache encryption.
type CacheEncryptionConfig struct {
	// Enabled turns on encryption for cached tokens.
	// Requires CACHE_TYPE=valkey.
	Enabled bool `env:"CACHE_ENCRYPTION_ENABLED, default=false"`

	// KeysetURI is the URI to the encrypted Tink keyset.
	// Format: aws-secretsmanager://secret-name
	KeysetURI string `env:"CACHE_ENCRYPTION_KEYSET_URI"`

	// KMSEnvelopeKeyURI is the AWS KMS key URI for envelope encryption.
	// Format: aws-kms://arn:aws:kms:region:account:key/key-id
	KMSEnvelopeKeyURI string `env:"CACHE_ENCRYPTION_KMS_ENVELOPE_KEY_URI"`

	// KeysetFile is a path to a cleartext Tink keyset. Local development and
	// tests only.
	KeysetFile string `env:"CACHE_ENCRYPTION_KEYSET_FILE"`
}

type ObserveConfig struct {
	SDKLogLevel                string `env:"OBSERVE_OTEL_LOG_LEVEL, default=info"`
	Enabled                    bool   `env:"OBSERVE_ENABLED, default=false"`
	MetricsEnabled             bool   `env:"OBSERVE_METRICS_ENABLED, default=true"`
	Type                       string `env:"OBSERVE_TYPE, default=grpc"`
	ServiceName                string `env:"OBSERVE_SERVICE_NAME, default=youthweb-bridge"`
	TraceBatchTimeoutSeconds   int    `env:"OBSERVE_TRACE_BATCH_TIMEOUT_SECS, default=20"`
	MetricReadIntervalSeconds  int    `env:"OBSERVE_METRIC_READ_INTERVAL_SECS, default=60"`
	HTTPTransportEnabled       bool   `env:"OBSERVE_HTTP_TRANSPORT_ENABLED, default=true"`
	HTTPConnectionTraceEnabled bool   `env:"OBSERVE_CONNECTION_TRACE_ENABLED, default=true"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	err = cfg.Client.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid client configuration: %w", err)
	}

	err = cfg.Cache.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid cache configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the endpoint URLs are absolute.
func (c *ClientConfig) Validate() error {
	for name, value := range map[string]string{
		"YOUTHWEB_API_DOMAIN":   c.APIDomain,
		"YOUTHWEB_AUTH_DOMAIN":  c.AuthDomain,
		"YOUTHWEB_REDIRECT_URL": c.RedirectURL,
	} {
		u, err := url.Parse(value)
		if err != nil {
			return fmt.Errorf("%s is not a valid URL: %w", name, err)
		}
		if !u.IsAbs() {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, value)
		}
	}

	if c.APIVersion == "" {
		return fmt.Errorf("YOUTHWEB_API_VERSION must not be empty")
	}

	return nil
}

var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

// Validate checks that the cache configuration is valid.
func (c *CacheConfig) Validate() error {
	switch c.Type {
	case "null", "memory", "valkey":
	default:
		return fmt.Errorf("invalid CACHE_TYPE %q: must be one of null, memory, valkey", c.Type)
	}

	if !namespacePattern.MatchString(c.Namespace) {
		return fmt.Errorf("CACHE_NAMESPACE %q may only contain A-Z, a-z, 0-9, _ and .", c.Namespace)
	}

	// Encryption requires distributed cache
	if c.Encryption.Enabled && c.Type != "valkey" {
		return fmt.Errorf("cache encryption requires CACHE_TYPE=valkey")
	}

	// Encryption requires keyset and KMS URIs, unless a local keyset is used
	if c.Encryption.Enabled && c.Encryption.KeysetFile == "" {
		if c.Encryption.KeysetURI == "" {
			return fmt.Errorf("CACHE_ENCRYPTION_KEYSET_URI required when encryption enabled")
		}
		if c.Encryption.KMSEnvelopeKeyURI == "" {
			return fmt.Errorf("CACHE_ENCRYPTION_KMS_ENVELOPE_KEY_URI required when encryption enabled")
		}
	}

	// Valkey requires address
	if c.Type == "valkey" && c.Valkey.Address == "" {
		return fmt.Errorf("VALKEY_ADDRESS required when CACHE_TYPE=valkey")
	}

	return nil
}
