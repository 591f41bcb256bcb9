package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"fern-api"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,PATCH,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PublicURL is the externally reachable base URL of this service. It is used to
	// build the OAuth redirect URI and the webhook ingress URL handed to gateways.
	PublicURL string `env:"PUBLIC_URL" env-default:"http://localhost:3004" validate:"required,url"`
	// InternalURL is the base URL gateways use to reach this service from inside the
	// container network (the webhook target pushed into each gateway session).
	InternalURL string `env:"INTERNAL_URL" env-default:"http://fern-api:3004" validate:"required,url"`

	// Database driver
	DatabaseDriver string `env:"DB_DRIVER" env-default:"postgres"`
	// Database host
	DatabaseHost string `env:"DB_HOST" env-default:""`
	// Database port
	DatabasePort string `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" env-default:""`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" env-default:""`
	// Database name
	DatabaseName string `env:"DB_NAME" env-default:"fern"`
	// Database SSL Mode
	DatabaseSSLMode string `env:"DB_SQL_MODE" env-default:"disable"`
	// Reconnect Retry Count
	DatabaseReconnectRetryCount int `env:"DB_RECONNECT_RETRY_COUNT" env-default:"3"`
	// Max Open Conns
	DatabaseMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	// Database Migration Version
	DatabaseMigrationVersion int `env:"DB_MIGRATION_VERSION" env-default:"0"`
	// Database Migration Force
	DatabaseMigrationForce int `env:"DB_MIGRATION_FORCE" env-default:"0"`
	// Database Migration Auto Rollback
	DatabaseMigrationAutoRollback bool `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Auth Enabled - when false, allows X-Tenant-ID and X-User-ID headers for testing
	AuthEnabled bool `env:"AUTH_ENABLED" env-default:"false"`
	// Auth Issuer URL
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" env-default:""`
	// Auth Client ID
	AuthClientID string `env:"AUTH_CLIENT_ID" env-default:""`

	// VaultKey is the symmetric key used to encrypt credential fields at rest.
	// Must be at least 32 bytes; only the first 32 bytes are used (AES-256).
	VaultKey string `env:"VAULT_KEY" env-default:"" validate:"required,min=32"`

	// Container runtime
	// Docker network the gateway containers and this service share
	DockerNetwork string `env:"DOCKER_NETWORK" env-default:"fern_network"`
	// Image for the per-tenant gateway container
	GatewayImage string `env:"GATEWAY_IMAGE" env-default:"devlikeapro/whatsapp-http-api:latest"`
	// Port the gateway process listens on inside its container
	GatewayContainerPort int `env:"GATEWAY_CONTAINER_PORT" env-default:"3000"`
	// Readiness poll interval
	GatewayReadyPollInterval time.Duration `env:"GATEWAY_READY_POLL_INTERVAL" env-default:"2s"`
	// Readiness poll deadline
	GatewayReadyTimeout time.Duration `env:"GATEWAY_READY_TIMEOUT" env-default:"60s"`

	// CRM (conversation API)
	CrmAPIBaseURL       string `env:"CRM_API_BASE_URL" env-default:"https://services.leadconnectorhq.com"`
	CrmAuthorizeBaseURL string `env:"CRM_AUTHORIZE_BASE_URL" env-default:"https://marketplace.gohighlevel.com/oauth/chooselocation"`
	CrmClientID         string `env:"CRM_CLIENT_ID" env-default:"" validate:"required"`
	CrmClientSecret     string `env:"CRM_CLIENT_SECRET" env-default:"" validate:"required"`
	CrmOAuthScopes      string `env:"CRM_OAUTH_SCOPES" env-default:"contacts.readonly contacts.write conversations.readonly conversations.write users.readonly"`

	// Redis host
	RedisHost string `env:"REDIS_HOST" env-default:"localhost"`
	// Redis port
	RedisPort int `env:"REDIS_PORT" env-default:"6379"`
	// Redis password
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	// Redis database number
	RedisDB int `env:"REDIS_DB" env-default:"0"`
	// TTL for the webhook dedupe guard
	DedupeTTL time.Duration `env:"DEDUPE_TTL" env-default:"10m"`
	// TTL for pending OAuth state nonces
	OAuthStateTTL time.Duration `env:"OAUTH_STATE_TTL" env-default:"15m"`

	// Kafka brokers (comma-separated)
	KafkaBrokers []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	// Kafka topic for relay lifecycle events
	KafkaEventsTopic string `env:"KAFKA_EVENTS_TOPIC" env-default:"fern-events"`
	// Enable/disable event emission
	KafkaEventsEnabled bool `env:"KAFKA_EVENTS_ENABLED" env-default:"true"`

	// Relay worker pool
	RelayWorkerCount int `env:"RELAY_WORKER_COUNT" env-default:"8"`
	RelayQueueSize   int `env:"RELAY_QUEUE_SIZE" env-default:"256"`

	// Outbound HTTP client timeout
	HTTPClientTimeout time.Duration `env:"HTTP_CLIENT_TIMEOUT" env-default:"30s"`

	// Tracing settings
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled bool `env:"OTLP_ENABLED" env-default:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`
}
