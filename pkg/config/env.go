package config

const (
	EnvPrefix = "POS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	QueueBackendSQLite = "sqlite"
	QueueBackendBolt   = "bolt"

	EnvAppEnv          = "POS_APP_ENV"
	EnvPort            = "POS_APP_PORT"
	EnvLogLevel        = "POS_LOG_LEVEL"
	EnvTerminalID      = "POS_TERMINAL_ID"
	EnvDBDSN           = "POS_DB_DSN"
	EnvDBPath          = "POS_DB_PATH"
	EnvQueueBackend    = "POS_QUEUE_BACKEND"
	EnvQueueBoltPath   = "POS_QUEUE_BOLT_PATH"
	EnvSyncTick        = "POS_SYNC_TICK_INTERVAL"
	EnvSalesAPIBaseURL = "POS_SALES_API_BASE_URL"
	EnvPromotionsTTL   = "POS_SALES_API_PROMOTIONS_TTL"
	EnvRedisURL        = "POS_REDIS_URL"
	EnvStockPlannerURL = "POS_STOCK_PLANNER_URL"
	EnvCORSOrigins     = "POS_APP_CORS_ORIGINS"
	EnvStubPort        = "POS_STUB_PORT"
)
