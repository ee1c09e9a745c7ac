package config

import "time"

// Default constants for application configuration
const (
	DefaultLogLevel              = "info"
	DefaultJSONLog               = false
	DefaultUserAgent             = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultCacheTTL              = 5 * time.Minute
	DefaultHTTPTimeout           = 30 * time.Second
	DefaultScriptTimeout         = 5 * time.Second
	DefaultStaticRateLimitRPS    = 2.0
	DefaultStaticRateLimitBurst  = 4
	DefaultDynamicRateLimitRPS   = 1.0
	DefaultDynamicRateLimitBurst = 2
	DefaultBrowserPoolSize       = 2
	DefaultMaxBrowserPoolSize    = 8
	DefaultCacheMaxSizeBytes     = 50 * 1024 * 1024 // 50MB
	DefaultJSWaitTime            = 500 * time.Millisecond
	DefaultAssetMaxBytes         = 20 * 1024 * 1024
	DefaultDataDirName           = ".linkmeta"
	DefaultHost                  = HostSQLite
	DefaultAssetBackend          = AssetsHost
	DefaultServeAddr             = "127.0.0.1:8787"
	DefaultServeRPS              = 5.0
	DefaultServeBurst            = 10
)

// Host backends
const (
	HostSQLite = "sqlite"
	HostMemory = "memory"
)

// Asset backends
const (
	AssetsHost = "host"
	AssetsFS   = "fs"
	AssetsS3   = "s3"
)

// Config keys, also usable as LINKMETA_* environment variables with dots
// replaced by underscores
const (
	keyLogLevel        = "log_level"
	keyJSONLog         = "json_log"
	keyHTTPTimeout     = "http_timeout"
	keyUserAgent       = "user_agent"
	keyProxies         = "proxies"
	keyHeaders         = "headers"
	keyDataDir         = "data_dir"
	keyHost            = "host"
	keyDBPath          = "db_path"
	keyRulesFile       = "rules_file"
	keySessionsDir     = "sessions_dir"
	keyScriptTimeout   = "script_timeout"
	keyStaticRPS       = "rate_limit.static_rps"
	keyStaticBurst     = "rate_limit.static_burst"
	keyBrowserRPS      = "rate_limit.browser_rps"
	keyBrowserBurst    = "rate_limit.browser_burst"
	keyBrowserPoolSize = "browser.pool_size"
	keyChromePath      = "browser.chrome_path"
	keyBrowserSettle   = "browser.settle"
	keyCacheTTL        = "cache.ttl"
	keyCacheMaxBytes   = "cache.max_bytes"
	keyAssetBackend    = "assets.backend"
	keyAssetDir        = "assets.dir"
	keyAssetMaxBytes   = "assets.max_bytes"
	keyS3Endpoint      = "assets.s3.endpoint"
	keyS3Bucket        = "assets.s3.bucket"
	keyS3AccessKey     = "assets.s3.access_key"
	keyS3SecretKey     = "assets.s3.secret_key"
	keyS3Region        = "assets.s3.region"
	keyS3UseSSL        = "assets.s3.use_ssl"
	keyS3Prefix        = "assets.s3.prefix"
	keyS3PublicURL     = "assets.s3.public_url"
	keyServeAddr       = "serve.addr"
	keyServeToken      = "serve.token"
	keyServeRPS        = "serve.rps"
	keyServeBurst      = "serve.burst"
)
