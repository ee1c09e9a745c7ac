package config

import "fmt"

func validate(c *Config) error {
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be > 0")
	}
	if c.ScriptTimeout <= 0 {
		return fmt.Errorf("script timeout must be > 0")
	}
	if c.BrowserPoolSize <= 0 || c.BrowserPoolSize > DefaultMaxBrowserPoolSize {
		return fmt.Errorf("browser pool size must be between 1 and %d", DefaultMaxBrowserPoolSize)
	}
	if c.CacheMaxSizeBytes <= 0 {
		return fmt.Errorf("cache max size must be > 0")
	}
	if c.StaticRateLimitRPS <= 0 || c.DynamicRateLimitRPS <= 0 {
		return fmt.Errorf("rate limits must be > 0")
	}

	switch c.Host {
	case HostSQLite, HostMemory:
	default:
		return fmt.Errorf("unknown host backend %q (want %s or %s)", c.Host, HostSQLite, HostMemory)
	}

	switch c.AssetBackend {
	case AssetsHost:
	case AssetsFS:
		if c.AssetDir == "" {
			return fmt.Errorf("assets.dir is required for the fs asset backend")
		}
	case AssetsS3:
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			return fmt.Errorf("assets.s3.endpoint and assets.s3.bucket are required for the s3 asset backend")
		}
	default:
		return fmt.Errorf("unknown asset backend %q (want %s, %s or %s)", c.AssetBackend, AssetsHost, AssetsFS, AssetsS3)
	}
	if c.AssetMaxBytes <= 0 {
		return fmt.Errorf("asset max size must be > 0")
	}
	return nil
}
