package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// S3Config locates the bucket used by the s3 asset backend
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Prefix    string
	PublicURL string
}

// Config holds application configuration values
type Config struct {
	// Logging
	LogLevel string
	JSONLog  bool

	// HTTP/Scraping
	HTTPTimeout time.Duration
	UserAgent   string
	Proxies     []string
	Headers     map[string]string

	// Storage
	DataDir     string
	Host        string
	DBPath      string
	RulesFile   string
	SessionsDir string

	// Scripts
	ScriptTimeout time.Duration

	// Rate Limiting
	StaticRateLimitRPS    float64
	StaticRateLimitBurst  int
	DynamicRateLimitRPS   float64
	DynamicRateLimitBurst int

	// Browser Pool
	BrowserPoolSize int
	ChromePath      string
	BrowserSettle   time.Duration

	// Caching
	CacheTTL          time.Duration
	CacheMaxSizeBytes int64

	// Assets
	AssetBackend  string
	AssetDir      string
	AssetMaxBytes int64
	S3            S3Config

	// HTTP bridge
	ServeAddr  string
	ServeToken string
	ServeRPS   float64
	ServeBurst int

	// ConfigFile is the file values were read from, if any
	ConfigFile string
}

// Load builds a Config by combining defaults, an optional config file,
// LINKMETA_* environment variables and CLI flags, in increasing precedence.
// Caller should pass the root *cobra.Command so flags can be read.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LINKMETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		for name, key := range flagKeys {
			if f := lookupFlag(cmd, name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := readConfigFile(v, cmd); err != nil {
		return nil, err
	}

	cfg := fromViper(v)

	if cmd != nil {
		if f := lookupFlag(cmd, "verbose"); f != nil && f.Value.String() == "true" {
			cfg.LogLevel = "debug"
		}
		if f := lookupFlag(cmd, "quiet"); f != nil && f.Value.String() == "true" {
			cfg.LogLevel = "error"
		}
	}
	// CHROME_PATH is honoured by browser discovery as well; keep the two in step
	if cfg.ChromePath == "" {
		cfg.ChromePath = os.Getenv("CHROME_PATH")
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// lookupFlag finds a flag on cmd, including persistent flags not yet merged
func lookupFlag(cmd *cobra.Command, name string) *pflag.Flag {
	if f := cmd.Flags().Lookup(name); f != nil {
		return f
	}
	return cmd.PersistentFlags().Lookup(name)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyLogLevel, DefaultLogLevel)
	v.SetDefault(keyJSONLog, DefaultJSONLog)
	v.SetDefault(keyHTTPTimeout, DefaultHTTPTimeout)
	v.SetDefault(keyUserAgent, DefaultUserAgent)
	v.SetDefault(keyProxies, []string{})
	v.SetDefault(keyDataDir, defaultDataDir())
	v.SetDefault(keyHost, DefaultHost)
	v.SetDefault(keyScriptTimeout, DefaultScriptTimeout)
	v.SetDefault(keyStaticRPS, DefaultStaticRateLimitRPS)
	v.SetDefault(keyStaticBurst, DefaultStaticRateLimitBurst)
	v.SetDefault(keyBrowserRPS, DefaultDynamicRateLimitRPS)
	v.SetDefault(keyBrowserBurst, DefaultDynamicRateLimitBurst)
	v.SetDefault(keyBrowserPoolSize, DefaultBrowserPoolSize)
	v.SetDefault(keyBrowserSettle, DefaultJSWaitTime)
	v.SetDefault(keyCacheTTL, DefaultCacheTTL)
	v.SetDefault(keyCacheMaxBytes, DefaultCacheMaxSizeBytes)
	v.SetDefault(keyAssetBackend, DefaultAssetBackend)
	v.SetDefault(keyAssetMaxBytes, DefaultAssetMaxBytes)
	v.SetDefault(keyS3UseSSL, true)
	v.SetDefault(keyServeAddr, DefaultServeAddr)
	v.SetDefault(keyServeRPS, DefaultServeRPS)
	v.SetDefault(keyServeBurst, DefaultServeBurst)
}

// readConfigFile loads --config when given, else config.{yaml,json,toml} from
// the data directory. A missing default file is not an error.
func readConfigFile(v *viper.Viper, cmd *cobra.Command) error {
	explicit := ""
	if cmd != nil {
		if f := lookupFlag(cmd, "config"); f != nil {
			explicit = f.Value.String()
		}
	}
	if explicit == "" {
		explicit = os.Getenv("LINKMETA_CONFIG")
	}

	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", explicit, err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.AddConfigPath(v.GetString(keyDataDir))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func fromViper(v *viper.Viper) *Config {
	dataDir := expandHome(v.GetString(keyDataDir))

	cfg := &Config{
		LogLevel:              v.GetString(keyLogLevel),
		JSONLog:               v.GetBool(keyJSONLog),
		HTTPTimeout:           v.GetDuration(keyHTTPTimeout),
		UserAgent:             v.GetString(keyUserAgent),
		Proxies:               v.GetStringSlice(keyProxies),
		Headers:               v.GetStringMapString(keyHeaders),
		DataDir:               dataDir,
		Host:                  strings.ToLower(v.GetString(keyHost)),
		DBPath:                expandHome(v.GetString(keyDBPath)),
		RulesFile:             expandHome(v.GetString(keyRulesFile)),
		SessionsDir:           expandHome(v.GetString(keySessionsDir)),
		ScriptTimeout:         v.GetDuration(keyScriptTimeout),
		StaticRateLimitRPS:    v.GetFloat64(keyStaticRPS),
		StaticRateLimitBurst:  v.GetInt(keyStaticBurst),
		DynamicRateLimitRPS:   v.GetFloat64(keyBrowserRPS),
		DynamicRateLimitBurst: v.GetInt(keyBrowserBurst),
		BrowserPoolSize:       v.GetInt(keyBrowserPoolSize),
		ChromePath:            v.GetString(keyChromePath),
		BrowserSettle:         v.GetDuration(keyBrowserSettle),
		CacheTTL:              v.GetDuration(keyCacheTTL),
		CacheMaxSizeBytes:     v.GetInt64(keyCacheMaxBytes),
		AssetBackend:          strings.ToLower(v.GetString(keyAssetBackend)),
		AssetDir:              expandHome(v.GetString(keyAssetDir)),
		AssetMaxBytes:         v.GetInt64(keyAssetMaxBytes),
		S3: S3Config{
			Endpoint:  v.GetString(keyS3Endpoint),
			Bucket:    v.GetString(keyS3Bucket),
			AccessKey: v.GetString(keyS3AccessKey),
			SecretKey: v.GetString(keyS3SecretKey),
			Region:    v.GetString(keyS3Region),
			UseSSL:    v.GetBool(keyS3UseSSL),
			Prefix:    v.GetString(keyS3Prefix),
			PublicURL: v.GetString(keyS3PublicURL),
		},
		ServeAddr:  v.GetString(keyServeAddr),
		ServeToken: v.GetString(keyServeToken),
		ServeRPS:   v.GetFloat64(keyServeRPS),
		ServeBurst: v.GetInt(keyServeBurst),
		ConfigFile: v.ConfigFileUsed(),
	}

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(dataDir, "linkmeta.db")
	}
	if cfg.RulesFile == "" {
		cfg.RulesFile = filepath.Join(dataDir, "rules.json")
	}
	if cfg.SessionsDir == "" {
		cfg.SessionsDir = filepath.Join(dataDir, "sessions")
	}
	if cfg.AssetDir == "" && cfg.AssetBackend == AssetsFS {
		cfg.AssetDir = filepath.Join(dataDir, "assets")
	}
	return cfg
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDirName
	}
	return filepath.Join(home, DefaultDataDirName)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
