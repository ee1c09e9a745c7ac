package config

import "github.com/spf13/cobra"

// flagKeys maps persistent flags onto config keys
var flagKeys = map[string]string{
	"timeout":        keyHTTPTimeout,
	"user-agent":     keyUserAgent,
	"proxy":          keyProxies,
	"data-dir":       keyDataDir,
	"host":           keyHost,
	"db":             keyDBPath,
	"rules":          keyRulesFile,
	"assets":         keyAssetBackend,
	"script-timeout": keyScriptTimeout,
	"chrome-path":    keyChromePath,
	"json":           keyJSONLog,
}

// RegisterFlags registers common CLI flags on the provided root command
func RegisterFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress all output except errors")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format only")
	cmd.PersistentFlags().String("config", "", "Path to configuration file (optional)")
	cmd.PersistentFlags().String("timeout", "30s", "Set hard timeout for requests")
	cmd.PersistentFlags().String("user-agent", "", "Custom user agent string")
	cmd.PersistentFlags().StringSlice("proxy", nil, "HTTP/SOCKS5 proxies, rotated per request (e.g., http://localhost:8080)")
	cmd.PersistentFlags().String("data-dir", "", "Directory for the local database, rules and sessions")
	cmd.PersistentFlags().String("host", "", "Host backend: sqlite or memory")
	cmd.PersistentFlags().String("db", "", "Path to the SQLite database (default <data-dir>/linkmeta.db)")
	cmd.PersistentFlags().String("rules", "", "Rule file, JSON or YAML (default <data-dir>/rules.json, built-in rules when missing)")
	cmd.PersistentFlags().String("assets", "", "Where downloaded covers go: host, fs or s3")
	cmd.PersistentFlags().String("script-timeout", "5s", "Maximum run time of a rule script")
	cmd.PersistentFlags().String("chrome-path", "", "Chrome/Chromium executable for browser mode")
}
