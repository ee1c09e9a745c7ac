package cli

import (
	"github.com/law-makers/linkmeta/internal/server"
	"github.com/spf13/cobra"
)

var (
	serveAddr  string
	serveToken string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pipeline over HTTP",
	Long: `Starts a JSON API for editors and browser extensions:

  POST /v1/extract              {"url": "..."}
  POST /v1/import               {"url": "...", "target": "..."}
  POST /v1/clip                 {"url": "..."}
  POST /v1/blocks/{id}/extract
  GET  /v1/rules, /v1/tags, /v1/tags/{name}
  GET  /health, /metrics

When a token is configured every /v1 request needs "Authorization: Bearer <token>".`,
	Example: `  linkmeta serve --addr 127.0.0.1:7420
  LINKMETA_SERVE_TOKEN=secret linkmeta serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "Bearer token required on /v1 routes (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}

	addr := a.Config.ServeAddr
	if serveAddr != "" {
		addr = serveAddr
	}
	token := a.Config.ServeToken
	if serveToken != "" {
		token = serveToken
	}
	if token == "" {
		a.Logger.Warn().Str("addr", addr).Msg("No token configured, the API is open to anyone who can reach it")
	}

	srv := server.New(a.Pipeline, a.Host, a.Metrics, server.Options{
		Token:             token,
		RequestsPerSecond: a.Config.ServeRPS,
		Burst:             a.Config.ServeBurst,
	})
	return srv.ListenAndServe(cmd.Context(), addr)
}
