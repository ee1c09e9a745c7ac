// internal/cli/root.go
package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/law-makers/linkmeta/internal/app"
	"github.com/law-makers/linkmeta/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version is stamped at build time
var Version = "0.1.0"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "linkmeta",
	Short: "Extract link metadata with site rules and import it as tags",
	Long: `Linkmeta fetches a web page, runs the first matching site rule against it
and imports the resulting properties as a typed tag on a block.

Rules are small JavaScript programs that read the parsed document and return
a list of properties. The tag schema is created or widened on first use.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. The application is initialized lazily in
// PersistentPreRunE so -h and --version never open the database.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Command failed")
	}
	return err
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if GetAppFromCmd(cmd) != nil {
			return nil
		}

		cfg, err := config.Load(cmd)
		if err != nil {
			return err
		}

		a, err := app.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		SetApp(cmd, a)
		return nil
	}

	// Ensure the app is closed after the command runs
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		a := GetAppFromCmd(cmd)
		if a == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), a.Config.HTTPTimeout)
		defer cancel()
		err := a.Close(ctx)
		SetApp(cmd, nil)
		return err
	}

	config.RegisterFlags(rootCmd)

	rootCmd.Flags().BoolP("help", "h", false, "Help for linkmeta")
	rootCmd.Flags().Bool("version", false, "Version for linkmeta")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetHelpFunc(customHelpFunc)
	rootCmd.SetUsageFunc(customUsageFunc)
}

// wantJSON reports whether results should be printed as JSON
func wantJSON(a *app.Application) bool {
	return a.Config.JSONLog
}

// printJSON writes v indented to w
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// stdin is swapped in tests
var stdin io.Reader = os.Stdin
