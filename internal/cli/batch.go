package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/law-makers/linkmeta/internal/engine/batch"
	"github.com/law-makers/linkmeta/internal/ui"
	"github.com/law-makers/linkmeta/internal/utils/output"
	"github.com/law-makers/linkmeta/pkg/models"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	batchImport bool
	batchReport string
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Extract or import every URL listed in a file",
	Long: `Reads one URL per line ("-" reads stdin; blank lines and # comments are
skipped) and runs them one at a time, alternating between domains so a single
site is not hit back to back. A failed URL is reported and the batch goes on.`,
	Example: `  # Extract only and write a CSV report
  linkmeta batch links.txt -o report.csv

  # Import each URL into today's journal
  linkmeta batch links.txt --import

  # Read from a pipe
  cat links.txt | linkmeta batch - --json`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().BoolVar(&batchImport, "import", false, "Import each URL instead of only extracting it")
	batchCmd.Flags().StringVarP(&batchReport, "output", "o", "", "Write a report (.csv or .json)")
	batchCmd.Flags().BoolVarP(&useBrowser, "browser", "b", false, "Render pages in headless Chrome")
	batchCmd.Flags().BoolVar(&skipAssets, "no-assets", false, "Keep remote cover URLs instead of downloading them")
}

func runBatch(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}

	var data []byte
	if args[0] == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read URL list: %w", err)
	}
	urls := batch.ReadList(string(data))
	if len(urls) == 0 {
		return fmt.Errorf("no URLs in %s", args[0])
	}

	opts := options()
	fn := func(ctx context.Context, url string) (*models.Extraction, error) {
		return a.Pipeline.Extract(ctx, url, opts)
	}
	if batchImport {
		fn = func(ctx context.Context, url string) (*models.Extraction, error) {
			return a.Pipeline.Import(ctx, url, "", opts)
		}
	}

	bar := progressbar.NewOptions(len(urls),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("Extracting"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetVisibility(!a.Config.JSONLog),
	)
	results := batch.New(fn).OnProgress(func(done, total int, res models.BatchResult) {
		bar.Describe(shorten(res.URL, 40))
		_ = bar.Add(1)
	}).Run(cmd.Context(), urls)
	_ = bar.Finish()

	if batchReport != "" {
		if err := saveReport(results, batchReport); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	failed := batch.Failed(results)
	if wantJSON(a) {
		if err := printJSON(out, results); err != nil {
			return err
		}
	} else {
		printBatchSummary(out, results, failed)
		if batchReport != "" {
			fmt.Fprintf(out, "Report: %s\n\n", batchReport)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d URLs failed", failed, len(results))
	}
	return nil
}

func saveReport(results []models.BatchResult, path string) error {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return output.SaveCSV(results, path)
	}
	return output.SaveJSON(results, path)
}

func printBatchSummary(w io.Writer, results []models.BatchResult, failed int) {
	fmt.Fprintln(w)
	for _, res := range results {
		if res.Error != "" {
			fmt.Fprintf(w, "%s %s\n  %s\n", ui.Error("✗"), res.URL, ui.Dim(res.Error))
			continue
		}
		ext := res.Extraction
		title := models.Summarize(ext.Properties).Title
		if title == "" {
			title = ext.Base.Title
		}
		fmt.Fprintf(w, "%s %s %s\n", ui.Success("✓"), res.URL, ui.Dim(fmt.Sprintf("[%s] %s", ext.Rule, title)))
	}
	fmt.Fprintf(w, "\n%s %d total, %s, %s\n\n", ui.Bold("Summary:"), len(results),
		ui.Success(fmt.Sprintf("%d ok", len(results)-failed)),
		ui.Error(fmt.Sprintf("%d failed", failed)))
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
