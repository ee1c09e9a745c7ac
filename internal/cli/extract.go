package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/law-makers/linkmeta/internal/pipeline"
	"github.com/law-makers/linkmeta/internal/ui"
	"github.com/law-makers/linkmeta/pkg/models"
	"github.com/spf13/cobra"
)

var (
	useBrowser bool
	skipAssets bool
	targetID   string
	dryRun     bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <url>",
	Short: "Run the matching rule against a URL and print the properties",
	Long: `Fetches the page, selects the first enabled rule whose pattern matches the URL
and runs its script. Nothing is written to the database.`,
	Example: `  # Static fetch
  linkmeta extract https://book.douban.com/subject/2567698/

  # Render the page in headless Chrome first
  linkmeta extract https://example.com --browser

  # Machine-readable output
  linkmeta extract https://example.com --json`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

var importCmd = &cobra.Command{
	Use:   "import <url>",
	Short: "Extract a URL and apply the result as a tag",
	Long: `Extracts the URL, downloads covers when the rule asks for it and applies the
tag to the target block. Without --target a link block is created under
today's journal page.`,
	Example: `  # Import into today's journal
  linkmeta import https://github.com/golang/go

  # Tag an existing block
  linkmeta import https://github.com/golang/go --target 0b6f...

  # Show the schema changes without writing anything
  linkmeta import https://movie.douban.com/subject/1292052/ --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var blockCmd = &cobra.Command{
	Use:   "block <block-id>",
	Short: "Extract the first URL found in a block and tag that block",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlock,
}

func init() {
	rootCmd.AddCommand(extractCmd, importCmd, blockCmd)

	for _, cmd := range []*cobra.Command{extractCmd, importCmd, blockCmd} {
		cmd.Flags().BoolVarP(&useBrowser, "browser", "b", false, "Render the page in headless Chrome")
	}
	for _, cmd := range []*cobra.Command{importCmd, blockCmd} {
		cmd.Flags().BoolVar(&skipAssets, "no-assets", false, "Keep remote cover URLs instead of downloading them")
	}
	importCmd.Flags().StringVarP(&targetID, "target", "t", "", "Block to tag (default: new block in today's journal)")
	importCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the schema changes the import would make")
}

func options() pipeline.Options {
	return pipeline.Options{Browser: useBrowser, SkipAssets: skipAssets}
}

func runExtract(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}

	ext, err := a.Pipeline.Extract(cmd.Context(), args[0], options())
	if err != nil {
		return err
	}
	if wantJSON(a) {
		return printJSON(cmd.OutOrStdout(), ext)
	}
	printExtraction(cmd.OutOrStdout(), ext)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if dryRun {
		ext, err := a.Pipeline.Extract(cmd.Context(), args[0], options())
		if err != nil {
			return err
		}
		staged, err := a.Pipeline.Plan(cmd.Context(), ext)
		if err != nil {
			return err
		}
		if wantJSON(a) {
			return printJSON(out, map[string]any{"extraction": ext, "staged": staged})
		}
		printExtraction(out, ext)
		printPlan(out, ext.Tag, staged)
		return nil
	}

	ext, err := a.Pipeline.Import(cmd.Context(), args[0], targetID, options())
	if err != nil {
		return err
	}
	if wantJSON(a) {
		return printJSON(out, ext)
	}
	printExtraction(out, ext)
	return nil
}

func runBlock(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}

	ext, err := a.Pipeline.ApplyToBlock(cmd.Context(), args[0], options())
	if err != nil {
		return err
	}
	if wantJSON(a) {
		return printJSON(cmd.OutOrStdout(), ext)
	}
	printExtraction(cmd.OutOrStdout(), ext)
	return nil
}

// printExtraction renders a human summary of one extraction
func printExtraction(w io.Writer, ext *models.Extraction) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s\n", ui.Bold("URL:     "), ext.CleanURL)
	fmt.Fprintf(w, "%s %s %s\n", ui.Bold("Rule:    "), ext.Rule, ui.Dim("→ "+ext.Tag))
	fmt.Fprintf(w, "%s %s %s\n", ui.Bold("Fetched: "), string(ext.Mode), ui.Dim(fmt.Sprintf("status %d in %s", ext.StatusCode, time.Duration(ext.DurationMs)*time.Millisecond)))
	if ext.Base.Title != "" {
		fmt.Fprintf(w, "%s %s\n", ui.Bold("Title:   "), ext.Base.Title)
	}
	if ext.ScriptError != "" {
		fmt.Fprintf(w, "%s %s\n", ui.Bold("Script:  "), ui.Error(ext.ScriptError))
	}

	if len(ext.Properties) == 0 {
		fmt.Fprintf(w, "\n%s\n", ui.Info("No properties extracted."))
	} else {
		fmt.Fprintf(w, "\n%s\n", ui.Bold(fmt.Sprintf("Properties (%d)", len(ext.Properties))))
		width := 0
		for _, p := range ext.Properties {
			width = max(width, len(p.Name))
		}
		for _, p := range ext.Properties {
			fmt.Fprintf(w, "  %s%s%s  %s\n",
				ui.Paint(ui.ColorCyan, p.Name),
				strings.Repeat(" ", width-len(p.Name)),
				ui.Dim(fmt.Sprintf("%-11s", p.Type.String())),
				formatValue(p.Value))
		}
	}

	if ext.TagID != "" {
		fmt.Fprintf(w, "\n%s tagged block %s with %s\n", ui.Success("✓"), ext.TargetID, ext.Tag)
	}
	fmt.Fprintln(w)
}

// printPlan lists the definitions a dry run would write
func printPlan(w io.Writer, tag string, staged []models.PropertyDefinition) {
	if len(staged) == 0 {
		fmt.Fprintf(w, "%s schema of %s is up to date\n\n", ui.Success("✓"), tag)
		return
	}
	fmt.Fprintf(w, "%s\n", ui.Bold(fmt.Sprintf("Schema changes for %s (%d)", tag, len(staged))))
	for _, def := range staged {
		line := fmt.Sprintf("  + %s %s", def.Name, ui.Dim(def.Type.String()))
		if choices := def.Choices(); len(choices) > 0 {
			names := make([]string, len(choices))
			for i, c := range choices {
				names[i] = c.N
			}
			line += " " + ui.Dim("["+strings.Join(names, ", ")+"]")
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ui.Dim("(empty)")
	case []string:
		return strings.Join(val, ", ")
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, ", ")
	case string:
		if r := []rune(val); len(r) > 120 {
			return string(r[:117]) + "..."
		}
		return val
	default:
		return fmt.Sprint(val)
	}
}
