package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/law-makers/linkmeta/internal/host"
	"github.com/law-makers/linkmeta/internal/ui"
	"github.com/law-makers/linkmeta/pkg/models"
	"github.com/spf13/cobra"
)

var tagsCmd = &cobra.Command{
	Use:   "tags [name]",
	Short: "List tag schemas, or show one tag's property definitions",
	Example: `  linkmeta tags
  linkmeta tags Book --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTags,
}

func init() {
	rootCmd.AddCommand(tagsCmd)
}

func runTags(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		schema, err := a.Host.GetTagSchema(cmd.Context(), args[0])
		if errors.Is(err, host.ErrNotFound) {
			return fmt.Errorf("tag %q does not exist", args[0])
		}
		if err != nil {
			return err
		}
		if wantJSON(a) {
			return printJSON(out, schema)
		}
		printSchema(out, schema)
		return nil
	}

	tags, err := a.Host.ListTags(cmd.Context())
	if err != nil {
		return err
	}
	if wantJSON(a) {
		return printJSON(out, tags)
	}
	if len(tags) == 0 {
		fmt.Fprintln(out, "\nNo tags yet. Import a URL to create one.")
		fmt.Fprintln(out)
		return nil
	}
	fmt.Fprintf(out, "\n%s\n\n", ui.Bold(fmt.Sprintf("Tags (%d)", len(tags))))
	for _, t := range tags {
		fmt.Fprintf(out, "  %s %s\n", ui.Paint(ui.ColorCyan, t.Name), ui.Dim(fmt.Sprintf("%d properties, version %d", len(t.Properties), t.Version)))
	}
	fmt.Fprintln(out)
	return nil
}

func printSchema(w io.Writer, schema *models.TagSchema) {
	fmt.Fprintf(w, "\n%s %s\n\n", ui.Bold(schema.Name), ui.Dim(fmt.Sprintf("version %d", schema.Version)))
	if len(schema.Properties) == 0 {
		fmt.Fprintln(w, "  (no properties)")
	}
	for _, def := range schema.Properties {
		line := fmt.Sprintf("  %-20s %s", def.Name, ui.Dim(def.Type.String()))
		if sub, ok := def.TypeArgs["subType"].(string); ok && sub != "" {
			line += ui.Dim("/" + sub)
		}
		if choices := def.Choices(); len(choices) > 0 {
			line += fmt.Sprintf("  %d choices", len(choices))
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
}
