package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gosimple/slug"
	"github.com/law-makers/linkmeta/internal/ui"
	"github.com/law-makers/linkmeta/internal/utils/output"
	"github.com/spf13/cobra"
)

var clipOutput string

var clipCmd = &cobra.Command{
	Use:   "clip <url>",
	Short: "Save a page's main content as Markdown",
	Long: `Converts the main content of a page to Markdown. Rules with a content script
decide what the content is; otherwise the page's article or main element is used.`,
	Example: `  # Print Markdown to stdout
  linkmeta clip https://go.dev/blog/go1.22

  # Save to a file (".md" is added when the name has no extension)
  linkmeta clip https://go.dev/blog/go1.22 -o notes/go122

  # Save under a name derived from the title
  linkmeta clip https://go.dev/blog/go1.22 -o .`,
	Args: cobra.ExactArgs(1),
	RunE: runClip,
}

func init() {
	rootCmd.AddCommand(clipCmd)

	clipCmd.Flags().StringVarP(&clipOutput, "output", "o", "", "File to write, or a directory to name the file after the title")
	clipCmd.Flags().BoolVarP(&useBrowser, "browser", "b", false, "Render the page in headless Chrome")
}

func runClip(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}

	clip, err := a.Pipeline.Clip(cmd.Context(), args[0], options())
	if err != nil {
		return err
	}

	if clipOutput == "" {
		if wantJSON(a) {
			return printJSON(cmd.OutOrStdout(), clip)
		}
		fmt.Fprintln(cmd.OutOrStdout(), clip.Markdown)
		return nil
	}

	path := markdownPath(clipOutput, clip.Title)
	if err := output.SaveMarkdown(clip.Title, clip.URL, clip.Markdown, path); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Saved to %s\n", ui.Success("✓"), path)
	return nil
}

// markdownPath resolves -o: directories get a file named after the title
func markdownPath(target, title string) string {
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		name := slug.Make(title)
		if name == "" {
			name = "clip"
		}
		return filepath.Join(target, name+".md")
	}
	if filepath.Ext(target) == "" {
		return target + ".md"
	}
	return target
}
