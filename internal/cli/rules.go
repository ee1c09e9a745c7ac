package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/law-makers/linkmeta/internal/rules"
	"github.com/law-makers/linkmeta/internal/ui"
	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportOutput string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and manage site rules",
	Long: `Rules are tried in order; the first enabled rule whose URL pattern matches
is used. Patterns are regular expressions, optionally written as /body/flags.

Rules are read from the rules file in the data directory. When it does not
exist the built-in set is used.`,
	Example: `  # Show the active rules in match order
  linkmeta rules list

  # Which rule handles a URL?
  linkmeta rules match https://movie.douban.com/subject/1292052/

  # Start a custom rule file from the built-ins
  linkmeta rules export --format yaml -o ~/.linkmeta/rules.yaml`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules in match order",
	Args:  cobra.NoArgs,
	RunE:  runRulesList,
}

var rulesMatchCmd = &cobra.Command{
	Use:   "match <url>",
	Short: "Show the rule that would handle a URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesMatch,
}

var rulesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the active rules as JSON or YAML",
	Args:  cobra.NoArgs,
	RunE:  runRulesExport,
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Add or replace rules from a JSON or YAML file",
	Long: `Rules from the file replace active rules with the same id and are appended
otherwise. The merged set is saved to the rules file.`,
	Args: cobra.ExactArgs(1),
	RunE: runRulesImport,
}

var rulesEnableCmd = &cobra.Command{
	Use:   "enable <rule-id>",
	Short: "Enable a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setRuleEnabled(cmd, args[0], true) },
}

var rulesDisableCmd = &cobra.Command{
	Use:   "disable <rule-id>",
	Short: "Disable a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setRuleEnabled(cmd, args[0], false) },
}

var rulesRemoveCmd = &cobra.Command{
	Use:   "remove <rule-id>",
	Short: "Remove a rule from the rules file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesRemove,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd, rulesMatchCmd, rulesExportCmd, rulesImportCmd, rulesEnableCmd, rulesDisableCmd, rulesRemoveCmd)

	rulesExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Output format: json or yaml (files use their extension)")
	rulesExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to a file instead of stdout")
}

func runRulesList(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	list := a.Rules.Rules()

	if wantJSON(a) {
		return printJSON(out, list)
	}

	fmt.Fprintf(out, "\n%s\n\n", ui.Bold(fmt.Sprintf("Rules (%d)", len(list))))
	for i, r := range list {
		state := ui.Success("on ")
		if !r.Enabled {
			state = ui.Dim("off")
		}
		fmt.Fprintf(out, "%2d. %s %s %s\n", i+1, state, ui.Paint(ui.ColorCyan, r.ID), ui.Dim("→ "+r.TagName))
		fmt.Fprintf(out, "    %s\n", r.URLPattern)
	}
	fmt.Fprintln(out)
	return nil
}

func runRulesMatch(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}

	rule, err := a.Rules.Match(args[0])
	if err != nil {
		return err
	}
	if wantJSON(a) {
		return printJSON(cmd.OutOrStdout(), rule)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s) → tag %s\n", ui.Success("✓"), rule.ID, rule.Name, rule.TagName)
	return nil
}

func runRulesExport(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}

	format := strings.ToLower(exportFormat)
	if format != "json" && format != "yaml" {
		return fmt.Errorf("invalid format: %s (must be json or yaml)", exportFormat)
	}
	if exportOutput != "" {
		if err := a.Rules.SaveFile(exportOutput); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s Saved %d rules to %s\n", ui.Success("✓"), a.Rules.Len(), exportOutput)
		return nil
	}

	data, err := rules.Encode("rules."+format, a.Rules.Rules())
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runRulesImport(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	list, err := rules.Decode(args[0], data)
	if err != nil {
		return err
	}
	for _, r := range list {
		if err := a.Rules.Put(r); err != nil {
			return fmt.Errorf("rule %q: %w", r.ID, err)
		}
	}
	if err := a.Rules.SaveFile(a.Config.RulesFile); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Imported %d rules into %s\n", ui.Success("✓"), len(list), a.Config.RulesFile)
	return nil
}

func setRuleEnabled(cmd *cobra.Command, id string, enabled bool) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}
	if err := a.Rules.SetEnabled(id, enabled); err != nil {
		return err
	}
	if err := a.Rules.SaveFile(a.Config.RulesFile); err != nil {
		return err
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Rule %s %s\n", ui.Success("✓"), id, state)
	return nil
}

func runRulesRemove(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}
	if err := a.Rules.Remove(args[0]); err != nil {
		return err
	}
	if err := a.Rules.SaveFile(a.Config.RulesFile); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Rule %s removed\n", ui.Success("✓"), args[0])
	return nil
}
