// internal/cli/sessions.go
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/law-makers/linkmeta/internal/auth"
	"github.com/law-makers/linkmeta/internal/ui"
	"github.com/spf13/cobra"
)

var assumeYes bool

// sessionsCmd represents the sessions command
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage saved cookie sessions",
	Long: `List, view, import and delete saved sessions.

Sessions hold cookies and headers for one domain. They are stored in the OS
keyring (or as files under the data directory when no keyring is available)
and are sent automatically with every fetch whose host they cover.`,
	Example: `  # List all saved sessions
  linkmeta sessions list

  # View details of a specific session
  linkmeta sessions view douban

  # Delete a session
  linkmeta sessions delete douban --yes`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all saved sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsViewCmd = &cobra.Command{
	Use:   "view <session-name>",
	Short: "View details of a saved session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsView,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-name>",
	Short: "Delete a saved session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsViewCmd, sessionsDeleteCmd)

	sessionsDeleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Delete without asking")
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	names, err := a.Sessions.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(names) == 0 {
		fmt.Fprintln(out, "\nNo saved sessions found.")
		fmt.Fprintln(out, "\nCreate one with:")
		fmt.Fprintln(out, "  linkmeta sessions import <name> --url=<url>")
		fmt.Fprintln(out, "  linkmeta browse <url>   (then press s)")
		fmt.Fprintln(out)
		return nil
	}

	fmt.Fprintf(out, "\n%s\n\n", ui.Bold(fmt.Sprintf("Saved Sessions (%d)", len(names))))
	for i, name := range names {
		fmt.Fprintf(out, "%d. %s\n", i+1, ui.Paint(ui.ColorCyan, name))

		session, err := a.Sessions.Load(name)
		if err != nil {
			if errors.Is(err, auth.ErrSessionExpired) {
				fmt.Fprintf(out, "   %s\n", ui.Warn("Expired"))
			} else {
				fmt.Fprintf(out, "   %s\n", ui.Error(fmt.Sprintf("Error loading: %v", err)))
			}
			continue
		}

		fmt.Fprintf(out, "   Domain:  %s\n", session.Domain)
		fmt.Fprintf(out, "   Cookies: %d\n", len(session.Cookies))
		fmt.Fprintf(out, "   Created: %s\n", session.CreatedAt.Format(time.RFC1123))
		if !session.ExpiresAt.IsZero() {
			fmt.Fprintf(out, "   Expires: %s (in %s)\n",
				session.ExpiresAt.Format(time.RFC1123),
				time.Until(session.ExpiresAt).Round(time.Hour))
		}
	}
	fmt.Fprintln(out)
	return nil
}

func runSessionsView(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	name := args[0]

	session, err := a.Sessions.Load(name)
	if err != nil {
		return fmt.Errorf("failed to load session '%s': %w", name, err)
	}
	if wantJSON(a) {
		return printJSON(out, session)
	}

	fmt.Fprintf(out, "\n%s\n\n", ui.Bold("Session: "+name))
	fmt.Fprintf(out, "Domain:   %s\n", session.Domain)
	fmt.Fprintf(out, "Created:  %s\n", session.CreatedAt.Format(time.RFC1123))
	if !session.ExpiresAt.IsZero() {
		fmt.Fprintf(out, "Expires:  %s\n", session.ExpiresAt.Format(time.RFC1123))
	}

	fmt.Fprintf(out, "\nCookies (%d):\n", len(session.Cookies))
	for i, cookie := range session.Cookies {
		if i >= 5 {
			fmt.Fprintf(out, "  ... and %d more\n", len(session.Cookies)-5)
			break
		}
		fmt.Fprintf(out, "  • %s %s\n", cookie.Name, ui.Dim("(domain: "+cookie.Domain+")"))
	}

	if len(session.Headers) > 0 {
		fmt.Fprintf(out, "\nHeaders (%d):\n", len(session.Headers))
		for key := range session.Headers {
			fmt.Fprintf(out, "  • %s\n", key)
		}
	}

	fmt.Fprintln(out)
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	name := args[0]

	if !assumeYes {
		fmt.Fprintf(out, "\nDelete session '%s'? [y/N]: ", name)
		answer, _ := bufio.NewReader(stdin).ReadString('\n')
		if reply := strings.TrimSpace(answer); reply != "y" && reply != "Y" {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	if err := a.Sessions.Delete(name); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	fmt.Fprintf(out, "\n%s Session '%s' deleted.\n\n", ui.Success("✓"), name)
	return nil
}
