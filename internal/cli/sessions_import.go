// internal/cli/sessions_import.go
package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/law-makers/linkmeta/internal/auth"
	"github.com/law-makers/linkmeta/internal/ui"
	headersutil "github.com/law-makers/linkmeta/internal/utils/headers"
	"github.com/spf13/cobra"
)

var (
	importURL     string
	importFormat  string
	importHeaders []string
)

// sessionsImportCmd represents the sessions import command
var sessionsImportCmd = &cobra.Command{
	Use:   "import <session-name>",
	Short: "Import cookies from your browser to create a session",
	Long: `Import cookies exported from a regular browser to create a session.

Use this where "linkmeta browse" cannot open a window (containers, SSH).

Steps:
1. Open the website in your regular browser and log in
2. Export the cookies (a cookies.txt extension, or DevTools → Application → Cookies)
3. Pipe them into this command`,
	Example: `  # Enter cookies by hand
  linkmeta sessions import douban --url=https://www.douban.com

  # Netscape/curl cookie file
  linkmeta sessions import github --url=https://github.com --format=netscape < cookies.txt

  # JSON array exported from DevTools
  linkmeta sessions import mysite --url=https://example.com --format=json < cookies.json`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionsImport,
}

func init() {
	sessionsCmd.AddCommand(sessionsImportCmd)

	sessionsImportCmd.Flags().StringVar(&importURL, "url", "", "Website URL for this session (required)")
	sessionsImportCmd.Flags().StringVar(&importFormat, "format", "interactive", "Import format: interactive, json, netscape")
	sessionsImportCmd.Flags().StringArrayVarP(&importHeaders, "header", "H", nil, "Extra request header (e.g., -H \"Authorization: Bearer x\")")
	sessionsImportCmd.MarkFlagRequired("url")
}

func runSessionsImport(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	name := args[0]

	domain := auth.DomainOf(importURL)
	if domain == "" {
		return fmt.Errorf("invalid --url %q", importURL)
	}

	var cookies []auth.Cookie
	switch importFormat {
	case "interactive":
		cookies, err = importInteractive(out, stdin, domain)
	case "json":
		cookies, err = auth.ParseJSON(stdin)
	case "netscape":
		cookies, err = auth.ParseNetscape(stdin)
	default:
		return fmt.Errorf("unsupported format: %s (use: interactive, json, netscape)", importFormat)
	}
	if err != nil {
		return fmt.Errorf("failed to import cookies: %w", err)
	}
	if len(cookies) == 0 {
		return fmt.Errorf("no cookies imported")
	}

	session := &auth.Session{
		Name:      name,
		Domain:    domain,
		Cookies:   cookies,
		Headers:   headersutil.ParseHeaders(importHeaders),
		CreatedAt: time.Now(),
		ExpiresAt: auth.EarliestExpiry(cookies),
	}
	if err := a.Sessions.Save(session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	fmt.Fprintf(out, "\n%s Session '%s' saved for %s\n", ui.Success("✓"), name, domain)
	fmt.Fprintf(out, "   Cookies: %d\n", len(cookies))
	if !session.ExpiresAt.IsZero() {
		fmt.Fprintf(out, "   Expires: %s\n", session.ExpiresAt.Format(time.RFC1123))
	}
	fmt.Fprintln(out, "\nIt is used automatically for every URL on that domain.")
	fmt.Fprintln(out)
	return nil
}

// importInteractive prompts for name/value pairs until an empty name
func importInteractive(out io.Writer, in io.Reader, domain string) ([]auth.Cookie, error) {
	fmt.Fprintln(out, "Enter each cookie's name and value as shown in DevTools → Application → Cookies.")

	var cookies []auth.Cookie
	scanner := bufio.NewScanner(in)
	prompt := func(label string) (string, bool) {
		fmt.Fprint(out, label)
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	for {
		name, ok := prompt("\nCookie name (Enter to finish): ")
		if !ok || name == "" {
			break
		}
		value, ok := prompt("Cookie value: ")
		if !ok {
			break
		}
		if value == "" {
			fmt.Fprintln(out, ui.Warn("Skipping cookie with empty value"))
			continue
		}
		cookieDomain, ok := prompt(fmt.Sprintf("Domain [.%s]: ", domain))
		if !ok {
			break
		}
		if cookieDomain == "" {
			cookieDomain = "." + domain
		}

		cookies = append(cookies, auth.Cookie{
			Name:     name,
			Value:    value,
			Domain:   cookieDomain,
			Path:     "/",
			Secure:   true,
			HTTPOnly: true,
		})
		fmt.Fprintf(out, "%s Added %s\n", ui.Success("✓"), name)
	}
	return cookies, scanner.Err()
}
