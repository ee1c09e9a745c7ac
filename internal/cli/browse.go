package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/law-makers/linkmeta/internal/app"
	"github.com/law-makers/linkmeta/internal/auth"
	"github.com/law-makers/linkmeta/internal/engine/dynamic"
	"github.com/law-makers/linkmeta/internal/ui"
	"github.com/law-makers/linkmeta/pkg/models"
	"github.com/spf13/cobra"
)

var browseCmd = &cobra.Command{
	Use:   "browse [url]",
	Short: "Open a visible browser and extract whatever page it shows",
	Long: `Opens Chrome with a window you control. Log in, click through, close
pop-ups; then come back to the terminal and use:

  Enter         extract the current page
  a [block-id]  import the last extraction (default: today's journal)
  s <name>      save the browser's cookies as a session
  g <url>       navigate to a URL
  q             quit

Saved sessions are reused automatically by every later fetch on that domain.`,
	Example: `  linkmeta browse https://accounts.douban.com/passport/login`,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)
	browseCmd.Flags().BoolVar(&skipAssets, "no-assets", false, "Keep remote cover URLs instead of downloading them")
}

func runBrowse(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	startURL := ""
	if len(args) == 1 {
		startURL = args[0]
	}

	var cookies []auth.Cookie
	if startURL != "" {
		if session, err := a.Sessions.ForURL(startURL); err == nil && session != nil {
			cookies = session.Cookies
			a.Logger.Debug().Str("session", session.Name).Msg("Seeding live browser with session")
		}
	}

	opts := dynamic.BrowserOptions{UserAgent: a.Config.UserAgent, ChromePath: a.Config.ChromePath}
	tab, err := dynamic.OpenLive(opts, startURL, cookies)
	if err != nil {
		return err
	}
	defer tab.Close()
	a.Logger.Debug().Str("chrome", dynamic.ChromeVersion(opts.ChromePath)).Msg("Live browser started")

	fmt.Fprintf(out, "\n%s\n%s\n", ui.Bold("Browser open."), ui.Dim("Enter: extract  a: import  s <name>: save session  g <url>: go  q: quit"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := readLines(ctx, stdin)

	b := &browseSession{app: a, tab: tab, out: out}
	for {
		fmt.Fprint(out, ui.Paint(ui.ColorCyan, "> "))
		select {
		case <-ctx.Done():
			return nil
		case <-tab.Done():
			fmt.Fprintln(out, "\nBrowser closed.")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := b.handle(ctx, strings.TrimSpace(line))
			if err != nil {
				fmt.Fprintf(out, "%s %v\n", ui.Error("✗"), err)
			}
			if quit {
				return nil
			}
		}
	}
}

// readLines streams lines from r until r ends or ctx is done
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// browseSession carries state between interactive commands
type browseSession struct {
	app  *app.Application
	tab  *dynamic.LiveTab
	out  io.Writer
	last *models.Extraction
}

func (b *browseSession) handle(ctx context.Context, line string) (bool, error) {
	verb, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch verb {
	case "":
		page, err := b.tab.Snapshot(ctx)
		if err != nil {
			return false, err
		}
		ext, err := b.app.Pipeline.ExtractPage(ctx, page)
		if err != nil {
			return false, err
		}
		b.last = ext
		printExtraction(b.out, ext)

	case "a":
		if b.last == nil {
			return false, fmt.Errorf("nothing extracted yet, press Enter first")
		}
		if err := b.app.Pipeline.Apply(ctx, b.last, arg, options()); err != nil {
			return false, err
		}
		printExtraction(b.out, b.last)

	case "s":
		if arg == "" {
			return false, fmt.Errorf("usage: s <session-name>")
		}
		return false, b.saveSession(ctx, arg)

	case "g":
		if arg == "" {
			return false, fmt.Errorf("usage: g <url>")
		}
		return false, b.tab.Navigate(ctx, arg)

	case "q", "quit", "exit":
		return true, nil

	default:
		return false, fmt.Errorf("unknown command %q", verb)
	}
	return false, nil
}

func (b *browseSession) saveSession(ctx context.Context, name string) error {
	page, err := b.tab.Snapshot(ctx)
	if err != nil {
		return err
	}
	cookies, err := b.tab.Cookies(ctx)
	if err != nil {
		return err
	}
	if len(cookies) == 0 {
		return fmt.Errorf("the browser holds no cookies for this page")
	}

	session := &auth.Session{
		Name:      name,
		Domain:    auth.DomainOf(page.FinalURL),
		Cookies:   cookies,
		CreatedAt: time.Now(),
		ExpiresAt: auth.EarliestExpiry(cookies),
	}
	if err := b.app.Sessions.Save(session); err != nil {
		return err
	}
	fmt.Fprintf(b.out, "%s Session '%s' saved for %s (%d cookies)\n", ui.Success("✓"), name, session.Domain, len(cookies))
	return nil
}
