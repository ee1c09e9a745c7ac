package dynamic

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/law-makers/linkmeta/internal/engine"
	"github.com/law-makers/linkmeta/pkg/models"
)

func TestCandidatePaths(t *testing.T) {
	env := map[string]string{"HOME": "/home/u", "ProgramFiles": `C:\Program Files`}
	getenv := func(k string) string { return env[k] }

	linux := candidatePaths("linux", getenv)
	if linux[0] != "/usr/bin/google-chrome-stable" {
		t.Errorf("Unexpected first linux candidate %s", linux[0])
	}
	if !strings.HasPrefix(linux[len(linux)-1], "/home/u/") {
		t.Errorf("Expected flatpak candidate under HOME, got %s", linux[len(linux)-1])
	}

	windows := candidatePaths("windows", getenv)
	if len(windows) != 3 {
		t.Errorf("Expected candidates for one install root, got %d", len(windows))
	}

	if candidatePaths("plan9", getenv) != nil {
		t.Error("Expected no candidates for unknown OS")
	}
}

func TestIsExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on windows")
	}
	dir := t.TempDir()
	exe := filepath.Join(dir, "chrome")
	plain := filepath.Join(dir, "notes.txt")
	os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755)
	os.WriteFile(plain, []byte("x"), 0o644)

	if !isExecutable(exe) {
		t.Error("Expected executable file to be detected")
	}
	if isExecutable(plain) {
		t.Error("Expected non-executable file to be rejected")
	}
	if isExecutable(dir) {
		t.Error("Expected directory to be rejected")
	}
}

func TestFindChrome_EnvOverride(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on windows")
	}
	exe := filepath.Join(t.TempDir(), "my-chrome")
	os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755)
	t.Setenv("CHROME_PATH", exe)

	path, err := FindChrome()
	if err != nil {
		t.Fatalf("FindChrome failed: %v", err)
	}
	if path != exe {
		t.Errorf("Expected CHROME_PATH to win, got %s", path)
	}
}

func TestAllocatorOptions(t *testing.T) {
	headless := allocatorOptions(BrowserOptions{Headless: true, UserAgent: "UA", ChromePath: "/bin/chrome"})
	visible := allocatorOptions(BrowserOptions{})
	if len(headless) != len(visible)+2 {
		t.Errorf("Expected exec path and user agent to add two options, got %d vs %d", len(headless), len(visible))
	}
}

func TestFetch_InvalidURLSkipsBrowser(t *testing.T) {
	s := New(BrowserOptions{}, nil, time.Second)
	_, err := s.Fetch(context.Background(), "not a url")
	if engine.CodeOf(err) != engine.ErrCodeValidation {
		t.Errorf("Expected VALIDATION, got %v", err)
	}
	s.mu.Lock()
	started := s.pool != nil
	s.mu.Unlock()
	if started {
		t.Error("Browser should not start for an invalid URL")
	}
}

func TestAcquire_ClosedPool(t *testing.T) {
	pool := &BrowserPool{contexts: make(chan *BrowserContext, 1), allocCancel: func() {}}
	pool.Close()
	if _, err := pool.Acquire(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Expected ErrPoolClosed, got %v", err)
	}
}

func TestAcquire_ContextDone(t *testing.T) {
	pool := &BrowserPool{contexts: make(chan *BrowserContext, 1), allocCancel: func() {}}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := pool.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error, got %v", err)
	}
}

func TestFetch_RendersScripts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	if _, err := FindChrome(); err != nil {
		t.Skip("Chrome not available")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<!DOCTYPE html>
<html><head><title>Shell</title></head>
<body><div id="root"></div>
<script>
document.title = "Rendered";
document.getElementById("root").innerHTML = "<h1>Loaded by JavaScript</h1>";
</script></body></html>`))
	}))
	defer server.Close()

	s := New(BrowserOptions{Size: 1}, nil, 20*time.Second)
	defer s.Close()

	page, err := s.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if page.Mode != models.ModeBrowser {
		t.Errorf("Expected browser mode, got %s", page.Mode)
	}
	if page.Base.Title != "Rendered" {
		t.Errorf("Expected script-set title, got %q", page.Base.Title)
	}
	if page.Document.Find("#root h1").Text() != "Loaded by JavaScript" {
		t.Error("Expected DOM produced by the page script")
	}
	if page.StatusCode != 200 {
		t.Errorf("Expected status 200, got %d", page.StatusCode)
	}
}
