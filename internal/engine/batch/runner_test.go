package batch

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/law-makers/linkmeta/pkg/models"
)

func mockExtract(calls *[]string) ExtractFunc {
	return func(ctx context.Context, url string) (*models.Extraction, error) {
		*calls = append(*calls, url)
		if url == "https://bad.example/x" {
			return nil, errors.New("fetch error")
		}
		return &models.Extraction{URL: url}, nil
	}
}

func TestRunner(t *testing.T) {
	var calls []string
	urls := []string{
		"https://a.example/1",
		"https://a.example/2",
		"https://b.example/1",
		"https://bad.example/x",
	}

	var progress []int
	results := New(mockExtract(&calls)).
		OnProgress(func(done, total int, _ models.BatchResult) {
			if total != 4 {
				t.Errorf("Expected total 4, got %d", total)
			}
			progress = append(progress, done)
		}).
		Run(context.Background(), urls)

	if len(results) != 4 {
		t.Fatalf("Expected 4 results, got %d", len(results))
	}
	for i, res := range results {
		if res.URL != urls[i] {
			t.Errorf("Result %d out of order: %s", i, res.URL)
		}
	}
	if Failed(results) != 1 || results[3].Error == "" {
		t.Errorf("Expected only the last URL to fail, got %+v", results)
	}

	want := []string{"https://a.example/1", "https://b.example/1", "https://bad.example/x", "https://a.example/2"}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("Expected round-robin order %v, got %v", want, calls)
	}
	if !reflect.DeepEqual(progress, []int{1, 2, 3, 4}) {
		t.Errorf("Unexpected progress callbacks %v", progress)
	}
}

func TestRunner_Cancelled(t *testing.T) {
	var calls []string
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := New(mockExtract(&calls)).Run(ctx, []string{"https://a.example/1", "https://b.example/1"})
	if len(calls) != 0 {
		t.Errorf("Expected no extraction after cancel, got %v", calls)
	}
	if Failed(results) != 2 {
		t.Errorf("Expected both results to carry the context error")
	}
}

func TestInterleave(t *testing.T) {
	urls := []string{"https://x.io/1", "https://x.io/2", "https://x.io/3", "https://y.io/1", "not a url"}
	got := Interleave(urls)
	want := []int{0, 3, 4, 1, 2}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestReadList(t *testing.T) {
	got := ReadList("# books\nhttps://a.example/1\n\n  https://b.example/2  \r\n")
	want := []string{"https://a.example/1", "https://b.example/2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}
