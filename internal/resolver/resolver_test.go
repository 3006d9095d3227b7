package resolver

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nao1215/pdfaudit/internal/model"
)

// TestNormalize tests URL canonicalization.
func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"lower-cases scheme and host", "HTTP://Example.COM/Path", "http://example.com/Path"},
		{"drops http default port", "http://example.com:80/a", "http://example.com/a"},
		{"drops https default port", "https://example.com:443/a", "https://example.com/a"},
		{"keeps other ports", "https://example.com:8443/a", "https://example.com:8443/a"},
		{"drops fragment", "http://example.com/a#section-2", "http://example.com/a"},
		{"keeps query verbatim", "http://example.com/a?b=2&a=1", "http://example.com/a?b=2&a=1"},
		{"keeps trailing slash", "http://example.com/docs/", "http://example.com/docs/"},
		{"keeps bare host without slash", "http://example.com", "http://example.com"},
		{"trims whitespace", "  http://example.com/x  ", "http://example.com/x"},
		{"strips root dot", "http://example.com./x", "http://example.com/x"},
		{"converts IDN host", "http://Bücher.example/", "http://xn--bcher-kva.example/"},
		{"handles IPv6 host", "http://[::1]:80/x", "http://[::1]/x"},
		{"keeps percent encoding", "http://example.com/a%20b", "http://example.com/a%20b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Normalize(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

// TestNormalizeEquivalence tests which spellings share a key.
func TestNormalizeEquivalence(t *testing.T) {
	t.Parallel()

	mustNormalize := func(raw string) string {
		t.Helper()
		key, err := Normalize(raw)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", raw, err)
		}
		return key
	}

	if mustNormalize("http://example.com/a#x") != mustNormalize("http://EXAMPLE.com/a#y") {
		t.Error("URLs differing only by fragment and host case must be equivalent")
	}
	if mustNormalize("http://example.com/a?x=1") == mustNormalize("http://example.com/a?x=2") {
		t.Error("URLs differing by query must be distinct")
	}
	if mustNormalize("http://example.com/a") == mustNormalize("http://example.com/a/") {
		t.Error("trailing slash must be significant")
	}
	if mustNormalize("http://example.com/a") == mustNormalize("https://example.com/a") {
		t.Error("scheme must be significant")
	}
}

// TestNormalizeErrors tests rejected inputs.
func TestNormalizeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", "   ", ErrEmptyURL},
		{"mailto", "mailto:docs@example.com", ErrUnsupportedScheme},
		{"ftp", "ftp://example.com/file", ErrUnsupportedScheme},
		{"relative", "/relative/path", ErrUnsupportedScheme},
		{"no host", "http:///path", ErrMissingHost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Normalize(tt.raw)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// TestClassify tests scheme classification of raw targets.
func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want Scheme
	}{
		{"https://example.com", SchemeHTTP},
		{"HTTP://example.com", SchemeHTTP},
		{"mailto:someone@example.com", SchemeMailto},
		{"ftp://example.com", SchemeOther},
		{"#page=3", SchemeOther},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tt.raw); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

// TestIndexDeduplicates tests that repeated URLs map to one key.
func TestIndexDeduplicates(t *testing.T) {
	t.Parallel()

	ix := NewIndex()
	inputs := []struct {
		page int
		url  string
	}{
		{1, "http://example.com"},
		{1, "https://other.example/a"},
		{2, "http://EXAMPLE.com#top"},
		{3, "http://example.com"},
		{3, "https://other.example/a?x=1"},
	}

	var firsts int
	for i, in := range inputs {
		_, first, err := ix.Add(in.page, i, in.url)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first {
			firsts++
		}
	}

	if ix.Len() != 3 || firsts != 3 {
		t.Errorf("expected 3 distinct keys, got Len=%d firsts=%d", ix.Len(), firsts)
	}
	if ix.OccurrenceCount() != len(inputs) {
		t.Errorf("expected %d occurrences, got %d", len(inputs), ix.OccurrenceCount())
	}

	keys := ix.Keys()
	wantKeys := []string{"http://example.com", "https://other.example/a", "https://other.example/a?x=1"}
	for i, want := range wantKeys {
		if keys[i] != want {
			t.Errorf("key %d = %q, want %q", i, keys[i], want)
		}
	}

	occ := ix.Occurrences("http://example.com")
	if len(occ) != 3 || occ[0].Page != 1 || occ[1].Page != 2 || occ[2].Page != 3 {
		t.Errorf("unexpected occurrences: %+v", occ)
	}
	if occ[1].URL != "http://EXAMPLE.com#top" {
		t.Errorf("original spelling not kept: %q", occ[1].URL)
	}
}

// TestIndexRejectsUncheckable tests that non-http targets never become keys.
func TestIndexRejectsUncheckable(t *testing.T) {
	t.Parallel()

	ix := NewIndex()
	if _, _, err := ix.Add(1, 0, "mailto:a@example.com"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("expected ErrUnsupportedScheme, got %v", err)
	}
	if ix.Len() != 0 || ix.OccurrenceCount() != 0 {
		t.Error("rejected targets must not be recorded")
	}
}

// TestResultsInsertIfAbsent tests the single-writer-per-key store.
func TestResultsInsertIfAbsent(t *testing.T) {
	t.Parallel()

	t.Run("first terminal write wins", func(t *testing.T) {
		t.Parallel()
		r := NewResults()
		if !r.InsertIfAbsent("k", model.Invalid(404)) {
			t.Fatal("expected first insert to succeed")
		}
		if r.InsertIfAbsent("k", model.OK()) {
			t.Fatal("expected second insert to be rejected")
		}
		got, ok := r.Get("k")
		if !ok || got != model.Invalid(404) {
			t.Errorf("unexpected stored status: %+v", got)
		}
	})

	t.Run("pending is rejected", func(t *testing.T) {
		t.Parallel()
		r := NewResults()
		if r.InsertIfAbsent("k", model.Pending()) {
			t.Error("pending must not be stored")
		}
		if r.Len() != 0 {
			t.Error("store should be empty")
		}
	})

	t.Run("concurrent writers store exactly once", func(t *testing.T) {
		t.Parallel()
		r := NewResults()
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if r.InsertIfAbsent("shared", model.Unreachable(fmt.Sprintf("writer-%d", i))) {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		if wins.Load() != 1 {
			t.Errorf("expected exactly one winner, got %d", wins.Load())
		}
		if r.Len() != 1 {
			t.Errorf("expected 1 result, got %d", r.Len())
		}
	})
}
