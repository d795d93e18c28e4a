package corpus

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kailas-cloud/chatdex/internal/domain"
)

func TestNew_Empty(t *testing.T) {
	_, err := New(nil)
	if !errors.Is(err, domain.ErrEmptyCorpus) {
		t.Fatalf("expected ErrEmptyCorpus, got %v", err)
	}
}

func TestNew_SearchText(t *testing.T) {
	tests := []struct {
		name string
		pair Pair
		want string
	}{
		{"both fields", Pair{Question: "What is X?", Answer: "X is a widget."}, "What is X? X is a widget."},
		{"empty answer", Pair{Question: "What is X?"}, "What is X? "},
		{"empty question", Pair{Answer: "X is a widget."}, " X is a widget."},
		{"both empty", Pair{}, " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New([]Pair{tt.pair})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if got := s.Records()[0].SearchText; got != tt.want {
				t.Errorf("SearchText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStore_Get(t *testing.T) {
	s, err := New([]Pair{
		{Question: "q0", Answer: "a0"},
		{Question: "q1", Answer: "a1"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec, ok := s.Get(1)
	if !ok {
		t.Fatal("expected record at index 1")
	}
	if rec.Index != 1 || rec.Question != "q1" || rec.Answer != "a1" {
		t.Errorf("unexpected record: %+v", rec)
	}

	if _, ok := s.Get(-1); ok {
		t.Error("Get(-1) should report missing")
	}
	if _, ok := s.Get(2); ok {
		t.Error("Get(2) should report missing")
	}
}

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string) string {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
		return path
	}

	t.Run("full columns", func(t *testing.T) {
		path := write("full.csv", "question,answer\nWhat is X?,X is a widget.\nWhat is Y?,Y is a gadget.\n")
		pairs, err := LoadCSV(path)
		if err != nil {
			t.Fatalf("LoadCSV: %v", err)
		}
		if len(pairs) != 2 {
			t.Fatalf("expected 2 pairs, got %d", len(pairs))
		}
		if pairs[0].Question != "What is X?" || pairs[0].Answer != "X is a widget." {
			t.Errorf("unexpected first pair: %+v", pairs[0])
		}
	})

	t.Run("missing answer column", func(t *testing.T) {
		path := write("noanswer.csv", "question\nWhat is X?\n")
		pairs, err := LoadCSV(path)
		if err != nil {
			t.Fatalf("LoadCSV: %v", err)
		}
		if len(pairs) != 1 || pairs[0].Answer != "" {
			t.Errorf("expected empty answer, got %+v", pairs)
		}
	})

	t.Run("ragged row", func(t *testing.T) {
		path := write("ragged.csv", "question,answer\nonly-question\n")
		pairs, err := LoadCSV(path)
		if err != nil {
			t.Fatalf("LoadCSV: %v", err)
		}
		if pairs[0].Question != "only-question" || pairs[0].Answer != "" {
			t.Errorf("unexpected pair: %+v", pairs[0])
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadCSV(filepath.Join(dir, "absent.csv")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}
