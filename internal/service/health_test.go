package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/buildhive/buildhive/internal/domain"
	"github.com/buildhive/buildhive/internal/domain/health"
)

// mapCache is a trivial in-memory cache for analyzer tests.
type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte)}
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// healthyProject builds a directory that passes every check.
func healthyProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "go.mod", "module example.com/demo\n")
	writeFile(t, dir, "README.md", "# demo\n")
	writeFile(t, dir, "main.go", "package main\n")
	writeFile(t, dir, "main_test.go", "package main\n")
	if err := os.Mkdir(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestAnalyze_HealthyProject(t *testing.T) {
	h := NewHealthAnalyzer(nil, 0)

	report, err := h.Analyze(context.Background(), healthyProject(t), health.AnalysisQuick)
	if err != nil {
		t.Fatal(err)
	}
	if report.Score != 100 {
		t.Errorf("score = %d, want 100: %+v", report.Score, report.Checks)
	}
	if len(report.Checks) != 4 {
		t.Errorf("checks = %d, want 4", len(report.Checks))
	}
	if report.FileCount != 4 {
		t.Errorf("file count = %d, want 4 (.git skipped)", report.FileCount)
	}
}

func TestAnalyze_BareDirectory(t *testing.T) {
	h := NewHealthAnalyzer(nil, 0)
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", "stuff\n")

	report, err := h.Analyze(context.Background(), dir, health.AnalysisQuick)
	if err != nil {
		t.Fatal(err)
	}
	if report.Score != 0 {
		t.Errorf("score = %d, want 0: %+v", report.Score, report.Checks)
	}
}

func TestAnalyze_FullCountsTodos(t *testing.T) {
	h := NewHealthAnalyzer(nil, 0)
	dir := healthyProject(t)
	writeFile(t, dir, "worklist.go", "package main\n// TODO: split this up\n// FIXME: leaks on error\nvar x = 1 // TODO later\n")

	report, err := h.Analyze(context.Background(), dir, health.AnalysisFull)
	if err != nil {
		t.Fatal(err)
	}
	if report.TodoCount != 3 {
		t.Errorf("todo count = %d, want 3", report.TodoCount)
	}
}

func TestAnalyze_QuickSkipsTodos(t *testing.T) {
	h := NewHealthAnalyzer(nil, 0)
	dir := healthyProject(t)
	writeFile(t, dir, "worklist.go", "// TODO: one\n")

	report, err := h.Analyze(context.Background(), dir, health.AnalysisQuick)
	if err != nil {
		t.Fatal(err)
	}
	if report.TodoCount != 0 {
		t.Errorf("todo count = %d, want 0 for quick analysis", report.TodoCount)
	}
}

func TestAnalyze_DefaultsToQuick(t *testing.T) {
	h := NewHealthAnalyzer(nil, 0)

	report, err := h.Analyze(context.Background(), healthyProject(t), "")
	if err != nil {
		t.Fatal(err)
	}
	if report.AnalysisType != health.AnalysisQuick {
		t.Errorf("analysis type = %q, want quick", report.AnalysisType)
	}
}

func TestAnalyze_Validation(t *testing.T) {
	h := NewHealthAnalyzer(nil, 0)

	if _, err := h.Analyze(context.Background(), "", health.AnalysisQuick); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty path: err = %v, want ErrValidation", err)
	}
	if _, err := h.Analyze(context.Background(), t.TempDir(), "deep"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown type: err = %v, want ErrValidation", err)
	}
}

func TestAnalyze_MissingPath(t *testing.T) {
	h := NewHealthAnalyzer(nil, 0)

	_, err := h.Analyze(context.Background(), filepath.Join(t.TempDir(), "nope"), health.AnalysisQuick)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAnalyze_FileNotDirectory(t *testing.T) {
	h := NewHealthAnalyzer(nil, 0)
	dir := t.TempDir()
	writeFile(t, dir, "file.txt", "x")

	_, err := h.Analyze(context.Background(), filepath.Join(dir, "file.txt"), health.AnalysisQuick)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAnalyze_CachesReports(t *testing.T) {
	c := newMapCache()
	h := NewHealthAnalyzer(c, time.Minute)
	dir := healthyProject(t)

	first, err := h.Analyze(context.Background(), dir, health.AnalysisQuick)
	if err != nil {
		t.Fatal(err)
	}

	// Change the tree; the cached report must still be served.
	if err := os.Remove(filepath.Join(dir, "README.md")); err != nil {
		t.Fatal(err)
	}

	second, err := h.Analyze(context.Background(), dir, health.AnalysisQuick)
	if err != nil {
		t.Fatal(err)
	}
	if second.Score != first.Score {
		t.Errorf("cached score = %d, want %d", second.Score, first.Score)
	}
	if !second.GeneratedAt.Equal(first.GeneratedAt) {
		t.Error("second report was regenerated instead of served from cache")
	}
}

func TestAnalyze_CacheKeyIncludesAnalysisType(t *testing.T) {
	c := newMapCache()
	h := NewHealthAnalyzer(c, time.Minute)
	dir := healthyProject(t)
	writeFile(t, dir, "worklist.go", "// TODO: one\n")

	if _, err := h.Analyze(context.Background(), dir, health.AnalysisQuick); err != nil {
		t.Fatal(err)
	}
	full, err := h.Analyze(context.Background(), dir, health.AnalysisFull)
	if err != nil {
		t.Fatal(err)
	}
	if full.TodoCount != 1 {
		t.Errorf("full analysis served quick cache entry: %+v", full)
	}
}

func TestAnalyze_SkipsVendoredDirs(t *testing.T) {
	h := NewHealthAnalyzer(nil, 0)
	dir := healthyProject(t)
	for _, sub := range []string{"node_modules", "vendor"} {
		if err := os.Mkdir(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatal(err)
		}
		writeFile(t, dir, filepath.Join(sub, "dep.js"), "x")
	}

	report, err := h.Analyze(context.Background(), dir, health.AnalysisQuick)
	if err != nil {
		t.Fatal(err)
	}
	if report.FileCount != 4 {
		t.Errorf("file count = %d, want 4 (vendored trees skipped)", report.FileCount)
	}
}
