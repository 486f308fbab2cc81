package service

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/buildhive/buildhive/internal/domain"
	"github.com/buildhive/buildhive/internal/domain/health"
	"github.com/buildhive/buildhive/internal/port/cache"
)

// manifestNames are the project manifests the analyzer recognizes.
var manifestNames = []string{"go.mod", "package.json", "pyproject.toml", "Cargo.toml", "pom.xml"}

// todoScanLimit caps how many files the full analysis scans for TODO markers.
const todoScanLimit = 500

// HealthAnalyzer inspects a project directory and produces a scored report.
// Reports are cached per path and analysis type.
type HealthAnalyzer struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewHealthAnalyzer creates a HealthAnalyzer. cache may be nil to disable
// report caching.
func NewHealthAnalyzer(c cache.Cache, ttl time.Duration) *HealthAnalyzer {
	return &HealthAnalyzer{cache: c, ttl: ttl}
}

// Analyze inspects the project at path. analysisType is "quick" or "full";
// full additionally counts TODO markers in source files.
func (h *HealthAnalyzer) Analyze(ctx context.Context, path, analysisType string) (health.Report, error) {
	switch analysisType {
	case health.AnalysisQuick, health.AnalysisFull:
	case "":
		analysisType = health.AnalysisQuick
	default:
		return health.Report{}, fmt.Errorf("%w: unknown analysis type %q", domain.ErrValidation, analysisType)
	}
	if path == "" {
		return health.Report{}, fmt.Errorf("%w: project_path is required", domain.ErrValidation)
	}

	cacheKey := "health:" + analysisType + ":" + path
	if report, ok := h.cached(ctx, cacheKey); ok {
		return report, nil
	}

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return health.Report{}, fmt.Errorf("%w: project path %s", domain.ErrNotFound, path)
	}

	report := health.Report{
		ProjectPath:  path,
		AnalysisType: analysisType,
		GeneratedAt:  time.Now(),
	}

	report.Checks = append(report.Checks, h.checkManifest(path))
	report.Checks = append(report.Checks, h.checkReadme(path))
	report.Checks = append(report.Checks, h.checkVCS(path))

	files, testFiles := h.countFiles(path)
	report.FileCount = files
	report.Checks = append(report.Checks, health.Check{
		Name:   "tests",
		Passed: testFiles > 0,
		Detail: fmt.Sprintf("%d test files", testFiles),
	})

	if analysisType == health.AnalysisFull {
		report.TodoCount = h.countTodos(ctx, path)
	}

	passed := 0
	for _, c := range report.Checks {
		if c.Passed {
			passed++
		}
	}
	report.Score = passed * 100 / len(report.Checks)

	h.store(ctx, cacheKey, report)
	return report, nil
}

func (h *HealthAnalyzer) checkManifest(path string) health.Check {
	for _, name := range manifestNames {
		if _, err := os.Stat(filepath.Join(path, name)); err == nil {
			return health.Check{Name: "manifest", Passed: true, Detail: name}
		}
	}
	return health.Check{Name: "manifest", Passed: false, Detail: "no recognized project manifest"}
}

func (h *HealthAnalyzer) checkReadme(path string) health.Check {
	entries, err := os.ReadDir(path)
	if err != nil {
		return health.Check{Name: "readme", Passed: false, Detail: err.Error()}
	}
	for _, e := range entries {
		if strings.HasPrefix(strings.ToLower(e.Name()), "readme") {
			return health.Check{Name: "readme", Passed: true, Detail: e.Name()}
		}
	}
	return health.Check{Name: "readme", Passed: false, Detail: "no README found"}
}

func (h *HealthAnalyzer) checkVCS(path string) health.Check {
	if _, err := os.Stat(filepath.Join(path, ".git")); err == nil {
		return health.Check{Name: "version_control", Passed: true, Detail: "git"}
	}
	return health.Check{Name: "version_control", Passed: false, Detail: "no .git directory"}
}

// countFiles walks the tree counting regular files and test files. Vendored
// and hidden directories are skipped.
func (h *HealthAnalyzer) countFiles(path string) (files, testFiles int) {
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if p != path && (strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		files++
		if strings.Contains(d.Name(), "_test.") || strings.Contains(d.Name(), ".test.") || strings.Contains(d.Name(), ".spec.") {
			testFiles++
		}
		return nil
	})
	return files, testFiles
}

// countTodos scans source files for TODO and FIXME markers, bounded by
// todoScanLimit files.
func (h *HealthAnalyzer) countTodos(ctx context.Context, path string) int {
	todos := 0
	scanned := 0
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || ctx.Err() != nil {
			return filepath.SkipAll
		}
		if d.IsDir() {
			name := d.Name()
			if p != path && (strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if scanned >= todoScanLimit {
			return filepath.SkipAll
		}
		scanned++
		todos += countTodosInFile(p)
		return nil
	})
	return todos
}

func countTodosInFile(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer func() { _ = f.Close() }()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "TODO") || strings.Contains(line, "FIXME") {
			count++
		}
	}
	return count
}

func (h *HealthAnalyzer) cached(ctx context.Context, key string) (health.Report, bool) {
	if h.cache == nil {
		return health.Report{}, false
	}
	data, ok, err := h.cache.Get(ctx, key)
	if err != nil || !ok {
		return health.Report{}, false
	}
	var report health.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return health.Report{}, false
	}
	return report, true
}

func (h *HealthAnalyzer) store(ctx context.Context, key string, report health.Report) {
	if h.cache == nil {
		return
	}
	data, err := json.Marshal(report)
	if err != nil {
		slog.Error("marshal health report", "error", err)
		return
	}
	if err := h.cache.Set(ctx, key, data, h.ttl); err != nil {
		slog.Error("cache health report", "key", key, "error", err)
	}
}
