// Package loadtest provides load testing utilities for the sync engine.
//
// It generates a synthetic site of entries and assets on disk, then measures
// full rebuilds and concurrent incremental syncs against a real SQLite
// cache, so regressions in the loader show up as latency numbers.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/db"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/record"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/storage"
	stachesync "github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/sync"
)

// Storage layout of the generated site.
const (
	CollectionsDir = "content/collections"
	AssetsDir      = "public/assets"
	AssetContainer = "assets"
)

// TestSite is a generated site on disk.
type TestSite struct {
	Files      *storage.Disk
	EntryPaths []string
	AssetPaths []string
	MetaPaths  []string
}

// LatencyStats captures performance metrics from load tests.
type LatencyStats struct {
	Min        time.Duration
	Max        time.Duration
	Mean       time.Duration
	P50        time.Duration // Median
	P95        time.Duration
	P99        time.Duration
	Operations int
	Errors     int
	Durations  []time.Duration
}

// CreateTestSite writes a site with numEntries entries and numAssets assets
// below base.
//
// The site is populated with:
//   - Entries spread over four collections, dated in blog and news
//   - Every tenth entry in a nested folder
//   - About a third of the assets with a .meta file
func CreateTestSite(base string, numEntries, numAssets int) (*TestSite, error) {
	files := storage.NewDisk(base)
	site := &TestSite{Files: files}

	for _, entry := range generateEntries(numEntries) {
		if err := files.Write(entry.path, entry.contents); err != nil {
			return nil, fmt.Errorf("failed to write entry %s: %w", entry.path, err)
		}
		site.EntryPaths = append(site.EntryPaths, entry.path)
	}

	for _, asset := range generateAssets(numAssets) {
		if err := files.Write(asset.path, asset.contents); err != nil {
			return nil, fmt.Errorf("failed to write asset %s: %w", asset.path, err)
		}
		site.AssetPaths = append(site.AssetPaths, asset.path)

		if asset.meta != nil {
			metaPath := filepath.ToSlash(filepath.Join(
				filepath.Dir(asset.path), ".meta", filepath.Base(asset.path)+".yaml"))
			if err := files.Write(metaPath, asset.meta); err != nil {
				return nil, fmt.Errorf("failed to write meta %s: %w", metaPath, err)
			}
			site.MetaPaths = append(site.MetaPaths, metaPath)
		}
	}

	return site, nil
}

// Kinds returns the record kinds for the site's layout.
func (s *TestSite) Kinds() []record.Kind {
	return []record.Kind{
		record.NewEntry(record.EntryConfig{Dir: CollectionsDir}),
		record.NewAsset([]record.Root{{Handle: AssetContainer, Dir: AssetsDir}}, s.Files, nil),
	}
}

// NewEngine returns an engine over the site's files and store.
func (s *TestSite) NewEngine(store *db.DB, opts stachesync.Options) *stachesync.Engine {
	return stachesync.New(store, s.Files, s.Kinds(), opts)
}

// MeasureRebuilds rebuilds every kind runs times. Each sample is the time
// to rebuild all kinds once. The reports of the last run are returned.
func (s *TestSite) MeasureRebuilds(ctx context.Context, engine *stachesync.Engine, runs int) (*LatencyStats, []stachesync.Report, error) {
	var durations []time.Duration
	var reports []stachesync.Report

	for range runs {
		reports = reports[:0]
		start := time.Now()
		for _, kind := range engine.Kinds() {
			report, err := engine.Rebuild(ctx, kind)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to rebuild %s: %w", kind.Name(), err)
			}
			reports = append(reports, report)
		}
		durations = append(durations, time.Since(start))
	}

	if len(durations) == 0 {
		return nil, nil, fmt.Errorf("no rebuilds completed")
	}
	return computeLatencyStats(durations), reports, nil
}

// RunConcurrentSyncs simulates numWorkers editors saving entries at once.
//
// Each worker re-syncs syncsPerWorker randomly chosen entry files, recording
// latency for each. Returns aggregated latency statistics.
func (s *TestSite) RunConcurrentSyncs(ctx context.Context, syncer stachesync.Syncer, numWorkers, syncsPerWorker int) (*LatencyStats, error) {
	if len(s.EntryPaths) == 0 {
		return nil, fmt.Errorf("site has no entries")
	}

	results := make([][]time.Duration, numWorkers)
	failures := make([]int, numWorkers)

	g, ctx := errgroup.WithContext(ctx)
	for worker := range numWorkers {
		g.Go(func() error {
			// Deterministic per-worker sequence for reproducibility
			rng := rand.New(rand.NewSource(int64(42 + worker)))
			durations := make([]time.Duration, 0, syncsPerWorker)

			for range syncsPerWorker {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p := s.EntryPaths[rng.Intn(len(s.EntryPaths))]

				start := time.Now()
				err := syncer.SyncFile(ctx, p)
				durations = append(durations, time.Since(start))

				if err != nil {
					failures[worker]++
				}
			}

			results[worker] = durations
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []time.Duration
	errorCount := 0
	for i, durations := range results {
		all = append(all, durations...)
		errorCount += failures[i]
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no syncs completed")
	}

	stats := computeLatencyStats(all)
	stats.Errors = errorCount
	return stats, nil
}

type generatedFile struct {
	path     string
	contents []byte
	meta     []byte
}

// generateEntries creates entry files with a realistic spread of
// collections, dates and folders.
func generateEntries(count int) []generatedFile {
	collections := []string{"blog", "news", "pages", "docs"}
	dated := map[string]bool{"blog": true, "news": true}
	baseDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	entries := make([]generatedFile, count)
	for i := range count {
		collection := collections[i%len(collections)]
		slug := fmt.Sprintf("entry-%05d", i)

		name := slug + ".md"
		if dated[collection] {
			name = baseDate.AddDate(0, 0, i/len(collections)).Format(time.DateOnly) + "." + name
		}
		dir := collection
		if i%10 == 0 {
			dir += fmt.Sprintf("/section-%d", i/100)
		}

		contents := fmt.Sprintf("---\nid: load-%05d\ntitle: 'Entry %d'\ntags:\n  - loadtest\n  - batch-%d\n---\nGenerated body for entry %d.\n",
			i, i, i/100, i)

		entries[i] = generatedFile{
			path:     CollectionsDir + "/" + dir + "/" + name,
			contents: []byte(contents),
		}
	}
	return entries
}

// generateAssets creates asset binaries, a third of them with meta files.
func generateAssets(count int) []generatedFile {
	extensions := []string{"pdf", "json", "csv"}
	rng := rand.New(rand.NewSource(42))

	assets := make([]generatedFile, count)
	for i := range count {
		ext := extensions[i%len(extensions)]
		size := 64 + rng.Intn(1024)

		asset := generatedFile{
			path:     fmt.Sprintf("%s/folder-%d/file-%05d.%s", AssetsDir, i%7, i, ext),
			contents: make([]byte, size),
		}
		if i%3 == 0 {
			asset.meta = fmt.Appendf(nil, "data:\n  alt: 'Asset %d'\nsize: %d\n", i, size)
		}
		assets[i] = asset
	}
	return assets
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:        sorted[0],
		Max:        sorted[len(sorted)-1],
		Mean:       sum / time.Duration(len(durations)),
		P50:        sorted[len(sorted)*50/100],
		P95:        sorted[len(sorted)*95/100],
		P99:        sorted[len(sorted)*99/100],
		Operations: len(durations),
		Durations:  sorted,
	}
}

// PrintStats formats latency statistics to w.
func (s *LatencyStats) PrintStats(w io.Writer) {
	fmt.Fprintf(w, "Latency Statistics:\n")
	fmt.Fprintf(w, "  Operations:    %d\n", s.Operations)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
