package reports

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/embedware/sizedeltas/internal/github"
)

// ErrNoReports marks an empty resolution: the source matched no report
// files. Callers surface it as a distinct no-op outcome, never as "sizes
// unchanged".
var ErrNoReports = errors.New("no sketch size reports found")

// maxSniffBytes caps how much of a candidate file is read for the content
// check in path mode.
const maxSniffBytes = 10 << 20

// downloadConcurrency bounds parallel artifact downloads.
const downloadConcurrency = 4

// ArtifactStore is the slice of the API client the resolver needs.
type ArtifactStore interface {
	ListArtifacts(ctx context.Context) ([]github.Artifact, error)
	GetWorkflowRun(ctx context.Context, runID int64) (github.WorkflowRun, error)
	DownloadArtifact(ctx context.Context, artifactID int64) ([]byte, error)
}

// ResolvePath recursively walks root and returns every file recognized as a
// sketches report by content (a JSON object with a boards array), in sorted
// path order. Extension alone is not trusted: workers nest reports under
// arbitrary subdirectories.
func ResolvePath(root string) ([]RawReport, error) {
	var raws []RawReport
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxSniffBytes {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if !looksLikeReport(data) {
			return nil
		}
		raws = append(raws, RawReport{Origin: path, Data: data})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	if len(raws) == 0 {
		return nil, ErrNoReports
	}
	sort.Slice(raws, func(i, j int) bool { return raws[i].Origin < raws[j].Origin })
	return raws, nil
}

// ResolveArtifacts lists the repository's workflow artifacts, keeps the
// non-expired ones whose name matches pattern, downloads each archive, and
// extracts every report file found inside.
//
// onlySHA, when non-empty, restricts resolution to artifacts produced for
// that head commit.
func ResolveArtifacts(ctx context.Context, store ArtifactStore, pattern *regexp.Regexp, onlySHA string) ([]RawReport, error) {
	wanted, err := FilterArtifacts(ctx, store, pattern)
	if err != nil {
		return nil, err
	}
	if onlySHA != "" {
		var bySHA []github.Artifact
		for _, a := range wanted {
			if a.HeadSHA == onlySHA {
				bySHA = append(bySHA, a)
			}
		}
		wanted = bySHA
	}
	return Download(ctx, store, wanted)
}

// FilterArtifacts lists the repository's artifacts and keeps the
// non-expired name matches, recovering each one's head commit from its
// parent run when the listing omitted it. No archives are downloaded, so
// sweep callers can decide per pull request whether a download is needed
// at all.
func FilterArtifacts(ctx context.Context, store ArtifactStore, pattern *regexp.Regexp) ([]github.Artifact, error) {
	artifacts, err := store.ListArtifacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}

	var wanted []github.Artifact
	for _, a := range artifacts {
		if a.Expired || !pattern.MatchString(a.Name) {
			continue
		}
		if a.HeadSHA == "" && a.RunID != 0 {
			run, err := store.GetWorkflowRun(ctx, a.RunID)
			if err != nil {
				return nil, fmt.Errorf("resolving run %d for artifact %s: %w", a.RunID, a.Name, err)
			}
			a.HeadSHA = run.HeadSHA
		}
		wanted = append(wanted, a)
	}
	return wanted, nil
}

// Download fetches the given artifacts' archives in parallel under a
// bounded semaphore and extracts every report file found inside.
func Download(ctx context.Context, store ArtifactStore, wanted []github.Artifact) ([]RawReport, error) {
	if len(wanted) == 0 {
		return nil, ErrNoReports
	}

	sem := semaphore.NewWeighted(downloadConcurrency)
	var mu sync.Mutex
	var firstErr error
	results := make([][]RawReport, len(wanted))

	var wg sync.WaitGroup
	for i, a := range wanted {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		wg.Add(1)
		go func(i int, a github.Artifact) {
			defer sem.Release(1)
			defer wg.Done()
			archive, err := store.DownloadArtifact(ctx, a.ID)
			if err == nil {
				results[i], err = extractReports(a, archive)
			}
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("artifact %s: %w", a.Name, err)
				}
				mu.Unlock()
			}
		}(i, a)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	var raws []RawReport
	for _, batch := range results {
		raws = append(raws, batch...)
	}
	if len(raws) == 0 {
		return nil, ErrNoReports
	}
	sort.Slice(raws, func(i, j int) bool { return raws[i].Origin < raws[j].Origin })
	return raws, nil
}

// extractReports unpacks an artifact archive and returns the report files
// inside it, recursing through any directory structure the workers used.
func extractReports(a github.Artifact, archive []byte) ([]RawReport, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	var raws []RawReport
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || f.UncompressedSize64 > maxSniffBytes {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Name, err)
		}
		if !looksLikeReport(data) {
			continue
		}
		raws = append(raws, RawReport{
			Origin: a.Name + "/" + f.Name,
			Commit: a.HeadSHA,
			RunID:  a.RunID,
			Data:   data,
		})
	}
	return raws, nil
}

// looksLikeReport is the content sniff: a JSON object carrying a non-empty
// boards array.
func looksLikeReport(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if !strings.HasPrefix(string(trimmed), "{") {
		return false
	}
	var probe struct {
		Boards []json.RawMessage `json:"boards"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return len(probe.Boards) > 0
}
