package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedware/sizedeltas/internal/config"
	"github.com/embedware/sizedeltas/internal/eventctx"
	"github.com/embedware/sizedeltas/internal/github"
	"github.com/embedware/sizedeltas/internal/render"
	"github.com/embedware/sizedeltas/internal/reports"
)

// fakeAPI is an in-memory stand-in for the GitHub client.
type fakeAPI struct {
	pulls     []github.PullRequest
	artifacts []github.Artifact
	archives  map[int64][]byte
	runs      map[int64]github.WorkflowRun
	comments  map[int][]github.Comment
	remaining int
	nextID    int64

	failDownload map[int64]bool
	downloads    int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		archives:     map[int64][]byte{},
		runs:         map[int64]github.WorkflowRun{},
		comments:     map[int][]github.Comment{},
		remaining:    5000,
		nextID:       1,
		failDownload: map[int64]bool{},
	}
}

func (f *fakeAPI) ListOpenPullRequests(ctx context.Context) ([]github.PullRequest, error) {
	return f.pulls, nil
}

func (f *fakeAPI) ListArtifacts(ctx context.Context) ([]github.Artifact, error) {
	return f.artifacts, nil
}

func (f *fakeAPI) GetWorkflowRun(ctx context.Context, runID int64) (github.WorkflowRun, error) {
	run, ok := f.runs[runID]
	if !ok {
		return github.WorkflowRun{}, fmt.Errorf("run %d not found", runID)
	}
	return run, nil
}

func (f *fakeAPI) DownloadArtifact(ctx context.Context, artifactID int64) ([]byte, error) {
	f.downloads++
	if f.failDownload[artifactID] {
		return nil, errors.New("download failed")
	}
	archive, ok := f.archives[artifactID]
	if !ok {
		return nil, fmt.Errorf("artifact %d not found", artifactID)
	}
	return archive, nil
}

func (f *fakeAPI) ListIssueComments(ctx context.Context, prNumber int) ([]github.Comment, error) {
	out := make([]github.Comment, len(f.comments[prNumber]))
	copy(out, f.comments[prNumber])
	return out, nil
}

func (f *fakeAPI) CreateComment(ctx context.Context, prNumber int, body string) (github.Comment, error) {
	c := github.Comment{ID: f.nextID, Body: body}
	f.nextID++
	f.comments[prNumber] = append(f.comments[prNumber], c)
	return c, nil
}

func (f *fakeAPI) UpdateComment(ctx context.Context, commentID int64, body string) error {
	for pr, list := range f.comments {
		for i := range list {
			if list[i].ID == commentID {
				f.comments[pr][i].Body = body
				return nil
			}
		}
	}
	return fmt.Errorf("comment %d not found", commentID)
}

func (f *fakeAPI) DeleteComment(ctx context.Context, commentID int64) error {
	for pr, list := range f.comments {
		for i := range list {
			if list[i].ID == commentID {
				f.comments[pr] = append(list[:i], list[i+1:]...)
				return nil
			}
		}
	}
	return fmt.Errorf("comment %d not found", commentID)
}

func (f *fakeAPI) RateLimitRemaining(ctx context.Context) (int, error) {
	return f.remaining, nil
}

var _ API = (*fakeAPI)(nil)

func reportJSON(commit string, current int64) string {
	return fmt.Sprintf(`{
	  "commit_hash": %q,
	  "boards": [
	    {"board": "arduino:avr:uno", "sketches": [
	      {"name": "examples/Blink", "sizes": [
	        {"name": "flash", "maximum": 32256, "current": {"absolute": %d}, "previous": {"absolute": 1000}, "delta": {"absolute": %d}}
	      ]}
	    ]}
	  ]
	}`, commit, current, current-1000)
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func testConfig() config.Config {
	return config.Config{
		Repository: "octo/firmware",
		Source:     "sketches-reports.*",
		Kind:       "memory-usage",
		Token:      "tok",
	}
}

func newTestRunner(api *fakeAPI) (*Runner, *bytes.Buffer) {
	var logBuf bytes.Buffer
	return New(api, testConfig(), &logBuf, false), &logBuf
}

func TestRunLocalPublishes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.json"), []byte(reportJSON("headsha", 1200)), 0o644))

	api := newFakeAPI()
	r, _ := newTestRunner(api)
	ambient := &eventctx.Context{EventName: "pull_request", PRNumber: 7, HeadSHA: "headsha"}

	summary, err := r.RunLocal(context.Background(), dir, ambient)
	require.NoError(t, err)
	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, 1, summary.Published())
	assert.Equal(t, 0, summary.Failed())

	o := summary.Outcomes[0]
	assert.Equal(t, 7, o.PRNumber)
	assert.Equal(t, 1, o.Pages)
	assert.Equal(t, 1, o.Publish.Created)

	comments := api.comments[7]
	require.Len(t, comments, 1)
	assert.Contains(t, comments[0].Body, render.MarkerPrefix("memory-usage"))
	assert.Contains(t, comments[0].Body, render.Heading("headsha"))
	assert.Contains(t, comments[0].Body, "examples/Blink")
}

func TestRunLocalNoReports(t *testing.T) {
	api := newFakeAPI()
	r, _ := newTestRunner(api)

	_, err := r.RunLocal(context.Background(), t.TempDir(), nil)
	assert.ErrorIs(t, err, reports.ErrNoReports)
}

func TestRunLocalDropsMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.json"), []byte(reportJSON("headsha", 1200)), 0o644))
	// Old format: boards carry sizes directly instead of sketches.
	old := `{"commit_hash": "headsha", "boards": [{"board": "uno", "sizes": []}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.json"), []byte(old), 0o644))

	api := newFakeAPI()
	r, logBuf := newTestRunner(api)
	ambient := &eventctx.Context{EventName: "pull_request", PRNumber: 7, HeadSHA: "headsha"}

	summary, err := r.RunLocal(context.Background(), dir, ambient)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Published())
	assert.Contains(t, logBuf.String(), "old format")
}

func TestRunLocalNoPullRequestSkips(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.json"), []byte(reportJSON("orphan", 1200)), 0o644))

	api := newFakeAPI() // no open pull requests
	r, _ := newTestRunner(api)

	summary, err := r.RunLocal(context.Background(), dir, nil)
	require.NoError(t, err)
	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, 0, summary.Published())
	assert.NotEmpty(t, summary.Outcomes[0].Skipped)
	assert.Empty(t, api.comments)
}

func TestRunSweepPublishesPerPullRequest(t *testing.T) {
	api := newFakeAPI()
	api.pulls = []github.PullRequest{
		{Number: 1, HeadSHA: "sha-1"},
		{Number: 2, HeadSHA: "sha-2"},
		{Number: 3, HeadSHA: "sha-without-artifacts"},
	}
	api.artifacts = []github.Artifact{
		{ID: 10, Name: "sketches-reports-uno", HeadSHA: "sha-1", RunID: 100},
		{ID: 20, Name: "sketches-reports-uno", HeadSHA: "sha-2", RunID: 200},
	}
	api.archives[10] = zipArchive(t, map[string]string{"r.json": reportJSON("sha-1", 1200)})
	api.archives[20] = zipArchive(t, map[string]string{"r.json": reportJSON("sha-2", 900)})

	r, _ := newTestRunner(api)
	summary, err := r.RunSweep(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Outcomes, 2)
	assert.Equal(t, 2, summary.Published())
	assert.Equal(t, 0, summary.Failed())

	assert.Len(t, api.comments[1], 1)
	assert.Len(t, api.comments[2], 1)
	assert.Empty(t, api.comments[3])
	assert.Contains(t, api.comments[1][0].Body, render.Heading("sha-1"))
	assert.Contains(t, api.comments[2][0].Body, render.Heading("sha-2"))
}

func TestRunSweepIsolatesFailures(t *testing.T) {
	api := newFakeAPI()
	api.pulls = []github.PullRequest{
		{Number: 1, HeadSHA: "sha-1"},
		{Number: 2, HeadSHA: "sha-2"},
		{Number: 3, HeadSHA: "sha-3"},
	}
	api.artifacts = []github.Artifact{
		{ID: 10, Name: "sketches-reports-a", HeadSHA: "sha-1"},
		{ID: 20, Name: "sketches-reports-b", HeadSHA: "sha-2"},
		{ID: 30, Name: "sketches-reports-c", HeadSHA: "sha-3"},
	}
	api.archives[10] = zipArchive(t, map[string]string{"r.json": reportJSON("sha-1", 1200)})
	api.failDownload[20] = true
	api.archives[30] = zipArchive(t, map[string]string{"r.json": reportJSON("sha-3", 900)})

	r, _ := newTestRunner(api)
	summary, err := r.RunSweep(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Outcomes, 3)

	// One bad artifact never blocks the other pull requests.
	assert.Equal(t, 2, summary.Published())
	assert.Equal(t, 1, summary.Failed())
	assert.Len(t, api.comments[1], 1)
	assert.Empty(t, api.comments[2])
	assert.Len(t, api.comments[3], 1)
}

func TestRunSweepSkipsAlreadyReported(t *testing.T) {
	api := newFakeAPI()
	api.pulls = []github.PullRequest{{Number: 1, HeadSHA: "sha-1"}}
	api.artifacts = []github.Artifact{{ID: 10, Name: "sketches-reports-a", HeadSHA: "sha-1"}}
	api.archives[10] = zipArchive(t, map[string]string{"r.json": reportJSON("sha-1", 1200)})

	r, _ := newTestRunner(api)
	first, err := r.RunSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.Published())
	downloadsAfterFirst := api.downloads

	// The second tick finds the published report and never downloads.
	second, err := r.RunSweep(context.Background())
	require.NoError(t, err)
	require.Len(t, second.Outcomes, 1)
	assert.Equal(t, 0, second.Published())
	assert.Contains(t, second.Outcomes[0].Skipped, "already published")
	assert.Equal(t, downloadsAfterFirst, api.downloads)
	assert.Len(t, api.comments[1], 1)
}

func TestRunSweepSkipsLockedPullRequest(t *testing.T) {
	api := newFakeAPI()
	api.pulls = []github.PullRequest{{Number: 1, HeadSHA: "sha-1", Locked: true}}
	api.artifacts = []github.Artifact{{ID: 10, Name: "sketches-reports-a", HeadSHA: "sha-1"}}
	api.archives[10] = zipArchive(t, map[string]string{"r.json": reportJSON("sha-1", 1200)})

	r, _ := newTestRunner(api)
	summary, err := r.RunSweep(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, "pull request is locked", summary.Outcomes[0].Skipped)
	assert.Equal(t, 0, api.downloads)
}

func TestRunSweepCommitMismatch(t *testing.T) {
	api := newFakeAPI()
	api.pulls = []github.PullRequest{{Number: 1, HeadSHA: "sha-1"}}
	api.artifacts = []github.Artifact{{ID: 10, Name: "sketches-reports-a", HeadSHA: "sha-1"}}
	// The report inside claims a different commit than the artifact's run.
	api.archives[10] = zipArchive(t, map[string]string{"r.json": reportJSON("some-other-sha", 1200)})

	r, logBuf := newTestRunner(api)
	summary, err := r.RunSweep(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Outcomes, 1)
	assert.Contains(t, summary.Outcomes[0].Skipped, "doesn't match")
	assert.Contains(t, logBuf.String(), "doesn't match")
	assert.Empty(t, api.comments)
}

func TestRunSweepNothingToReport(t *testing.T) {
	api := newFakeAPI()
	api.pulls = []github.PullRequest{{Number: 1, HeadSHA: "sha-1"}}

	r, _ := newTestRunner(api)
	_, err := r.RunSweep(context.Background())
	assert.ErrorIs(t, err, reports.ErrNoReports)
}

func TestRunSweepRateLimitExhausted(t *testing.T) {
	api := newFakeAPI()
	api.remaining = 0

	r, logBuf := newTestRunner(api)
	_, err := r.RunSweep(context.Background())
	assert.ErrorIs(t, err, reports.ErrNoReports)
	assert.Contains(t, logBuf.String(), "quota")
}

func TestLoggerWorkflowCommands(t *testing.T) {
	var buf bytes.Buffer
	log := &logger{out: &buf, verbose: true, actions: true}
	log.debugf("checking %s", "thing")
	log.warnf("careful with %s", "thing")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "::debug::checking thing", lines[0])
	assert.Equal(t, "::warning::careful with thing", lines[1])
}

func TestLoggerPlain(t *testing.T) {
	var buf bytes.Buffer
	log := &logger{out: &buf, verbose: false, actions: false}
	log.debugf("hidden unless verbose")
	log.warnf("visible")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "Warning: visible")
}
