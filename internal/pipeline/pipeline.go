package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/embedware/sizedeltas/internal/config"
	"github.com/embedware/sizedeltas/internal/correlate"
	"github.com/embedware/sizedeltas/internal/delta"
	"github.com/embedware/sizedeltas/internal/eventctx"
	"github.com/embedware/sizedeltas/internal/github"
	"github.com/embedware/sizedeltas/internal/publish"
	"github.com/embedware/sizedeltas/internal/render"
	"github.com/embedware/sizedeltas/internal/reports"
)

// API is the slice of the GitHub client the pipeline needs. *github.Client
// satisfies it; tests use fakes.
type API interface {
	reports.ArtifactStore
	correlate.PullLister
	publish.CommentStore
	RateLimitRemaining(ctx context.Context) (int, error)
}

// Outcome records how one report group fared.
type Outcome struct {
	Commit   string
	PRNumber int
	Pages    int
	Publish  publish.Result
	Skipped  string // non-empty when the group was skipped, with the reason
	Err      error
}

// Summary is the tally for one run.
type Summary struct {
	RunID    string
	Outcomes []Outcome
}

// Published returns how many groups resulted in live comments this run.
func (s Summary) Published() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Err == nil && o.Skipped == "" {
			n++
		}
	}
	return n
}

// Failed returns how many groups ended in an error.
func (s Summary) Failed() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Runner executes the pipeline against one repository.
type Runner struct {
	api API
	cfg config.Config
	log *logger
}

// New creates a Runner. Diagnostics are written to logw, using workflow
// commands when running under GitHub Actions.
func New(api API, cfg config.Config, logw io.Writer, underActions bool) *Runner {
	return &Runner{
		api: api,
		cfg: cfg,
		log: &logger{out: logw, verbose: cfg.Verbose, actions: underActions},
	}
}

// RunLocal processes report files under dir and publishes to the ambient
// pull request. Invoked from pull_request-triggered workflows where the
// reports are already on disk.
func (r *Runner) RunLocal(ctx context.Context, dir string, ambient *eventctx.Context) (Summary, error) {
	summary := Summary{RunID: uuid.New().String()}

	raws, err := reports.ResolvePath(dir)
	if err != nil {
		if errors.Is(err, reports.ErrNoReports) {
			return summary, err
		}
		return summary, fmt.Errorf("resolving reports under %s: %w", dir, err)
	}

	var headHint string
	var ref *correlate.Ref
	if ambient.IsPullRequest() {
		headHint = ambient.HeadSHA
		ref = &correlate.Ref{Number: ambient.PRNumber, HeadSHA: ambient.HeadSHA}
	}

	groups := reports.Assemble(r.parseAll(raws), headHint)
	if len(groups) == 0 {
		return summary, reports.ErrNoReports
	}
	for _, g := range groups {
		summary.Outcomes = append(summary.Outcomes, r.processGroup(ctx, g, ref))
	}
	return summary, nil
}

// RunSweep scans the repository's workflow artifacts and publishes reports
// for every open pull request that has unreported size data. Invoked from
// scheduled workflows that have no pull-request context.
func (r *Runner) RunSweep(ctx context.Context) (Summary, error) {
	summary := Summary{RunID: uuid.New().String()}

	pattern, err := r.cfg.SourcePattern()
	if err != nil {
		return summary, err
	}

	remaining, err := r.api.RateLimitRemaining(ctx)
	if err != nil {
		return summary, fmt.Errorf("checking API rate limit: %w", err)
	}
	if remaining == 0 {
		r.log.warnf("GitHub API request quota has been reached, giving up for now")
		return summary, reports.ErrNoReports
	}

	artifacts, err := reports.FilterArtifacts(ctx, r.api, pattern)
	if err != nil {
		return summary, err
	}
	bySHA := make(map[string][]github.Artifact)
	for _, a := range artifacts {
		if a.HeadSHA != "" {
			bySHA[a.HeadSHA] = append(bySHA[a.HeadSHA], a)
		}
	}
	if len(bySHA) == 0 {
		return summary, reports.ErrNoReports
	}

	pulls, err := r.api.ListOpenPullRequests(ctx)
	if err != nil {
		return summary, fmt.Errorf("listing open pull requests: %w", err)
	}

	matched := false
	for _, pr := range pulls {
		candidates := bySHA[pr.HeadSHA]
		if len(candidates) == 0 {
			continue
		}
		matched = true
		r.log.debugf("processing pull request #%d", pr.Number)
		summary.Outcomes = append(summary.Outcomes, r.processPR(ctx, pr, candidates))
	}
	if !matched {
		return summary, reports.ErrNoReports
	}
	return summary, nil
}

// processPR handles one pull request's artifacts end to end. Failures are
// captured in the outcome, never propagated: a bad artifact must not block
// the report for every other pull request in a scheduled run.
func (r *Runner) processPR(ctx context.Context, pr github.PullRequest, candidates []github.Artifact) Outcome {
	outcome := Outcome{Commit: pr.HeadSHA, PRNumber: pr.Number}

	if pr.Locked {
		r.log.debugf("pull request #%d is locked, skipping", pr.Number)
		outcome.Skipped = "pull request is locked"
		return outcome
	}

	// Skip the download entirely when the head commit was already
	// reported: the marker identifies our comments, the heading carries
	// the commit they describe.
	existing, err := r.api.ListIssueComments(ctx, pr.Number)
	if err != nil {
		outcome.Err = fmt.Errorf("listing comments on #%d: %w", pr.Number, err)
		return outcome
	}
	if publish.Reported(existing, r.cfg.Kind, render.Heading(pr.HeadSHA)) {
		r.log.debugf("report for %s already exists on #%d", pr.HeadSHA, pr.Number)
		outcome.Skipped = "report already published for this commit"
		return outcome
	}

	raws, err := reports.Download(ctx, r.api, candidates)
	if err != nil {
		if errors.Is(err, reports.ErrNoReports) {
			outcome.Skipped = "artifacts contained no size deltas data"
			return outcome
		}
		outcome.Err = err
		return outcome
	}

	groups := reports.Assemble(r.parseAll(raws), pr.HeadSHA)
	var group *reports.Group
	for i := range groups {
		if groups[i].Commit == pr.HeadSHA {
			group = &groups[i]
			break
		}
	}
	if group == nil {
		// The report's embedded hash disagreeing with the API's head would
		// otherwise republish on every tick.
		r.log.warnf("report commit hash doesn't match the head of #%d, skipping", pr.Number)
		outcome.Skipped = "report commit hash doesn't match pull request head"
		return outcome
	}

	ref := correlate.Ref{Number: pr.Number, HeadSHA: pr.HeadSHA}
	return r.processGroup(ctx, *group, &ref)
}

// processGroup runs delta computation, rendering, and publishing for one
// canonical group.
func (r *Runner) processGroup(ctx context.Context, g reports.Group, ambient *correlate.Ref) Outcome {
	outcome := Outcome{Commit: g.Commit}

	ref, err := correlate.Resolve(ctx, r.api, g, ambient)
	if err != nil {
		if errors.Is(err, correlate.ErrNoPullRequest) || errors.Is(err, correlate.ErrPullRequestLocked) {
			r.log.debugf("skipping group %s: %v", g.Commit, err)
			outcome.Skipped = err.Error()
			return outcome
		}
		outcome.Err = err
		return outcome
	}
	outcome.PRNumber = ref.Number

	results := delta.Compute(g)
	bodies := render.Render(results, render.Options{
		Kind:        r.cfg.Kind,
		Commit:      g.Commit,
		ChangesOnly: r.cfg.ChangesOnly,
	})
	outcome.Pages = len(bodies)

	res, err := publish.Publish(ctx, r.api, ref.Number, r.cfg.Kind, bodies)
	outcome.Publish = res
	if err != nil {
		outcome.Err = err
		return outcome
	}
	r.log.debugf("published %d page(s) to #%d (created %d, updated %d, deleted %d, unchanged %d)",
		len(bodies), ref.Number, res.Created, res.Updated, res.Deleted, res.Unchanged)
	return outcome
}

// parseAll canonicalizes raw reports, dropping malformed and old-format
// files with a warning. A single unreadable file never takes down the rest
// of its group.
func (r *Runner) parseAll(raws []reports.RawReport) []reports.Parsed {
	var parsed []reports.Parsed
	for _, raw := range raws {
		p, err := reports.Parse(raw)
		if err != nil {
			if errors.Is(err, reports.ErrOldFormat) {
				r.log.warnf("old format sketches report found in %s, skipping", raw.Origin)
			} else {
				r.log.warnf("%v", err)
			}
			continue
		}
		parsed = append(parsed, p)
	}
	return parsed
}
