package render

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/embedware/sizedeltas/internal/delta"
)

// DefaultMaxLen is the platform ceiling on comment body length: issue
// comments are stored as a mediumblob of 262144 bytes.
const DefaultMaxLen = 262144

const (
	decreaseEmoji  = ":green_heart:"
	increaseEmoji  = ":small_red_triangle:"
	ambiguousEmoji = ":grey_question:"
)

const notApplicable = "N/A"

// pagePadding is headroom reserved during packing for the final page
// indicator and marker digits.
const pagePadding = 128

// Options controls the rendered presentation.
type Options struct {
	// Kind discriminates this report from other automated comments.
	Kind string
	// Commit is the head commit the report describes.
	Commit string
	// ChangesOnly drops unchanged rows from the detailed tables.
	ChangesOnly bool
	// MaxLen overrides the comment-length ceiling (tests); 0 means
	// DefaultMaxLen.
	MaxLen int
}

func (o Options) maxLen() int {
	if o.MaxLen > 0 {
		return o.MaxLen
	}
	return DefaultMaxLen
}

// Heading returns the report title line for a head commit. Sweep callers
// match it inside existing comments to tell whether a commit has already
// been reported.
func Heading(commit string) string {
	return fmt.Sprintf("**Memory usage change @ %s**", commit)
}

// Render formats the delta results as one or more comment bodies, splitting
// along sketch boundaries whenever a single body would exceed the ceiling.
func Render(results []delta.Result, opts Options) []string {
	rows := visibleRows(results, opts)
	totals := delta.Totals(results)

	// Pack sketches greedily: shrink the page until the candidate body
	// fits, then continue with the remainder. A page always holds at least
	// one sketch, so a pathological single-sketch overflow still renders.
	// Pack against a slightly lower ceiling: the final marker and page
	// indicator are a few bytes longer than the probe's.
	budget := opts.maxLen() - pagePadding
	if budget < 1 {
		budget = 1
	}
	sketches := sketchOrder(rows)
	var pages [][]row
	for len(sketches) > 0 {
		take := len(sketches)
		for take > 1 {
			candidate := pageBody(rowsFor(rows, sketches[:take]), totals, opts, len(pages) == 0, 1, 1)
			if len(candidate) <= budget {
				break
			}
			take--
		}
		pages = append(pages, rowsFor(rows, sketches[:take]))
		sketches = sketches[take:]
	}
	if len(pages) == 0 {
		pages = [][]row{nil}
	}

	bodies := make([]string, len(pages))
	for i, pageRows := range pages {
		bodies[i] = pageBody(pageRows, totals, opts, i == 0, i+1, len(pages))
	}
	return bodies
}

// row is one detailed-table line.
type row struct {
	sketch, board, region                string
	previous, current, absolute, percent string
}

func visibleRows(results []delta.Result, opts Options) []row {
	var rows []row
	for _, r := range results {
		if opts.ChangesOnly && r.Class == delta.Unchanged {
			continue
		}
		rows = append(rows, row{
			sketch:   r.Entry.Sketch,
			board:    r.Entry.Board,
			region:   r.Entry.Region,
			previous: sizeCell(r.Entry.Previous.Present, r.Entry.Previous.Available, r.Entry.Previous.Bytes),
			current:  sizeCell(r.Entry.Current.Present, r.Entry.Current.Available, r.Entry.Current.Bytes),
			absolute: absoluteCell(r),
			percent:  percentCell(r),
		})
	}
	return rows
}

func sizeCell(present, available bool, bytes int64) string {
	if !present || !available {
		return notApplicable
	}
	return fmt.Sprintf("%d", bytes)
}

func absoluteCell(r delta.Result) string {
	switch r.Class {
	case delta.New:
		return "new"
	case delta.Removed:
		return "removed"
	case delta.NotAvailable:
		return notApplicable
	}
	return signed(r.Absolute)
}

func percentCell(r delta.Result) string {
	if !r.HasRelative {
		return notApplicable
	}
	if r.Relative > 0 {
		return fmt.Sprintf("+%.2f", r.Relative)
	}
	return fmt.Sprintf("%.2f", r.Relative)
}

// signed prepends + to positive values to improve readability.
func signed(n int64) string {
	if n > 0 {
		return fmt.Sprintf("+%d", n)
	}
	return fmt.Sprintf("%d", n)
}

func sketchOrder(rows []row) []string {
	seen := make(map[string]bool)
	var order []string
	for _, r := range rows {
		if !seen[r.sketch] {
			seen[r.sketch] = true
			order = append(order, r.sketch)
		}
	}
	return order
}

func rowsFor(rows []row, sketches []string) []row {
	want := make(map[string]bool, len(sketches))
	for _, s := range sketches {
		want[s] = true
	}
	var out []row
	for _, r := range rows {
		if want[r.sketch] {
			out = append(out, r)
		}
	}
	return out
}

func pageBody(rows []row, totals []delta.BoardTotal, opts Options, first bool, page, pages int) string {
	var sb strings.Builder
	sb.WriteString(marker(opts.Kind, page, pages))
	sb.WriteString("\n")
	sb.WriteString(Heading(opts.Commit))
	sb.WriteString("\n\n")

	if first {
		writeSummary(&sb, totals)
	} else {
		sb.WriteString(fmt.Sprintf("*(continued — page %d of %d)*\n\n", page, pages))
	}

	if len(rows) == 0 {
		sb.WriteString("No size changes to report.\n")
		return sb.String()
	}

	sb.WriteString("<details>\n<summary>Click for full report table</summary>\n\n")
	for _, region := range regionOrder(rows) {
		sb.WriteString(fmt.Sprintf("#### %s\n\n", region))
		sb.WriteString("|Sketch|Board|Previous|Current|Delta|%|\n")
		sb.WriteString("|-|-|-|-|-|-|\n")
		for _, r := range rows {
			if r.region != region {
				continue
			}
			sb.WriteString(fmt.Sprintf("|`%s`|`%s`|%s|%s|%s|%s|\n",
				r.sketch, r.board, r.previous, r.current, r.absolute, r.percent))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("</details>\n")

	// The CSV rendition is a nicety: include it only when it still fits
	// under the ceiling.
	withCSV := sb.String() + csvSection(rows)
	if len(withCSV) <= opts.maxLen() {
		return withCSV
	}
	return sb.String()
}

func writeSummary(sb *strings.Builder, totals []delta.BoardTotal) {
	if len(totals) == 0 {
		return
	}
	for _, board := range totalBoards(totals) {
		var parts []string
		for _, t := range totals {
			if t.Board != board {
				continue
			}
			cell := signed(t.Sum)
			if t.Min != t.Max {
				cell = fmt.Sprintf("%s (%s - %s)", cell, signed(t.Min), signed(t.Max))
			}
			if e := summaryEmoji(t.Min, t.Max); e != "" {
				cell = e + " " + cell
			}
			parts = append(parts, fmt.Sprintf("%s: %s", t.Region, cell))
		}
		sb.WriteString(fmt.Sprintf("`%s`: %s\n\n", board, strings.Join(parts, ", ")))
	}
}

func totalBoards(totals []delta.BoardTotal) []string {
	seen := make(map[string]bool)
	var boards []string
	for _, t := range totals {
		if !seen[t.Board] {
			seen[t.Board] = true
			boards = append(boards, t.Board)
		}
	}
	return boards
}

// summaryEmoji mirrors the classic indicator scheme: green heart for a
// strict decrease, red triangle for a strict increase, question mark when
// sketches disagree, nothing when everything held steady.
func summaryEmoji(min, max int64) string {
	switch {
	case min == 0 && max == 0:
		return ""
	case min < 0 && max <= 0:
		return decreaseEmoji
	case min >= 0 && max > 0:
		return increaseEmoji
	default:
		return ambiguousEmoji
	}
}

func regionOrder(rows []row) []string {
	seen := make(map[string]bool)
	var order []string
	for _, r := range rows {
		if !seen[r.region] {
			seen[r.region] = true
			order = append(order, r.region)
		}
	}
	return order
}

func csvSection(rows []row) string {
	var sb strings.Builder
	sb.WriteString("\n<details>\n<summary>Click for full report CSV</summary>\n\n```\n")
	w := csv.NewWriter(&sb)
	w.Write([]string{"Region", "Sketch", "Board", "Previous", "Current", "Delta", "%"})
	for _, r := range rows {
		w.Write([]string{r.region, r.sketch, r.board, r.previous, r.current, r.absolute, r.percent})
	}
	w.Flush()
	sb.WriteString("```\n</details>\n")
	return sb.String()
}
