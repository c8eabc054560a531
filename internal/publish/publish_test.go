package publish

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedware/sizedeltas/internal/github"
	"github.com/embedware/sizedeltas/internal/render"
)

// fakeStore is an in-memory CommentStore.
type fakeStore struct {
	comments []github.Comment
	nextID   int64
	failOn   string // operation name to fail, e.g. "create"
}

func newFakeStore(bodies ...string) *fakeStore {
	s := &fakeStore{nextID: 1}
	for _, b := range bodies {
		s.comments = append(s.comments, github.Comment{ID: s.nextID, Body: b})
		s.nextID++
	}
	return s
}

func (s *fakeStore) ListIssueComments(ctx context.Context, prNumber int) ([]github.Comment, error) {
	if s.failOn == "list" {
		return nil, errors.New("boom")
	}
	out := make([]github.Comment, len(s.comments))
	copy(out, s.comments)
	return out, nil
}

func (s *fakeStore) CreateComment(ctx context.Context, prNumber int, body string) (github.Comment, error) {
	if s.failOn == "create" {
		return github.Comment{}, errors.New("boom")
	}
	c := github.Comment{ID: s.nextID, Body: body}
	s.nextID++
	s.comments = append(s.comments, c)
	return c, nil
}

func (s *fakeStore) UpdateComment(ctx context.Context, commentID int64, body string) error {
	if s.failOn == "update" {
		return errors.New("boom")
	}
	for i := range s.comments {
		if s.comments[i].ID == commentID {
			s.comments[i].Body = body
			return nil
		}
	}
	return fmt.Errorf("comment %d not found", commentID)
}

func (s *fakeStore) DeleteComment(ctx context.Context, commentID int64) error {
	if s.failOn == "delete" {
		return errors.New("boom")
	}
	for i := range s.comments {
		if s.comments[i].ID == commentID {
			s.comments = append(s.comments[:i], s.comments[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("comment %d not found", commentID)
}

const kind = "memory-usage"

func page(i, n int, content string) string {
	return fmt.Sprintf("%s page=\"%d/%d\" -->\n%s", render.MarkerPrefix(kind), i, n, content)
}

func marked(s *fakeStore) []github.Comment {
	var out []github.Comment
	for _, c := range s.comments {
		if _, ok := render.PageOf(c.Body, kind); ok {
			out = append(out, c)
		}
	}
	return out
}

func TestPublishReconciliation(t *testing.T) {
	tests := []struct {
		name         string
		existing     []string
		bodies       []string
		wantCreated  int
		wantUpdated  int
		wantDeleted  int
		wantSurvived int
	}{
		{
			name:         "no existing comments",
			existing:     nil,
			bodies:       []string{page(1, 1, "v1")},
			wantCreated:  1,
			wantSurvived: 1,
		},
		{
			name:         "single comment updated in place",
			existing:     []string{page(1, 1, "old")},
			bodies:       []string{page(1, 1, "new")},
			wantUpdated:  1,
			wantSurvived: 1,
		},
		{
			name:         "report grows to two pages",
			existing:     []string{page(1, 1, "old")},
			bodies:       []string{page(1, 2, "a"), page(2, 2, "b")},
			wantUpdated:  1,
			wantCreated:  1,
			wantSurvived: 2,
		},
		{
			name:         "report shrinks from three pages",
			existing:     []string{page(1, 3, "a"), page(2, 3, "b"), page(3, 3, "c")},
			bodies:       []string{page(1, 1, "only")},
			wantUpdated:  1,
			wantDeleted:  2,
			wantSurvived: 1,
		},
		{
			name:         "two existing two desired",
			existing:     []string{page(1, 2, "a"), page(2, 2, "b")},
			bodies:       []string{page(1, 2, "a2"), page(2, 2, "b2")},
			wantUpdated:  2,
			wantSurvived: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore(tt.existing...)
			res, err := Publish(context.Background(), store, 7, kind, tt.bodies)
			require.NoError(t, err)

			assert.Equal(t, tt.wantCreated, res.Created)
			assert.Equal(t, tt.wantUpdated, res.Updated)
			assert.Equal(t, tt.wantDeleted, res.Deleted)

			survivors := marked(store)
			require.Len(t, survivors, tt.wantSurvived)
			for i, c := range survivors {
				assert.Equal(t, tt.bodies[i], c.Body)
			}
		})
	}
}

func TestPublishIdempotent(t *testing.T) {
	store := newFakeStore()
	bodies := []string{page(1, 2, "a"), page(2, 2, "b")}

	first, err := Publish(context.Background(), store, 7, kind, bodies)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	// Publishing the identical bodies again touches nothing.
	second, err := Publish(context.Background(), store, 7, kind, bodies)
	require.NoError(t, err)
	assert.Equal(t, Result{Unchanged: 2}, second)
	assert.Len(t, marked(store), 2)
}

func TestPublishIgnoresUnrelatedComments(t *testing.T) {
	store := newFakeStore(
		"just a human comment",
		`<!-- sizedeltas-report kind="coverage" page="1/1" -->\nother bot`,
	)
	_, err := Publish(context.Background(), store, 7, kind, []string{page(1, 1, "v1")})
	require.NoError(t, err)

	// The human comment and the other bot's report are untouched.
	assert.Len(t, store.comments, 3)
	assert.Equal(t, "just a human comment", store.comments[0].Body)
}

func TestPublishOrdersExistingByPageIndex(t *testing.T) {
	// Pages listed out of order (comment edits can reorder the thread
	// listing) still reconcile positionally by page index.
	store := newFakeStore(page(2, 2, "b"), page(1, 2, "a"))
	bodies := []string{page(1, 2, "a"), page(2, 2, "b")}

	res, err := Publish(context.Background(), store, 7, kind, bodies)
	require.NoError(t, err)
	assert.Equal(t, Result{Unchanged: 2}, res)
}

func TestPublishError(t *testing.T) {
	store := newFakeStore()
	store.failOn = "create"

	_, err := Publish(context.Background(), store, 7, kind, []string{page(1, 1, "v1")})
	require.Error(t, err)

	var pubErr *Error
	require.True(t, errors.As(err, &pubErr))
	assert.Equal(t, 7, pubErr.PRNumber)
}

func TestReported(t *testing.T) {
	heading := "**Memory usage change @ abc123**"

	assert.False(t, Reported(nil, kind, heading))
	assert.True(t, Reported([]github.Comment{{ID: 1, Body: page(1, 1, heading)}}, kind, heading))
	// A marked comment for another commit does not count.
	assert.False(t, Reported([]github.Comment{{ID: 1, Body: page(1, 1, "**Memory usage change @ other**")}}, kind, heading))
	// An unmarked comment containing the heading does not count either.
	assert.False(t, Reported([]github.Comment{{ID: 1, Body: heading}}, kind, heading))
}
