package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedware/sizedeltas/internal/pipeline"
)

func TestBuildOverrides(t *testing.T) {
	require.NoError(t, reportCmd.Flags().Set("repository", "octo/firmware"))
	require.NoError(t, reportCmd.Flags().Set("changes-only", "true"))
	t.Cleanup(func() {
		flagRepository = ""
		flagChangesOnly = false
	})

	overrides := buildOverrides(reportCmd)
	assert.Equal(t, "octo/firmware", overrides["repository"])
	assert.Equal(t, "true", overrides["changes-only"])
	// Untouched boolean flags stay out of the override set so file and env
	// values survive.
	_, ok := overrides["verbose"]
	assert.False(t, ok)
}

func TestOutcomeLabel(t *testing.T) {
	tests := []struct {
		name    string
		outcome pipeline.Outcome
		want    string
	}{
		{name: "pull request", outcome: pipeline.Outcome{PRNumber: 7, Commit: "abc"}, want: "PR #7"},
		{name: "commit only", outcome: pipeline.Outcome{Commit: "abc"}, want: "commit abc"},
		{name: "neither", outcome: pipeline.Outcome{Err: errors.New("x")}, want: "group"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, outcomeLabel(tt.outcome))
		})
	}
}
