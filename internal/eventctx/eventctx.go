package eventctx

import (
	"encoding/json"
	"fmt"
	"os"
)

// Context is the ambient pull-request information carried by a
// pull_request-triggered workflow run.
type Context struct {
	EventName string
	PRNumber  int
	HeadSHA   string
	BaseSHA   string
}

// IsPullRequest reports whether the invocation has direct PR context.
func (c *Context) IsPullRequest() bool {
	return c != nil && c.EventName == "pull_request" && c.PRNumber > 0
}

// Load reads the ambient context from the environment. It returns nil (and
// no error) outside a pull_request-triggered run, since scheduled and manual
// invocations legitimately have no ambient PR.
func Load() (*Context, error) {
	eventName := os.Getenv("GITHUB_EVENT_NAME")
	if eventName != "pull_request" {
		return nil, nil
	}
	eventPath := os.Getenv("GITHUB_EVENT_PATH")
	if eventPath == "" {
		return nil, fmt.Errorf("GITHUB_EVENT_NAME is pull_request but GITHUB_EVENT_PATH is not set")
	}
	data, err := os.ReadFile(eventPath)
	if err != nil {
		return nil, fmt.Errorf("reading event payload: %w", err)
	}
	return Parse(eventName, data)
}

// Parse extracts the pull-request context from a serialized event payload.
func Parse(eventName string, payload []byte) (*Context, error) {
	var event struct {
		PullRequest struct {
			Number int `json:"number"`
			Head   struct {
				SHA string `json:"sha"`
			} `json:"head"`
			Base struct {
				SHA string `json:"sha"`
			} `json:"base"`
		} `json:"pull_request"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("parsing event payload: %w", err)
	}
	if event.PullRequest.Number == 0 {
		return nil, fmt.Errorf("event payload carries no pull request")
	}
	return &Context{
		EventName: eventName,
		PRNumber:  event.PullRequest.Number,
		HeadSHA:   event.PullRequest.Head.SHA,
		BaseSHA:   event.PullRequest.Base.SHA,
	}, nil
}
