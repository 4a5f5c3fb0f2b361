package stacks

import (
	"strings"
	"time"
)

// JobListResponse mirrors the payload returned by /api/jobs.
type JobListResponse struct {
	Active   []string `json:"active"`
	Complete []string `json:"complete"`
}

// JobDetail describes one batch job in the /api/jobs/details response.
type JobDetail struct {
	Moved      []string `json:"moved"`
	FinishedAt string   `json:"finishedAt"`
}

// ParsedFinishedAt returns the completion timestamp as time.Time when possible.
func (d JobDetail) ParsedFinishedAt() time.Time {
	return parseTime(d.FinishedAt)
}

// MoveReceipt mirrors the response of /api/moves.
type MoveReceipt struct {
	JobID string `json:"jobId"`
}

// ObjectListResponse mirrors /api/objects.
type ObjectListResponse struct {
	Items []Object `json:"items"`
}

// Object is a repository object as listed within a container.
type Object struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Kind  string `json:"kind"`
}

// TargetToken is the substitution token recognized in action URL templates.
const TargetToken = "{id}"

// RequestDescriptor names an action endpoint. The URL is a path template with
// a single TargetToken substituted per request.
type RequestDescriptor struct {
	URLTemplate string
	Method      string
	Body        any
}

func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
