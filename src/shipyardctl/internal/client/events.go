package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Stream event names sent by the server
const (
	EventStatus   = "status"
	EventProgress = "progress"
	EventDone     = "done"
)

// StreamEvent is one server-sent event frame
type StreamEvent struct {
	Name string
	Data json.RawMessage
}

// StatusFrame is the payload of status and done frames
type StatusFrame struct {
	VersionID string `json:"version_id,omitempty"`
	Status    string `json:"status"`
	Stack     string `json:"stack,omitempty"`
	ImageTag  string `json:"image_tag,omitempty"`
}

// ProgressFrame is the payload of a progress frame
type ProgressFrame struct {
	Kind        string        `json:"kind"`
	Step        int           `json:"step,omitempty"`
	Total       int           `json:"total,omitempty"`
	Instruction string        `json:"instruction,omitempty"`
	Service     string        `json:"service,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	ImageID     string        `json:"image_id,omitempty"`
	CacheHits   int           `json:"cache_hits,omitempty"`
	CacheMisses int           `json:"cache_misses,omitempty"`
	Status      string        `json:"status,omitempty"`
	Message     string        `json:"message,omitempty"`
	Percent     int           `json:"percent,omitempty"`
}

// StreamEvents follows a version's progress stream, calling fn for every
// frame until the server sends done, fn returns an error or ctx ends. It
// returns the final status.
func (c *Client) StreamEvents(ctx context.Context, projectID, versionID string, fn func(StreamEvent) error) (string, error) {
	resp, err := c.RawGet(ctx, versionPath(projectID, versionID)+"/events", "text/event-stream")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	return readEvents(resp.Body, fn)
}

// readEvents parses an SSE body. Comment lines are keepalives.
func readEvents(r io.Reader, fn func(StreamEvent) error) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var name string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if name == "" && len(data) == 0 {
				continue
			}
			ev := StreamEvent{Name: name, Data: json.RawMessage(strings.Join(data, "\n"))}
			name, data = "", nil

			if ev.Name == EventDone {
				var done StatusFrame
				if err := json.Unmarshal(ev.Data, &done); err != nil {
					return "", fmt.Errorf("bad done frame: %w", err)
				}
				if err := fn(ev); err != nil {
					return done.Status, err
				}
				return done.Status, nil
			}
			if err := fn(ev); err != nil {
				return "", err
			}
		case strings.HasPrefix(line, ":"):
			// keepalive
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("event stream: %w", err)
	}
	return "", fmt.Errorf("event stream ended before the build finished")
}
