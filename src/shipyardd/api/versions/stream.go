package versions

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/bitswalk/shipyard/src/shipyardd/api/common"
	"github.com/bitswalk/shipyard/src/shipyardd/build"
	"github.com/bitswalk/shipyard/src/shipyardd/db"
	"github.com/bitswalk/shipyard/src/shipyardd/events"
	"github.com/gin-gonic/gin"
)

// statusEvent is the first and the periodic frame of a progress stream
type statusEvent struct {
	VersionID string           `json:"version_id"`
	Status    db.VersionStatus `json:"status"`
	Stack     string           `json:"stack,omitempty"`
	ImageTag  string           `json:"image_tag,omitempty"`
}

func writeStatus(w io.Writer, v *db.ProjectVersion) {
	data, _ := json.Marshal(statusEvent{VersionID: v.ID, Status: v.Status, Stack: v.Stack, ImageTag: v.ImageTag})
	fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
}

func writeDone(w io.Writer, status db.VersionStatus) {
	fmt.Fprintf(w, "event: done\ndata: {\"status\":\"%s\"}\n\n", status)
}

// finishedStatus reports the terminal status carried by a progress event, if any
func finishedStatus(data []byte) (db.VersionStatus, bool) {
	var e build.Event
	if err := json.Unmarshal(data, &e); err != nil || e.Kind != build.EventStatus {
		return "", false
	}
	status := db.VersionStatus(e.Status)
	return status, status.IsBuildFinished()
}

// HandleEvents streams build progress via SSE until the build finishes
// @Summary      Stream build progress
// @Description  Server-sent events: a status frame, then one progress frame per build event, then a done frame. EventSource clients may pass the token as a query parameter.
// @Tags         Versions
// @Produce      text/event-stream
// @Param        id     path      string  true   "Project ID"
// @Param        vid    path      string  true   "Version ID"
// @Param        token  query     string  false  "Access token for EventSource clients"
// @Success      200    {string}  string
// @Failure      404    {object}  common.ErrorResponse
// @Failure      503    {object}  common.ErrorResponse
// @Router       /v1/projects/{id}/versions/{vid}/events [get]
func (h *Handler) HandleEvents(c *gin.Context) {
	_, version, ok := h.loadVersion(c)
	if !ok {
		return
	}
	if h.events == nil {
		common.ServiceUnavailable(c, "Progress events are not enabled")
		return
	}

	// Subscribe before reading the status so no transition slips between the two
	msgs, unsubscribe := h.events.Subscribe(events.VersionTopic(version.ID))
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	current, err := h.versionRepo.GetByID(version.ID)
	if err != nil || current == nil {
		current = version
	}

	ticker := time.NewTicker(h.streamPoll)
	defer ticker.Stop()

	first := true
	c.Stream(func(w io.Writer) bool {
		if first {
			first = false
			writeStatus(w, current)
			if current.Status.IsBuildFinished() {
				writeDone(w, current.Status)
				return false
			}
			return true
		}

		select {
		case <-c.Request.Context().Done():
			return false

		case data, ok := <-msgs:
			if !ok {
				return false
			}
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
			if status, done := finishedStatus(data); done {
				writeDone(w, status)
				return false
			}
			return true

		case <-ticker.C:
			// Catches a finish whose event was dropped for a slow reader
			v, err := h.versionRepo.GetByID(version.ID)
			if err != nil || v == nil {
				return false
			}
			if v.Status.IsBuildFinished() {
				writeStatus(w, v)
				writeDone(w, v.Status)
				return false
			}
			fmt.Fprint(w, ": keepalive\n\n")
			return true
		}
	})
}
