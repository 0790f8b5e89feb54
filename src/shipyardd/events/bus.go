// Package events carries build progress notifications to live subscribers.
package events

import (
	"context"
	"encoding/json"

	"github.com/bitswalk/shipyard/src/common/logs"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the events package
func SetLogger(l *logs.Logger) {
	if l != nil {
		log = l
	}
}

// Message is the envelope used on every transport
type Message struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// Publisher sends a payload to every subscriber of topic
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte) error
}

// VersionTopic returns the topic progress for a version is published on
func VersionTopic(versionID string) string {
	return "version:" + versionID
}
