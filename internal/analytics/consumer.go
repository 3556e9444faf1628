package analytics

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/kafka"
)

// Decode turns a published event back into its concrete type using the
// "type" field.
func Decode(value []byte) (Event, error) {
	head, err := kafka.DecodeJSON[struct {
		Type EventType `json:"type"`
	}](value)
	if err != nil {
		return nil, err
	}
	switch head.Type {
	case EventSearch, EventZeroResult:
		return kafka.DecodeJSON[SearchEvent](value)
	case EventIndexBuild:
		return kafka.DecodeJSON[IndexEvent](value)
	default:
		return nil, fmt.Errorf("unknown analytics event type %q", head.Type)
	}
}

// HandleMessage returns a kafka.MessageHandler that feeds decoded events to
// t. Undecodable messages are reported as errors and left uncommitted.
func HandleMessage(t Tracker) kafka.MessageHandler {
	return func(_ context.Context, _ []byte, value []byte) error {
		event, err := Decode(value)
		if err != nil {
			return err
		}
		t.Track(event)
		return nil
	}
}
