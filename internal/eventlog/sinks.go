package eventlog

import (
	"fmt"
	"time"

	"github.com/promptcraft-lab/promptops/internal/config"
)

// NewSinks builds the configured sinks. The emitter owns closing them.
func NewSinks(cfgs []config.SinkConfig) ([]Sink, error) {
	sinks := make([]Sink, 0, len(cfgs))
	for _, sc := range cfgs {
		switch sc.Type {
		case "file_jsonl":
			sink, err := NewFileSink(sc.Path)
			if err != nil {
				return nil, fmt.Errorf("file_jsonl sink: %w", err)
			}
			sinks = append(sinks, sink)
		case "webhook":
			sink, err := NewWebhookSink(sc.URL, sc.Headers, time.Duration(sc.TimeoutMS)*time.Millisecond)
			if err != nil {
				return nil, fmt.Errorf("webhook sink: %w", err)
			}
			sinks = append(sinks, sink)
		default:
			return nil, fmt.Errorf("unknown sink type %q", sc.Type)
		}
	}
	return sinks, nil
}
