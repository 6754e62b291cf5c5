// Package publisher declares the notification sink used after ingestion.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher delivers a payload to a topic and returns the broker message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Attributer is implemented by payloads that carry broker attributes.
type Attributer interface {
	Attributes() map[string]string
}

// Encode marshals payload to JSON and collects its attributes, if any.
func Encode(payload any) ([]byte, map[string]string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}
	var attrs map[string]string
	if a, ok := payload.(Attributer); ok {
		attrs = a.Attributes()
	}
	return data, attrs, nil
}
