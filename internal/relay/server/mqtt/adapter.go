package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
)

type HandlerFunc func(ctx context.Context, topic string, payload []byte) error

type TypedHandlerFunc[T any] func(ctx context.Context, topic string, msg T) error

// JSONAdapter decodes the payload into T before calling handler. Unknown
// fields are ignored so vehicles may send more than the relay reads.
func JSONAdapter[T any](handler TypedHandlerFunc[T]) HandlerFunc {
	return func(ctx context.Context, topic string, payload []byte) error {
		var msg T
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("json unmarshal failed: %w", err)
		}
		return handler(ctx, topic, msg)
	}
}
