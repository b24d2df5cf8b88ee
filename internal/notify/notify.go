// Package notify declares the run-completion notification interface.
package notify

import "context"

// Publisher pushes run-completion payloads to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
