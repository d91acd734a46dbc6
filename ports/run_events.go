package ports

import "conjoint/domain/run"

// RunEventPublisher receives run lifecycle events. Publish must not block.
type RunEventPublisher interface {
	Publish(event run.Event)
}
