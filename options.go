package pagestream

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultFetchTimeout bounds a single page fetch
const DefaultFetchTimeout = 30 * time.Second

// Opt is an option for configuring an Engine
type Opt func(e *Engine)

// WithLogger sets the engine logger
func WithLogger(logger Logger) Opt {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithSearchFields sets the record fields the search value is matched against
func WithSearchFields(fields ...string) Opt {
	return func(e *Engine) {
		e.searchFields = fields
	}
}

// WithDateFields sets the record fields normalized from store timestamps to *time.Time
func WithDateFields(fields ...string) Opt {
	return func(e *Engine) {
		e.dateFields = fields
	}
}

// WithFetchTimeout bounds each page fetch and single document read
func WithFetchTimeout(timeout time.Duration) Opt {
	return func(e *Engine) {
		e.fetchTimeout = timeout
	}
}

// WithMetrics registers the engine's prometheus collectors with the registerer
func WithMetrics(registerer prometheus.Registerer) Opt {
	return func(e *Engine) {
		e.registerer = registerer
	}
}

// WithDocumentSchema validates documents passed to Create and Update against the json schema
func WithDocumentSchema(jsonSchema []byte) Opt {
	return func(e *Engine) {
		e.rawSchema = jsonSchema
	}
}
