// Package sink writes extracted records to tabular output. The engine only
// sees the Sink interface; escaping and serialization belong to the
// implementation.
package sink

import (
	"github.com/mantonx/harvester/internal/extractor"
)

// Sink is an append-only, ordered-field record writer.
type Sink interface {
	// Initialize writes the header for the given schema. Calling it again
	// with the same schema is a no-op so resumed sessions do not duplicate
	// headers.
	Initialize(schema []string) error

	// Append writes one record, rendering fields in schema order. Absent
	// fields are written empty.
	Append(record *extractor.Record) error

	// Close flushes and releases the underlying writer.
	Close() error
}
