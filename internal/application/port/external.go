package port

import (
	"context"

	"github.com/HadassahLevi/tiktax/internal/domain/entity"
	"github.com/HadassahLevi/tiktax/internal/stats"
)

// RecognizedField is one extracted field value with its quality signal
type RecognizedField struct {
	Value string                `json:"value"`
	Band  entity.ConfidenceBand `json:"band"`
}

// RecognitionResult is the recognition collaborator's successful output
type RecognitionResult struct {
	Fields map[entity.FieldID]RecognizedField `json:"fields"`
}

// Bands projects the per-field confidence bands
func (r *RecognitionResult) Bands() map[entity.FieldID]entity.ConfidenceBand {
	bands := make(map[entity.FieldID]entity.ConfidenceBand, len(r.Fields))
	for f, rf := range r.Fields {
		bands[f] = rf.Band
	}
	return bands
}

// Value returns the extracted value for a field, empty when missing
func (r *RecognitionResult) Value(f entity.FieldID) string {
	return r.Fields[f].Value
}

// Recognizer is the image-recognition collaborator. Implementations
// must return entity.ErrRecognitionFailed or
// entity.ErrRecognitionTimeout (possibly wrapped) on terminal failure.
type Recognizer interface {
	Recognize(ctx context.Context, imageRef string) (*RecognitionResult, error)
}

// ImageStore is the durable image storage collaborator; this service
// only ever holds opaque references. Store returns the reference for a
// newly persisted image, Resolve returns its bytes and file extension.
type ImageStore interface {
	Store(ctx context.Context, ownerID, filename string, content []byte) (string, error)
	Resolve(ctx context.Context, imageRef string) ([]byte, string, error)
}

// ExportRenderer renders an export dataset into a document for the
// accountant. Rendering never influences the dataset.
type ExportRenderer interface {
	Render(ctx context.Context, result *stats.ExportResult, registry *entity.CategoryRegistry) ([]byte, error)
}

// Archiver is the optional long-term archival capability. The service
// invokes it only after a receipt reaches approved, never earlier.
type Archiver interface {
	Archive(ctx context.Context, receipt *entity.Receipt) error
}
