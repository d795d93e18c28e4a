package resolve

import (
	"context"

	"github.com/kailas-cloud/chatdex/internal/domain"
)

// Retriever answers top-k similarity queries against a built index.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievalResult, error)
	Name() string
}

// RecordReader looks up corpus records by index.
type RecordReader interface {
	Get(index int) (domain.Record, bool)
}
