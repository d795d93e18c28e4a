package corpus

import (
	"github.com/kailas-cloud/chatdex/internal/domain"
)

// Pair is a raw question/answer record as supplied by the corpus source.
// Either field may be empty.
type Pair struct {
	Question string
	Answer   string
}

// Store holds the ordered, immutable corpus records. It owns the record
// slice; retrievers borrow it read-only and never copy it.
type Store struct {
	records []domain.Record
}

// New builds a store from an ordered sequence of raw pairs, precomputing
// the search text for every record. Returns domain.ErrEmptyCorpus when
// given zero records: a retriever cannot be built over an empty corpus,
// and that has to surface at startup, not at query time.
func New(pairs []Pair) (*Store, error) {
	if len(pairs) == 0 {
		return nil, domain.ErrEmptyCorpus
	}

	records := make([]domain.Record, len(pairs))
	for i, p := range pairs {
		records[i] = domain.NewRecord(i, p.Question, p.Answer)
	}
	return &Store{records: records}, nil
}

// Records returns the ordered record slice. Callers must treat it as
// read-only.
func (s *Store) Records() []domain.Record {
	return s.records
}

// Get looks up a record by index. The second return is false when the
// index is out of range.
func (s *Store) Get(index int) (domain.Record, bool) {
	if index < 0 || index >= len(s.records) {
		return domain.Record{}, false
	}
	return s.records[index], true
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.records)
}
