package domain

// Record is a single corpus entry: a question/answer pair plus the
// precomputed text the retrievers index. Records are immutable after
// corpus load; Index is stable for the lifetime of the loaded corpus.
type Record struct {
	Index      int
	Question   string
	Answer     string
	SearchText string
}

// NewRecord builds a record with the search text derived from the
// question and answer. Missing fields are already coalesced to "" by
// the corpus loader.
func NewRecord(index int, question, answer string) Record {
	return Record{
		Index:      index,
		Question:   question,
		Answer:     answer,
		SearchText: question + " " + answer,
	}
}

// RetrievalResult is a single similarity hit, produced fresh per query.
// Score is cosine similarity in [-1, 1] for both retriever variants.
type RetrievalResult struct {
	Index      int
	SearchText string
	Score      float64
}

// Candidate is the response-facing view of a retrieval hit joined with
// its source record. A hit whose index does not resolve to a record
// carries empty Question/Answer rather than failing the request.
type Candidate struct {
	Index    int     `json:"index"`
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

// QueryAnswer is the resolved outcome of a single query.
//
// Answer defaults to the top candidate's answer, falling back to its
// text when the answer is empty, falling back to "" when there are no
// candidates. Match is the top candidate's text, nil when there is
// none. Score is the top candidate's score, 0 otherwise.
type QueryAnswer struct {
	Answer     string      `json:"answer"`
	Match      *string     `json:"match"`
	Score      float64     `json:"score"`
	Candidates []Candidate `json:"candidates"`
}
