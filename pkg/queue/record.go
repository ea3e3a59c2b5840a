package queue

import (
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/resilient-net/pkg/request"
)

// record is the persisted form of a request. Body, Headers and Query keep
// the difference between nil and empty.
type record struct {
	Method     string            `json:"method"`
	URL        string            `json:"url"`
	Body       []byte            `json:"body"`
	Headers    map[string]string `json:"headers"`
	Query      map[string]string `json:"query"`
	SkipRetry  bool              `json:"skip_retry"`
	MaxRetries *int              `json:"max_retries"`
	Priority   int               `json:"priority"`
}

func toRecord(r request.Request) record {
	c := r.Clone()
	return record{
		Method:     string(c.Method),
		URL:        c.URL,
		Body:       c.Body,
		Headers:    c.Headers,
		Query:      c.Query,
		SkipRetry:  c.SkipRetry,
		MaxRetries: c.MaxRetries,
		Priority:   c.Priority,
	}
}

func (rec record) request() request.Request {
	return request.Request{
		Method:     request.Method(rec.Method),
		URL:        rec.URL,
		Body:       rec.Body,
		Headers:    rec.Headers,
		Query:      rec.Query,
		SkipRetry:  rec.SkipRetry,
		MaxRetries: rec.MaxRetries,
		Priority:   rec.Priority,
	}
}

func encodeRequest(r request.Request) ([]byte, error) {
	data, err := json.Marshal(toRecord(r))
	if err != nil {
		return nil, fmt.Errorf("marshal queued request: %w", err)
	}
	return data, nil
}

func decodeRequest(data []byte) (request.Request, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return request.Request{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return rec.request(), nil
}

func encodeSnapshot(reqs []request.Request) ([]byte, error) {
	recs := make([]record, 0, len(reqs))
	for _, r := range reqs {
		recs = append(recs, toRecord(r))
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return nil, fmt.Errorf("marshal queue snapshot: %w", err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) ([]request.Request, error) {
	var recs []record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	out := make([]request.Request, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.request())
	}
	return out, nil
}
