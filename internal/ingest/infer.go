package ingest

import (
	"encoding/json"
	"fmt"
)

// Kind names the record shape of a batch.
type Kind string

const (
	KindSentiment Kind = "sentiment"
	KindVersion   Kind = "version"
	KindUnknown   Kind = "unknown"
)

var (
	sentimentKeys = []string{"platform", "tanggal", "analisis_aspek"}
	versionKeys   = []string{"platform", "tanggal_perubahan", "versi_baru"}
)

// Batch is a decoded payload: either a SentimentBatch or a VersionBatch.
type Batch interface {
	Kind() Kind
	Len() int
	isBatch()
}

type SentimentBatch struct {
	Records []SentimentRecord
}

func (SentimentBatch) Kind() Kind { return KindSentiment }
func (b SentimentBatch) Len() int { return len(b.Records) }
func (SentimentBatch) isBatch() {}

type VersionBatch struct {
	Records []VersionRecord
}

func (VersionBatch) Kind() Kind { return KindVersion }
func (b VersionBatch) Len() int { return len(b.Records) }
func (VersionBatch) isBatch() {}

// Classify names the shape of an already-decoded JSON value by looking only
// at the key set of its first element.
func Classify(v any) Kind {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return KindUnknown
	}
	first, ok := arr[0].(map[string]any)
	if !ok {
		return KindUnknown
	}
	switch {
	case hasKeys(first, sentimentKeys):
		return KindSentiment
	case hasKeys(first, versionKeys):
		return KindVersion
	}
	return KindUnknown
}

func hasKeys(obj map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			return false
		}
	}
	return true
}

// Decode classifies a raw payload and decodes every element into the typed
// records of its kind. Empty, unparseable and unrecognized payloads return a
// *ValidationError. A payload whose kind is known but whose elements do not
// fit the record type returns a *DecodeError.
func Decode(data []byte) (Batch, error) {
	if len(data) == 0 {
		return nil, &ValidationError{Err: ErrEmptyPayload}
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, &ValidationError{Err: err}
	}

	switch Classify(generic) {
	case KindSentiment:
		var records []SentimentRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, &DecodeError{Kind: KindSentiment, Err: fmt.Errorf("failed to decode sentiment records: %w", err)}
		}
		for i, r := range records {
			if err := validateDate("tanggal", r.Date); err != nil {
				return nil, &DecodeError{Kind: KindSentiment, Err: fmt.Errorf("record %d: %w", i, err)}
			}
		}
		return SentimentBatch{Records: records}, nil

	case KindVersion:
		var records []VersionRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, &DecodeError{Kind: KindVersion, Err: fmt.Errorf("failed to decode version records: %w", err)}
		}
		for i, r := range records {
			if err := validateDate("tanggal_perubahan", r.ReleaseDate); err != nil {
				return nil, &DecodeError{Kind: KindVersion, Err: fmt.Errorf("record %d: %w", i, err)}
			}
		}
		return VersionBatch{Records: records}, nil
	}

	return nil, &ValidationError{Err: ErrUnknownShape}
}
