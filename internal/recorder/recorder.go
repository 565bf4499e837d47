package recorder

import "time"

// AttemptRecord is one provider call inside a fetch.
type AttemptRecord struct {
	Provider string
	Try      int
	Outcome  string // "success", "empty" or "error"
	Kind     string // provider failure kind, empty on success
	Error    string
	Bars     int
	Elapsed  time.Duration
}

// FetchRecord is the audit entry for one fetch request.
type FetchRecord struct {
	ID         string // assigned by the recorder when empty
	At         time.Time
	Symbol     string
	Interval   string
	Limit      int
	AssetClass string
	Provider   string // provider that served the bars, empty on failure
	Bars       int
	ErrorKind  string // "invalid_request", "no_provider_available" or "unroutable_asset"
	Error      string
	Duration   time.Duration
	Attempts   []AttemptRecord
}

// Recorder persists the fetch history for diagnosis.
type Recorder interface {
	RecordFetch(rec *FetchRecord) error
	RecentFetches(symbol string, limit int) ([]FetchRecord, error)
	Close() error
}
