package subset

import (
	"time"

	"corpora/internal/corpus"
)

// Status represents the processing state of one document within a subset.
type Status string

const (
	StatusUnprocessed Status = "unprocessed"
	StatusInProcess   Status = "in_process"
	StatusProcessed   Status = "processed"
)

var allStatuses = []Status{StatusUnprocessed, StatusInProcess, StatusProcessed}

// ParseStatus validates a status string.
func ParseStatus(value string) (Status, bool) {
	for _, status := range allStatuses {
		if string(status) == value {
			return status, true
		}
	}
	return "", false
}

// Subset describes a defined subset.
type Subset struct {
	Name      string
	Table     string
	Mirror    bool
	CreatedAt time.Time
}

// Definition is the input to Define. A nil Keys slice selects every key of
// Table; mirror subsets always cover the whole table.
type Definition struct {
	Name   string
	Table  string
	Mirror bool
	Keys   []corpus.DocumentID
}

// Counts aggregates statuses for one subset. Failed counts in_process rows
// that carry a recorded error and is included in InProcess.
type Counts struct {
	Total       int
	Unprocessed int
	InProcess   int
	Processed   int
	Failed      int
}

// Owner identifies who holds a claim.
type Owner struct {
	Worker string
	Host   string
	PID    int
}

// Claim is the result of ClaimBatch.
type Claim struct {
	Subset string
	Token  string
	IDs    []corpus.DocumentID
}

// Empty reports whether nothing was claimed.
func (c Claim) Empty() bool {
	return len(c.IDs) == 0
}

// Entry is the stored status row of one document.
type Entry struct {
	ID            corpus.DocumentID
	Status        Status
	LastComponent string
	HasErrors     bool
	ErrorMessage  string
	ClaimedBy     string
	Host          string
	PID           int
	ClaimedAt     time.Time
	UpdatedAt     time.Time
}
