package schemas

import "time"

// -- Extraction Models --
// These types carry scraped data from a scenario run to the store. A run
// produces one batch; every extract step appends a record to it.

// ExtractionRecord is one field captured during a run: where it was found,
// what it was called, and the value.
type ExtractionRecord struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	PageURL   string    `json:"page_url"`
	Field     string    `json:"field"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// ExtractionBatch groups the records of a single scenario run.
type ExtractionBatch struct {
	RunID      string             `json:"run_id"`
	Scenario   string             `json:"scenario"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Records    []ExtractionRecord `json:"records"`
}

// Append adds a record, stamping it with the batch's run id.
func (b *ExtractionBatch) Append(rec ExtractionRecord) {
	rec.RunID = b.RunID
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	b.Records = append(b.Records, rec)
}
