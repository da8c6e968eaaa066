package models

import "time"

// RunStatDay holds batch counts for a single day.
type RunStatDay struct {
	Day       time.Time `json:"day" db:"day"`
	Batches   int       `json:"batches" db:"batches"`
	Succeeded int       `json:"succeeded" db:"succeeded"`
	Failed    int       `json:"failed" db:"failed"`
	Skipped   int       `json:"skipped" db:"skipped"`
	Errored   int       `json:"errored" db:"errored"`
}

// RunStat is the aggregated batch log over a period, plus per-day details.
type RunStat struct {
	Batches     int          `json:"batches" db:"batches"`
	Succeeded   int          `json:"succeeded" db:"succeeded"`
	Failed      int          `json:"failed" db:"failed"`
	Skipped     int          `json:"skipped" db:"skipped"`
	Errored     int          `json:"errored" db:"errored"`
	SuccessRate float64      `json:"success_rate" db:"success_rate"` // succeeded units / attempted units
	PerDay      []RunStatDay `json:"per_day" db:"per_day"`
}
