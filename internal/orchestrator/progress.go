package orchestrator

import "time"

// Counters accumulate the outcome of a run. They live only on the client.
type Counters struct {
	Total      int       `json:"total"`
	Success    int       `json:"success"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	BatchIndex int       `json:"batch_index"`
	StartedAt  time.Time `json:"started_at"`
}

func (c Counters) Processed() int {
	return c.Success + c.Failed + c.Skipped
}

// Snapshot is a point-in-time view of a run. Rate and ETA are only set when
// they can be computed without dividing by zero.
type Snapshot struct {
	State    State          `json:"state"`
	Counters Counters       `json:"counters"`
	Elapsed  time.Duration  `json:"elapsed"`
	Percent  float64        `json:"percent"`
	Rate     *float64       `json:"rate,omitempty"`
	ETA      *time.Duration `json:"eta,omitempty"`
	Artifact string         `json:"artifact,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func snapshot(state State, c Counters, now time.Time) Snapshot {
	s := Snapshot{State: state, Counters: c}
	if !c.StartedAt.IsZero() {
		s.Elapsed = now.Sub(c.StartedAt)
	}
	processed := c.Processed()
	if c.Total > 0 {
		s.Percent = float64(processed) / float64(c.Total) * 100
	}

	seconds := s.Elapsed.Seconds()
	if processed == 0 || seconds <= 0 {
		return s
	}
	rate := float64(processed) / seconds
	s.Rate = &rate

	if remaining := c.Total - processed; remaining > 0 {
		eta := time.Duration(float64(remaining) / rate * float64(time.Second))
		s.ETA = &eta
	}
	return s
}
