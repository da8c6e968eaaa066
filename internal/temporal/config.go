package temporal

import (
	"time"

	"github.com/stanstork/bulkgen/internal/models"
)

// TaskQueueName is the default task queue for server-side generation runs.
const TaskQueueName = "BULKGEN_TASK_QUEUE"

// RunWorkflowIDPrefix is the prefix used for generation run workflow IDs.
const RunWorkflowIDPrefix = "bulkgen-run-"

// DefaultActivityTimeout bounds one batch activity.
const DefaultActivityTimeout = 2 * time.Minute

// HeartbeatTimeout is how long a batch activity may go without a heartbeat.
const HeartbeatTimeout = 30 * time.Second

// HeartbeatInterval is how often a running batch activity heartbeats.
const HeartbeatInterval = 10 * time.Second

// BatchPause is the durable pause between two batches of a run.
const BatchPause = 500 * time.Millisecond

const (
	StopSignal    = "stop"
	ProgressQuery = "progress"
)

// RunParams defines the input of a generation run workflow.
type RunParams struct {
	RunID     string            `json:"run_id"`
	Kind      models.RecordKind `json:"kind"`
	Total     int               `json:"total"`
	BatchSize int               `json:"batch_size"`
	PriceMin  float64           `json:"price_min,omitempty"`
	PriceMax  float64           `json:"price_max,omitempty"`
}

// RunState names where a run is in its lifecycle.
type RunState string

const (
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunStopped   RunState = "stopped"
	RunErrored   RunState = "errored"
)

// RunProgress is what the progress query and the workflow result report.
type RunProgress struct {
	RunID   string   `json:"run_id"`
	State   RunState `json:"state"`
	Total   int      `json:"total"`
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Batches int      `json:"batches"`
	Error   string   `json:"error,omitempty"`
}

// BatchOutput holds the counters of one batch activity.
type BatchOutput struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
