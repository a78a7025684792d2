package sequencer

import (
	"net"
	"strconv"
	"time"
)

// State is a node of the bootstrap state machine.
type State string

const (
	StateWaiting          State = "WAITING_FOR_DEPENDENCY"
	StateMigrating        State = "MIGRATING"
	StateCollectingAssets State = "COLLECTING_ASSETS"
	StateRunningHooks     State = "RUNNING_HOOKS"
	StateServing          State = "SERVING"
	StateFailed           State = "FAILED"
)

// Status values used across StepResult and Report.
const (
	StatusOK         = "ok"
	StatusError      = "error"
	StatusInProgress = "in-progress"
)

// Step names of the fixed sequence.
const (
	StepMigrate       = "migrate"
	StepCollectStatic = "collect-static"
	StepServe         = "serve"
)

// Endpoint identifies the dependency service to await.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// String returns the endpoint in host:port form.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Command is one external program invocation. Any non-zero exit aborts the
// sequence.
type Command struct {
	Name string   `json:"name"`
	Argv []string `json:"argv"`
	Dir  string   `json:"dir,omitempty"`
}

// Step is a setup command together with the state the sequencer is in while
// it runs.
type Step struct {
	State   State
	Command Command
}

// StepResult is the outcome of a single setup step.
type StepResult struct {
	Name       string   `json:"name"`
	Argv       []string `json:"argv"`
	Status     string   `json:"status"`
	ExitCode   int      `json:"exitCode"`
	DurationMs int64    `json:"durationMs"`
	Error      string   `json:"error,omitempty"`
}

// Report is the live view of a sequence run.
type Report struct {
	State         State        `json:"state"`
	Endpoint      Endpoint     `json:"endpoint"`
	ProbeAttempts int          `json:"probeAttempts"`
	LastProbeErr  string       `json:"lastProbeError,omitempty"`
	Steps         []StepResult `json:"steps"`
	Serve         []string     `json:"serve,omitempty"`
	StartedAt     time.Time    `json:"startedAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}
