package slurm

// Status is the closed set of job states reported by the cluster's
// accounting CLI. Raw sacct strings are converted to Status values here
// and nowhere else; anything unrecognised becomes StatusUnknown.
type Status string

const (
	StatusBootFail    Status = "BOOT_FAIL"
	StatusCancelled   Status = "CANCELLED"
	StatusCompleted   Status = "COMPLETED"
	StatusConfiguring Status = "CONFIGURING"
	StatusCompleting  Status = "COMPLETING"
	StatusDeadline    Status = "DEADLINE"
	StatusFailed      Status = "FAILED"
	StatusNodeFail    Status = "NODE_FAIL"
	StatusOutOfMemory Status = "OUT_OF_MEMORY"
	StatusPending     Status = "PENDING"
	StatusPreempted   Status = "PREEMPTED"
	StatusRunning     Status = "RUNNING"
	StatusResvDelHold Status = "RESV_DEL_HOLD"
	StatusRequeueFed  Status = "REQUEUE_FED"
	StatusRequeueHold Status = "REQUEUE_HOLD"
	StatusRequeued    Status = "REQUEUED"
	StatusResizing    Status = "RESIZING"
	StatusRevoked     Status = "REVOKED"
	StatusSignaling   Status = "SIGNALING"
	StatusSpecialExit Status = "SPECIAL_EXIT"
	StatusStageOut    Status = "STAGE_OUT"
	StatusStopped     Status = "STOPPED"
	StatusSuspended   Status = "SUSPENDED"
	StatusTimeout     Status = "TIMEOUT"
	StatusUnknown     Status = "UNKNOWN"
)

var known = map[Status]struct{}{
	StatusBootFail: {}, StatusCancelled: {}, StatusCompleted: {},
	StatusConfiguring: {}, StatusCompleting: {}, StatusDeadline: {},
	StatusFailed: {}, StatusNodeFail: {}, StatusOutOfMemory: {},
	StatusPending: {}, StatusPreempted: {}, StatusRunning: {},
	StatusResvDelHold: {}, StatusRequeueFed: {}, StatusRequeueHold: {},
	StatusRequeued: {}, StatusResizing: {}, StatusRevoked: {},
	StatusSignaling: {}, StatusSpecialExit: {}, StatusStageOut: {},
	StatusStopped: {}, StatusSuspended: {}, StatusTimeout: {},
	StatusUnknown: {},
}

// active states: the job is still owned by the cluster and needs no action.
var active = map[Status]struct{}{
	StatusPending: {}, StatusRunning: {}, StatusConfiguring: {},
	StatusCompleting: {}, StatusResizing: {},
}

// retryable states: the job was interrupted without fault of its own and
// may be resubmitted with unchanged resources.
var retryable = map[Status]struct{}{
	StatusBootFail: {}, StatusNodeFail: {}, StatusRequeued: {},
	StatusRequeueFed: {}, StatusStopped: {}, StatusSuspended: {},
}

// ParseStatus maps a raw sacct state token onto a Status. Unrecognised
// tokens map to StatusUnknown, never an error.
func ParseStatus(s string) Status {
	if _, ok := known[Status(s)]; ok {
		return Status(s)
	}
	return StatusUnknown
}

func (s Status) String() string { return string(s) }

// IsActive reports whether the job is still pending or running on the
// cluster.
func (s Status) IsActive() bool {
	_, ok := active[s]
	return ok
}

// IsRetryable reports whether the job ended in a state that warrants
// resubmission with unchanged resources.
func (s Status) IsRetryable() bool {
	_, ok := retryable[s]
	return ok
}
