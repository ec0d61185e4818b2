package models

// ExecutionResult is the normalized outcome of one call to the semantic layer.
// It is produced fresh for every call and never cached.
type ExecutionResult struct {
	Success      bool             `json:"success"`
	Rows         []map[string]any `json:"data,omitempty"`
	RowCount     int              `json:"count"`
	GeneratedSQL string           `json:"sql,omitempty"`
	ErrorMessage string           `json:"error,omitempty"`
}

// FailureClassificationKind names a recognized semantic-layer failure.
type FailureClassificationKind string

const (
	FailureMissingAggregate FailureClassificationKind = "missing_aggregate"
	FailureMissingJoinPath  FailureClassificationKind = "missing_join_path"
	FailureUnclassified     FailureClassificationKind = "unclassified"
)

// FailureClassification is the advisory reading of an engine error message.
type FailureClassification struct {
	Kind       FailureClassificationKind `json:"kind"`
	Entity     string                    `json:"entity,omitempty"`
	Field      string                    `json:"field,omitempty"`
	FromEntity string                    `json:"from_entity,omitempty"`
	ToEntity   string                    `json:"to_entity,omitempty"`
	RawMessage string                    `json:"raw_message"`
}

// RepairAttempt records the single LLM-assisted correction made for a request.
type RepairAttempt struct {
	Question      string   `json:"question"`
	FailingQuery  *Query   `json:"failing_query"`
	ErrorMessage  string   `json:"error_message"`
	ProposedQuery *Query   `json:"proposed_query,omitempty"`
	Explanation   string   `json:"explanation"`
	Fixed         bool     `json:"fixed"`
	Malformed     bool     `json:"malformed,omitempty"`    // model claimed a fix but the query was unusable
	CallFailed    bool     `json:"call_failed,omitempty"`  // the model could not be reached
	RemovedKeys   []string `json:"removed_keys,omitempty"` // keys stripped from the proposed query
}

// FailureKind is the terminal error category of a request.
type FailureKind string

const (
	FailureRejectedByGraph   FailureKind = "rejected_by_graph"
	FailureEngineExecution   FailureKind = "engine_execution_failure"
	FailureRepairUnavailable FailureKind = "repair_unavailable"
	FailureRepairFailed      FailureKind = "repair_failed"
	FailureRepairMalformed   FailureKind = "repair_malformed"
)

// RecoveryPath records which recovery, if any, was attempted for a request.
type RecoveryPath string

const (
	RecoveryNone        RecoveryPath = "none"        // query succeeded first time
	RecoveryUnavailable RecoveryPath = "unavailable" // no question or schema context supplied
	RecoveryAttempted   RecoveryPath = "repair_attempted"
	RecoveryAutoFixed   RecoveryPath = "auto_fixed"
)

// ExecutionState is a node of the execution state machine.
type ExecutionState string

const (
	StateStart           ExecutionState = "START"
	StatePreValidate     ExecutionState = "PRE_VALIDATE"
	StateExecute         ExecutionState = "EXECUTE"
	StateRejected        ExecutionState = "REJECTED"
	StateExecuteFailed   ExecutionState = "EXECUTE_FAILED"
	StateRepairAttempted ExecutionState = "REPAIR_ATTEMPTED"
	StateDoneSuccess     ExecutionState = "DONE_SUCCESS"
	StateDoneFailed      ExecutionState = "DONE_FAILED"
)

// ExecutionOutcome is the terminal, caller-facing result of one request.
// Every failure is represented here; none is returned as a Go error.
type ExecutionOutcome struct {
	Success      bool             `json:"success"`
	Rows         []map[string]any `json:"data,omitempty"`
	RowCount     int              `json:"count"`
	GeneratedSQL string           `json:"sql,omitempty"`
	Query        *Query           `json:"query,omitempty"`

	// Set when a repaired query produced the rows.
	AutoFixed     bool   `json:"auto_fixed,omitempty"`
	OriginalQuery *Query `json:"original_query,omitempty"`

	FixAttempted   bool   `json:"fix_attempted,omitempty"`
	FixExplanation string `json:"fix_explanation,omitempty"`

	Error          string                 `json:"error,omitempty"`
	FailureKind    FailureKind            `json:"error_type,omitempty"`
	Classification *FailureClassification `json:"classification,omitempty"`
	Suggestion     string                 `json:"suggestion,omitempty"`

	// Long join path warning from pre-validation.
	Warning  string   `json:"warning,omitempty"`
	JoinPath []string `json:"join_path,omitempty"`

	Recovery RecoveryPath     `json:"recovery"`
	States   []ExecutionState `json:"states"`
	Repair   *RepairAttempt   `json:"repair,omitempty"`
}

// FinalState returns the last state the request reached.
func (o *ExecutionOutcome) FinalState() ExecutionState {
	if len(o.States) == 0 {
		return StateStart
	}
	return o.States[len(o.States)-1]
}
