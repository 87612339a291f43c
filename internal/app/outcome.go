package app

// OutcomeKind classifies how a stage ended. The orchestrator branches on it
// and nothing else.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeWarning             // reported, pipeline continues
	OutcomeFatal               // pipeline stops, run fails
	OutcomeSkipped             // disabled by flags
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeWarning:
		return "warning"
	case OutcomeFatal:
		return "fatal"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome is the result of executing a stage. Err is set for warnings and
// fatal outcomes.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

func Success() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

func Warning(err error) Outcome {
	return Outcome{Kind: OutcomeWarning, Err: err}
}

func Fatal(err error) Outcome {
	return Outcome{Kind: OutcomeFatal, Err: err}
}

func Skipped() Outcome {
	return Outcome{Kind: OutcomeSkipped}
}
