package agent

type outcome int

const (
	outcomeRows outcome = iota
	outcomeEmpty
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeRows:
		return "rows"
	case outcomeEmpty:
		return "empty"
	default:
		return "failed"
	}
}

type step int

const (
	stepAccept step = iota
	stepRetry
	stepFail
)

// decide maps one attempt's outcome to the loop's next step. attempt is
// zero-based. An empty result is retried only while attempts remain; on the
// final attempt it is accepted as is.
func decide(o outcome, attempt, maxAttempts int, retryOnZeroRows bool) step {
	last := attempt >= maxAttempts-1
	switch o {
	case outcomeRows:
		return stepAccept
	case outcomeEmpty:
		if retryOnZeroRows && !last {
			return stepRetry
		}
		return stepAccept
	default:
		if last {
			return stepFail
		}
		return stepRetry
	}
}
