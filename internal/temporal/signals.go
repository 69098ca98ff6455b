package temporal

// Signal and query names for external interaction with the citation poll
// workflow. These are defined here (not in the workflows package) so that the
// server layer can reference them without depending on the workflow
// implementation.
const (
	// SignalPollNow requests an immediate discovery poll instead of waiting
	// out the poll interval.
	SignalPollNow = "poll_now"

	// SignalStop requests a graceful stop after the current cycle.
	SignalStop = "stop"

	// QueryStatus retrieves the workflow's current cycle status.
	QueryStatus = "status"
)
