package feed

// LoadState is the stage of the controller's load cycle. Exactly one
// value holds at any time.
type LoadState string

const (
	// StateIdle means no page load is running.
	StateIdle LoadState = "idle"

	// StateLoadingFirst means the first page of a fresh cycle is loading.
	StateLoadingFirst LoadState = "loading_first"

	// StateLoadingNext means a follow-up page is loading.
	StateLoadingNext LoadState = "loading_next"
)

// Loading reports whether a load is in flight.
func (s LoadState) Loading() bool {
	return s == StateLoadingFirst || s == StateLoadingNext
}
