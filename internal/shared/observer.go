package shared

// PostingObserver receives the outcome of document workflow actions.
type PostingObserver interface {
	ObservePosting(module, action string, err error)
}

// NopObserver discards observations.
type NopObserver struct{}

// ObservePosting implements PostingObserver.
func (NopObserver) ObservePosting(string, string, error) {}
