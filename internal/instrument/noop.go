package instrument

// NoopRecorder discards all events. Used when the query log is disabled.
type NoopRecorder struct{}

func (NoopRecorder) Record(QueryEvent) {}
