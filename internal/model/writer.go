package model

// Writer defines a generic interface for persisting flow records.
type Writer interface {
	// Append persists a single record. It returns an error if the record could not be stored;
	// retrying is left to the caller.
	Append(record *FlowRecord) error
}
