package services

import "errors"

// Engine error taxonomy. Everything user-correctable gets a chat reply;
// authorization misses stay silent; transport failures are logged and
// never take a tenant worker down.
var (
	// ErrOutOfRange marks a column selection index outside 1..len(columns).
	ErrOutOfRange = errors.New("selection index out of range")
	// ErrNoPendingIngestion is returned when a selection arrives with no
	// ingestion waiting for it.
	ErrNoPendingIngestion = errors.New("no pending ingestion")
)
