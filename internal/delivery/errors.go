package delivery

import (
	"fmt"

	"github.com/ashureev/incident-intake/internal/domain"
)

// StorageError means the report could not be persisted. No delivery is
// attempted after one.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("persist incident: %v", e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// DeliveryError means the single forwarding attempt failed. The persisted
// incident is kept.
type DeliveryError struct {
	Channel domain.Channel
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver incident via %s: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
