package database

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a row disappeared inside a transaction
	ErrNotFound = errors.New("row not found")

	// ErrSlotFull is returned when a capacity-modelled slot cannot take the party
	ErrSlotFull = errors.New("slot is full")

	// ErrStaleState is returned when a compare-and-set update matched no row
	ErrStaleState = errors.New("row changed concurrently")

	// ErrAlreadyPaid is returned when a booking already carries a verified payment
	ErrAlreadyPaid = errors.New("booking already paid")
)

const uniqueViolation = pq.ErrorCode("23505")

// isUniqueViolation reports whether err is a PostgreSQL unique constraint error
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
