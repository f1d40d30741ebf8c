package database

import "errors"

var (
	ErrItineraryNotFound = errors.New("itinerary not found")
	ErrCommentNotFound   = errors.New("comment not found")

	// ErrConcurrentModification is returned when the stored version no longer
	// matches the version the caller read.
	ErrConcurrentModification = errors.New("itinerary was modified concurrently")
)
