package appointments

import "errors"

var (
	// ErrMissingCustomer is returned when the customer name is missing
	ErrMissingCustomer = errors.New("customer name is required")

	// ErrMissingService is returned when the service is missing
	ErrMissingService = errors.New("service is required")

	// ErrMissingStart is returned when the start time is missing
	ErrMissingStart = errors.New("start time is required")

	// ErrUnknownStatus is returned for a status outside the lifecycle
	ErrUnknownStatus = errors.New("unknown appointment status")

	// ErrAppointmentNotFound is returned when an appointment is not found
	ErrAppointmentNotFound = errors.New("appointment not found")
)
