package domain

// BookingEvent names a committed change announced to notification collaborators.
type BookingEvent string

const (
	EventBookingCreated   BookingEvent = "BookingCreated"
	EventBookingMoved     BookingEvent = "BookingMoved"
	EventBookingCancelled BookingEvent = "BookingCancelled"
)

// BillingOutcome is the charge or refund recorded against an appointment. Amounts
// are computed by the billing collaborator.
type BillingOutcome string

const (
	BillingCharge BillingOutcome = "charge"
	BillingRefund BillingOutcome = "refund"
)
