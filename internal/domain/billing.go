package domain

// ChargeStatus is the outcome of a single metering call.
type ChargeStatus string

const (
	ChargeOK        ChargeStatus = "OK"
	ChargeOut       ChargeStatus = "OUT"
	ChargeNoAccount ChargeStatus = "NO_ACCOUNT"
)
