package usecase

import "time"

const (
	// DefaultTransactionTimeout bounds database transactions recording
	// terminal results.
	DefaultTransactionTimeout = 10 * time.Second

	// DefaultAuthorityTimeout bounds a single ledger authority commit call.
	DefaultAuthorityTimeout = 10 * time.Second

	// DefaultInFlightWait bounds how long a losing caller waits for the
	// concurrent winner of the same intent to reach a terminal result.
	DefaultInFlightWait = 5 * time.Second

	// DefaultReservationTTL is the bounded hold time for batch account
	// reservations.
	DefaultReservationTTL = 30 * time.Second

	// ResultCacheTTL is how long terminal results stay in the read cache.
	// The durable record in the finality store never expires.
	ResultCacheTTL = 24 * time.Hour
)
