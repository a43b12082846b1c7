package redis

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sovrhq/clearing/internal/domain"
	"github.com/sovrhq/clearing/internal/usecase"
)

const reservationPrefix = "reservation:account:"

// releaseScript deletes a reservation key only while the caller still owns
// it. Without the ownership check, a batch releasing after its TTL expired
// could free an account another batch has since reserved.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// ReservationManager implements usecase.ReservationManager with one redis
// key per account. Reservations are an admission gate for atomic batches,
// never a source of truth: the TTL bounds how long a crashed holder can
// block anyone else.
type ReservationManager struct {
	client *redis.Client
}

// NewReservationManager creates a new ReservationManager.
func NewReservationManager(client *redis.Client) *ReservationManager {
	return &ReservationManager{client: client}
}

// Acquire reserves every account or none. Accounts are taken in sorted
// order, and on the first conflict everything already taken is handed back
// before the conflict is reported.
func (m *ReservationManager) Acquire(ctx context.Context, accountIDs []string, ttl time.Duration) (*usecase.Reservation, error) {
	ids := dedupeSorted(accountIDs)
	token := uuid.NewString()

	acquired := make([]string, 0, len(ids))

	for _, id := range ids {
		ok, err := m.client.SetNX(ctx, reservationPrefix+id, token, ttl).Result()
		if err != nil {
			m.releaseKeys(ctx, acquired, token)

			return nil, err
		}

		if !ok {
			m.releaseKeys(ctx, acquired, token)

			return nil, domain.ErrReservationConflict
		}

		acquired = append(acquired, id)
	}

	return &usecase.Reservation{Token: token, AccountIDs: ids}, nil
}

// Release hands back a reservation. Keys that expired or were taken over by
// another holder are left alone.
func (m *ReservationManager) Release(ctx context.Context, reservation *usecase.Reservation) error {
	if reservation == nil {
		return nil
	}

	return m.releaseKeys(ctx, reservation.AccountIDs, reservation.Token)
}

func (m *ReservationManager) releaseKeys(ctx context.Context, accountIDs []string, token string) error {
	var firstErr error

	for _, id := range accountIDs {
		if err := releaseScript.Run(ctx, m.client, []string{reservationPrefix + id}, token).Err(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func dedupeSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))

	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		out = append(out, id)
	}

	sort.Strings(out)

	return out
}
