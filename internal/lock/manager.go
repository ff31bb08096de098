// Package lock implements a distributed, TTL-based mutual-exclusion
// primitive for seats, backed by a shared Redis store.  Each lock is keyed
// by (event, seat) and owned by an opaque session token.  A per-session set
// indexes the seats a session currently holds so bulk release and cleanup
// stay cheap.  The package knows nothing about bookings; the durable
// seat-status table remains the authority at commit time.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tixgate/event-seat-reservation/internal/config"
)

// ErrStoreUnavailable wraps every failure reaching the shared lock store.
// Callers on the booking path must treat it as "lock not acquired"; the
// layer fails closed, because a false "available" would allow double
// booking.
var ErrStoreUnavailable = errors.New("lock store unavailable")

// acquireScript implements set-if-absent-or-refresh as one atomic step.
// When the key is free it claims it for the session; when the session
// already owns it the TTLs are refreshed (idempotent re-acquire); when
// another session owns it nothing changes.  The session's seat index is
// maintained in the same step so it can never disagree with the lock key.
var acquireScript = redis.NewScript(`
    local owner = redis.call('GET', KEYS[1])
    if owner == false then
        redis.call('SET', KEYS[1], ARGV[1], 'EX', tonumber(ARGV[3]))
        redis.call('SADD', KEYS[2], ARGV[2])
        redis.call('EXPIRE', KEYS[2], tonumber(ARGV[4]))
        return 1
    end
    if owner == ARGV[1] then
        redis.call('EXPIRE', KEYS[1], tonumber(ARGV[3]))
        redis.call('SADD', KEYS[2], ARGV[2])
        redis.call('EXPIRE', KEYS[2], tonumber(ARGV[4]))
        return 1
    end
    return 0
`)

// releaseScript is an atomic compare-owner-then-delete.  A separate
// get-then-delete round trip would race: the lock could expire and be
// re-acquired by another session between the two calls, and the delete
// would then destroy someone else's lock.
var releaseScript = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        redis.call('DEL', KEYS[1])
        redis.call('SREM', KEYS[2], ARGV[2])
        return 1
    end
    return 0
`)

// extendScript refreshes the TTL of a lock only when the caller owns it.
// Unlike acquireScript it never claims a free key, so extending a batch
// silently skips seats the session has lost.
var extendScript = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
        redis.call('EXPIRE', KEYS[2], tonumber(ARGV[3]))
        return 1
    end
    return 0
`)

// BatchResult reports the outcome of an all-or-nothing batch acquisition:
// the session token used, the seats locked (empty unless Success), the
// seats that could not be locked, and a short human-readable reason when
// the batch was rejected outright.
type BatchResult struct {
	Success bool
	Session string
	Locked  []uint64
	Failed  []uint64
	Reason  string
}

// Manager provides the distributed seat lock operations.  All methods are
// safe for concurrent use; every mutation goes through a server-side script
// so there is no read-modify-write window on the caller side.
type Manager struct {
	rdb *redis.Client
	cfg config.LockConfig
}

// NewManager constructs a Manager over the given Redis client.  The client
// may be nil when the store was unreachable at startup; in that case every
// operation fails closed with ErrStoreUnavailable.
func NewManager(rdb *redis.Client, cfg config.LockConfig) *Manager {
	return &Manager{rdb: rdb, cfg: cfg}
}

// lockKey builds the key holding the owning session for one seat.
func (m *Manager) lockKey(eventID, seatID uint64) string {
	return fmt.Sprintf("%s:event:%d:seat:%d", m.cfg.Prefix, eventID, seatID)
}

// sessionKey builds the key of the set indexing the seats a session holds
// within one event.
func (m *Manager) sessionKey(eventID uint64, session string) string {
	return fmt.Sprintf("%s:event:%d:session:%s", m.cfg.Prefix, eventID, session)
}

// ttlSeconds resolves the effective lock TTL in whole seconds, falling
// back to the configured default when the caller passes zero.
func (m *Manager) ttlSeconds(ttl time.Duration) int64 {
	if ttl <= 0 {
		ttl = m.cfg.TTL
	}
	secs := int64(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Acquire attempts to lock one seat for a session.  It succeeds when the
// seat is free or already held by the same session (refreshing the TTL on
// both the lock and the session index).  It returns false with no side
// effects when another session holds the seat, and false with a wrapped
// ErrStoreUnavailable when the store cannot be reached.
func (m *Manager) Acquire(ctx context.Context, eventID, seatID uint64, session string, ttl time.Duration) (bool, error) {
	if m.rdb == nil {
		return false, ErrStoreUnavailable
	}
	lockTTL := m.ttlSeconds(ttl)
	sessTTL := lockTTL + int64(m.cfg.SessionTTLBuffer/time.Second)
	keys := []string{m.lockKey(eventID, seatID), m.sessionKey(eventID, session)}
	res, err := acquireScript.Run(ctx, m.rdb, keys,
		session, strconv.FormatUint(seatID, 10), lockTTL, sessTTL).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return res == 1, nil
}

// AcquireBatch locks a set of seats for a session, all or nothing.  Seat
// ids are deduplicated and sorted ascending before acquisition so that two
// overlapping batches always contend in the same order and cannot
// circular-wait.  The per-session cap is enforced over the union of seats
// already held and seats requested, before any lock is attempted.  On the
// first seat that cannot be locked, every seat newly acquired by this call
// is released again and the failing seat is reported.
func (m *Manager) AcquireBatch(ctx context.Context, eventID uint64, seats []uint64, session string, ttl time.Duration) BatchResult {
	out := BatchResult{Session: session}
	if m.rdb == nil {
		out.Failed = append(out.Failed, seats...)
		out.Reason = "lock service unavailable"
		return out
	}
	ordered := dedupeSorted(seats)
	if len(ordered) == 0 {
		out.Reason = "no seats requested"
		return out
	}

	held, err := m.heldSeats(ctx, eventID, session)
	if err != nil {
		out.Failed = ordered
		out.Reason = "lock service unavailable"
		return out
	}
	total := len(held)
	for _, id := range ordered {
		if _, ok := held[id]; !ok {
			total++
		}
	}
	if total > m.cfg.MaxSeatsPerSession {
		out.Failed = ordered
		out.Reason = fmt.Sprintf("session seat limit exceeded (max %d)", m.cfg.MaxSeatsPerSession)
		return out
	}

	acquired := make([]uint64, 0, len(ordered))
	for _, id := range ordered {
		ok, err := m.Acquire(ctx, eventID, id, session, ttl)
		if err != nil || !ok {
			// Roll back seats newly locked by this call.  Seats the session
			// held before the call keep their (refreshed) locks.
			for _, prev := range acquired {
				if _, already := held[prev]; !already {
					_, _ = m.Release(ctx, eventID, prev, session)
				}
			}
			out.Failed = []uint64{id}
			if err != nil {
				out.Reason = "lock service unavailable"
			}
			return out
		}
		acquired = append(acquired, id)
	}
	out.Success = true
	out.Locked = acquired
	return out
}

// Release removes the lock on one seat if, and only if, it is currently
// owned by the given session.  The check and the delete run as a single
// server-side step together with the removal from the session's seat index.
// It returns false when the seat is unlocked or owned by someone else.
func (m *Manager) Release(ctx context.Context, eventID, seatID uint64, session string) (bool, error) {
	if m.rdb == nil {
		return false, ErrStoreUnavailable
	}
	keys := []string{m.lockKey(eventID, seatID), m.sessionKey(eventID, session)}
	res, err := releaseScript.Run(ctx, m.rdb, keys,
		session, strconv.FormatUint(seatID, 10)).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return res == 1, nil
}

// ReleaseBatch releases a set of seats for a session, tolerating partial
// failure.  It returns how many locks were released and how many were not
// (unowned, expired or unreachable); it never raises.
func (m *Manager) ReleaseBatch(ctx context.Context, eventID uint64, seats []uint64, session string) (released, failed int) {
	for _, id := range dedupeSorted(seats) {
		ok, err := m.Release(ctx, eventID, id, session)
		if err != nil || !ok {
			failed++
			continue
		}
		released++
	}
	return released, failed
}

// ReleaseAllForSession releases every seat the session holds within an
// event, then drops the session's seat index.  Like ReleaseBatch it is
// tolerant of partial failure and never raises.
func (m *Manager) ReleaseAllForSession(ctx context.Context, eventID uint64, session string) (released, failed int) {
	if m.rdb == nil {
		return 0, 0
	}
	held, err := m.heldSeats(ctx, eventID, session)
	if err != nil {
		return 0, 0
	}
	seats := make([]uint64, 0, len(held))
	for id := range held {
		seats = append(seats, id)
	}
	released, failed = m.ReleaseBatch(ctx, eventID, seats, session)
	_ = m.rdb.Del(ctx, m.sessionKey(eventID, session)).Err()
	return released, failed
}

// IsLocked reports whether any session currently holds the seat.  On store
// failure it returns an error; callers on the booking path must treat that
// as "not available".
func (m *Manager) IsLocked(ctx context.Context, eventID, seatID uint64) (bool, error) {
	if m.rdb == nil {
		return false, ErrStoreUnavailable
	}
	n, err := m.rdb.Exists(ctx, m.lockKey(eventID, seatID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// GetOwner returns the session token holding the seat, or the empty string
// when the seat is unlocked.
func (m *Manager) GetOwner(ctx context.Context, eventID, seatID uint64) (string, error) {
	if m.rdb == nil {
		return "", ErrStoreUnavailable
	}
	owner, err := m.rdb.Get(ctx, m.lockKey(eventID, seatID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return owner, nil
}

// ExtendBatch refreshes the TTL of every listed seat currently owned by
// the session.  Seats held by other sessions, or not held at all, are
// silently skipped.  It returns the number of locks whose TTL was
// refreshed.
func (m *Manager) ExtendBatch(ctx context.Context, eventID uint64, seats []uint64, session string, ttl time.Duration) int {
	if m.rdb == nil {
		return 0
	}
	lockTTL := m.ttlSeconds(ttl)
	sessTTL := lockTTL + int64(m.cfg.SessionTTLBuffer/time.Second)
	sessKey := m.sessionKey(eventID, session)
	extended := 0
	for _, id := range dedupeSorted(seats) {
		keys := []string{m.lockKey(eventID, id), sessKey}
		res, err := extendScript.Run(ctx, m.rdb, keys, session, lockTTL, sessTTL).Int64()
		if err == nil && res == 1 {
			extended++
		}
	}
	return extended
}

// ForceRelease removes the lock on a seat regardless of ownership.  It is
// an operator override and must never be called on the booking hot path;
// unlike Release it may propagate raw store errors.  A stale entry left in
// the former owner's seat index simply ages out with the index TTL.
func (m *Manager) ForceRelease(ctx context.Context, eventID, seatID uint64) error {
	if m.rdb == nil {
		return ErrStoreUnavailable
	}
	return m.rdb.Del(ctx, m.lockKey(eventID, seatID)).Err()
}

// ClearAllForEvent removes every seat lock and session index for an event.
// It is an operator override for stuck state (for example after a client
// bug leaked locks) and returns the number of seat locks removed.
func (m *Manager) ClearAllForEvent(ctx context.Context, eventID uint64) (int, error) {
	if m.rdb == nil {
		return 0, ErrStoreUnavailable
	}
	cleared, err := m.deleteByPattern(ctx, fmt.Sprintf("%s:event:%d:seat:*", m.cfg.Prefix, eventID))
	if err != nil {
		return cleared, err
	}
	if _, err := m.deleteByPattern(ctx, fmt.Sprintf("%s:event:%d:session:*", m.cfg.Prefix, eventID)); err != nil {
		return cleared, err
	}
	return cleared, nil
}

// LockedSeats returns a snapshot of the seats currently locked within an
// event, mapped to the owning session token.  The snapshot is advisory:
// locks may expire or be released the moment after it is taken.
func (m *Manager) LockedSeats(ctx context.Context, eventID uint64) (map[uint64]string, error) {
	if m.rdb == nil {
		return nil, ErrStoreUnavailable
	}
	prefix := fmt.Sprintf("%s:event:%d:seat:", m.cfg.Prefix, eventID)
	out := make(map[uint64]string)
	iter := m.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		seatID, err := strconv.ParseUint(strings.TrimPrefix(key, prefix), 10, 64)
		if err != nil {
			continue
		}
		owner, err := m.rdb.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue // expired between scan and read
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		out[seatID] = owner
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return out, nil
}

// heldSeats loads the session's seat index for an event into a set.
func (m *Manager) heldSeats(ctx context.Context, eventID uint64, session string) (map[uint64]struct{}, error) {
	members, err := m.rdb.SMembers(ctx, m.sessionKey(eventID, session)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	held := make(map[uint64]struct{}, len(members))
	for _, s := range members {
		if id, err := strconv.ParseUint(s, 10, 64); err == nil {
			held[id] = struct{}{}
		}
	}
	return held, nil
}

// deleteByPattern scans for keys matching the pattern and deletes them,
// returning how many were removed.  SCAN keeps the operation incremental;
// the admin path has no latency budget worth blocking the store for.
func (m *Manager) deleteByPattern(ctx context.Context, pattern string) (int, error) {
	deleted := 0
	iter := m.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := m.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return deleted, nil
}

// dedupeSorted returns the unique seat ids in ascending order, dropping
// zero values.
func dedupeSorted(seats []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(seats))
	out := make([]uint64, 0, len(seats))
	for _, id := range seats {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
