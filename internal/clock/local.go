package clock

import (
	"fmt"
	"time"

	"github.com/lavamatic/pos/internal/kvcache"
)

// LocalSession is the purely offline clock record kept in scratch
// storage, keyed by an arbitrary identifier (employee id or name) and
// scoped to one session date.
type LocalSession struct {
	Identifier   string     `json:"identifier"`
	SessionDate  string     `json:"session_date"`
	ClockInTime  time.Time  `json:"clock_in_time"`
	ClockOutTime *time.Time `json:"clock_out_time,omitempty"`
	TotalHours   float64    `json:"total_hours,omitempty"`
}

// LocalClock is the offline-only clock path. It never touches the local
// database or the network; exactly one timesheet per identifier exists
// under each date-scoped key.
type LocalClock struct {
	cache *kvcache.Cache
	now   func() time.Time
}

// NewLocalClock creates a LocalClock over the given scratch storage.
func NewLocalClock(cache *kvcache.Cache) *LocalClock {
	return &LocalClock{cache: cache, now: time.Now}
}

// ClockIn records a clock-in for the identifier today. A second clock-in
// before the matching clock-out is rejected with ErrAlreadyClockedIn.
func (l *LocalClock) ClockIn(identifier string) (*LocalSession, error) {
	now := l.now()
	key := l.key(identifier, now)

	var existing LocalSession
	if l.cache.Get(key, &existing) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyClockedIn, identifier)
	}

	session := &LocalSession{
		Identifier:  identifier,
		SessionDate: now.Format("2006-01-02"),
		ClockInTime: now,
	}
	if err := l.cache.Put(key, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ClockOut closes today's session for the identifier. Clock-out without
// a prior clock-in is rejected with ErrNoActiveSession.
func (l *LocalClock) ClockOut(identifier string) (*LocalSession, error) {
	now := l.now()
	key := l.key(identifier, now)

	var session LocalSession
	if !l.cache.Get(key, &session) {
		return nil, fmt.Errorf("%w: %s", ErrNoActiveSession, identifier)
	}
	if session.ClockOutTime != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyClockedOut, identifier)
	}

	session.ClockOutTime = &now
	session.TotalHours = RoundHours(now.Sub(session.ClockInTime))
	if err := l.cache.Put(key, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (l *LocalClock) key(identifier string, now time.Time) string {
	return fmt.Sprintf("localclock:%s:%s", identifier, now.Format("2006-01-02"))
}
