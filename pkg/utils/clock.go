package utils

import (
	"sync"
	"time"

	"github.com/beevik/ntp"
)

// The Pi has no RTC, so event timestamps are corrected with an NTP offset
// measured at startup.
var (
	clockLock   sync.RWMutex
	clockOffset time.Duration

	queryNTP = ntp.QueryWithOptions
)

// SyncClock queries server once and stores the clock offset. On failure the
// local clock is used unchanged.
func SyncClock(server string, timeout time.Duration) (time.Duration, error) {
	resp, err := queryNTP(server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return 0, err
	}
	if err = resp.Validate(); err != nil {
		return 0, err
	}

	clockLock.Lock()
	clockOffset = resp.ClockOffset
	clockLock.Unlock()
	logger.Infof("clock: offset %s from %s", resp.ClockOffset, server)

	return resp.ClockOffset, nil
}

// Now returns the local time adjusted by the last measured NTP offset.
func Now() time.Time {
	clockLock.RLock()
	defer clockLock.RUnlock()
	return time.Now().Add(clockOffset)
}
