package archive

import (
	"math"
	"time"
)

const (
	burstPauseSpread = 10 * time.Second
	longPauseSpread  = 60 * time.Second

	minReadingDelay  = 100 * time.Millisecond
	maxReadingDelay  = 5 * time.Second
	readingCharsPerS = 16
)

// Admission is the quota decision taken before each batch.
type Admission int

const (
	Admit Admission = iota
	WaitUntilHourReset
	PauseUntilDayReset
)

func (a Admission) String() string {
	switch a {
	case Admit:
		return "admit"
	case WaitUntilHourReset:
		return "wait_until_hour_reset"
	case PauseUntilDayReset:
		return "pause_until_day_reset"
	default:
		return "unknown"
	}
}

// NextDelay picks the wait before the next batch. The second return value
// reports whether a burst pause was taken, in which case the caller resets its
// consecutive-batch counter. Pauses are jittered but never shorter than the
// configured pause duration.
func NextDelay(cfg JobConfig, consecutiveBatches, batchesCompleted int, rng Rand) (time.Duration, bool) {
	delay := uniform(rng, cfg.MinDelay, cfg.MaxDelay)
	var floor time.Duration
	burst := false

	switch {
	case cfg.BatchesBeforeBurstPause > 0 && consecutiveBatches >= cfg.BatchesBeforeBurstPause:
		delay = cfg.BurstPause + uniform(rng, 0, burstPauseSpread)
		floor = cfg.BurstPause
		burst = true
	case cfg.BatchesBeforeLongPause > 0 && batchesCompleted > 0 && batchesCompleted%cfg.BatchesBeforeLongPause == 0:
		delay = cfg.LongPause + uniform(rng, 0, longPauseSpread)
		floor = cfg.LongPause
	}

	span := delay / 5
	delay += uniform(rng, -span, span)

	if delay < floor {
		delay = floor
	}
	if delay < MinimumDelay {
		delay = MinimumDelay
	}
	return delay, burst
}

// BatchSize picks how many messages the next batch may archive.
func BatchSize(cfg JobConfig, rng Rand) int {
	lo, hi := cfg.MinBatchSize, cfg.MaxBatchSize
	if hi < lo {
		hi = lo
	}
	size := lo + rng.IntN(hi-lo+1)

	if rng.IntN(100) < 20 {
		size = lo + rng.IntN(5)
	} else if rng.IntN(100) < 10 {
		size = hi
	}

	if size > hi {
		size = hi
	}
	if size < 1 {
		size = 1
	}
	return size
}

// WithinActiveHours reports whether now falls into the configured window.
// A window whose start is after its end wraps past midnight.
func WithinActiveHours(cfg JobConfig, now time.Time) bool {
	h := now.Hour()
	start, end := cfg.ActiveHourStart, cfg.ActiveHourEnd
	switch {
	case start < end:
		return h >= start && h < end
	case start > end:
		return h >= start || h < end
	default:
		return false
	}
}

// ReadingDelay approximates the time a person needs to read a message.
func ReadingDelay(messageLength int) time.Duration {
	if messageLength <= 0 {
		return 0
	}
	d := time.Duration(messageLength/readingCharsPerS) * time.Second
	if d < minReadingDelay {
		return minReadingDelay
	}
	if d > maxReadingDelay {
		return maxReadingDelay
	}
	return d
}

// AdmitBatch checks the hourly and daily quotas.
func AdmitBatch(status JobStatus, cfg JobConfig) Admission {
	if cfg.MaxMessagesPerHour > 0 && status.MessagesThisHour >= cfg.MaxMessagesPerHour {
		return WaitUntilHourReset
	}
	if cfg.MaxMessagesPerDay > 0 && status.MessagesToday >= cfg.MaxMessagesPerDay {
		return PauseUntilDayReset
	}
	return Admit
}

// QuotaHeadroom is the number of messages the quotas still allow.
func QuotaHeadroom(status JobStatus, cfg JobConfig) int {
	room := math.MaxInt
	if cfg.MaxMessagesPerHour > 0 {
		room = min(room, cfg.MaxMessagesPerHour-status.MessagesThisHour)
	}
	if cfg.MaxMessagesPerDay > 0 {
		room = min(room, cfg.MaxMessagesPerDay-status.MessagesToday)
	}
	return max(room, 0)
}

// UntilNextHour returns the time left until the next top of the hour in now's location.
func UntilNextHour(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour()+1, 0, 0, 0, now.Location())
	return next.Sub(now)
}

// uniform draws from [lo, hi].
func uniform(rng Rand, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rng.Int64N(int64(hi-lo)+1))
}
