package timeevent

import (
	"math"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// UnixNanos is a point in simulated time expressed as nanoseconds since the UNIX epoch.
type UnixNanos uint64

// MaxUnixNanos is the latest representable time.
const MaxUnixNanos = UnixNanos(math.MaxUint64)

// FromTime converts a wall time into UnixNanos. Times before the epoch clamp to zero.
func FromTime(t time.Time) UnixNanos {
	ns := t.UnixNano()
	if ns < 0 {
		return 0
	}
	return UnixNanos(ns)
}

// Time returns the timestamp as a UTC time.Time.
func (n UnixNanos) Time() time.Time {
	return time.Unix(0, int64(n)).UTC()
}

// Micros truncates the timestamp to microseconds.
func (n UnixNanos) Micros() uint64 { return uint64(n) / uint64(time.Microsecond) }

// Millis truncates the timestamp to milliseconds.
func (n UnixNanos) Millis() uint64 { return uint64(n) / uint64(time.Millisecond) }

// Seconds returns the exact timestamp in seconds.
func (n UnixNanos) Seconds() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(n)), -9)
}

// Add shifts the timestamp by d, saturating at zero and MaxUnixNanos.
func (n UnixNanos) Add(d time.Duration) UnixNanos {
	sum, _ := n.CheckedAdd(d)
	return sum
}

// CheckedAdd is Add that also reports whether n+d was representable.
func (n UnixNanos) CheckedAdd(d time.Duration) (UnixNanos, bool) {
	if d < 0 {
		dec := UnixNanos(-d)
		if dec > n {
			return 0, false
		}
		return n - dec, true
	}
	inc := UnixNanos(d)
	if inc > MaxUnixNanos-n {
		return MaxUnixNanos, false
	}
	return n + inc, true
}

// Sub returns n-other as a duration.
func (n UnixNanos) Sub(other UnixNanos) time.Duration {
	return time.Duration(int64(n) - int64(other))
}

// String renders the timestamp as RFC 3339 with nanosecond precision.
func (n UnixNanos) String() string {
	return n.Time().Format(time.RFC3339Nano)
}
