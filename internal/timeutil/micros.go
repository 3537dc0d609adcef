package timeutil

// NowMicro returns the clock's current time as a monotonic
// microsecond timestamp suitable for Scan.TimestampUS and
// SafetyVerdict.TimestampUS fields.
func NowMicro(c Clock) uint64 {
	return uint64(c.Now().UnixMicro())
}
