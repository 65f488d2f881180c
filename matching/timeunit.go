package matching

// InstallTimeTolerance is how far the claimed installation time may lag behind
// a candidate's creation time, in milliseconds. Candidates created up to this
// long after the claimed install time stay eligible, which absorbs clock skew
// between the device and the server.
const InstallTimeTolerance int64 = 30_000

// millisThreshold separates epoch seconds from epoch milliseconds by
// magnitude. Anything below ten billion cannot be a recent millisecond
// timestamp, so it is read as seconds. This intentionally mirrors the
// behavior SDK clients already depend on; it misreads sub-second millisecond
// values and stops working in the year 2286.
const millisThreshold int64 = 10_000_000_000

// NormalizeInstallTime converts an appInstallationTime of ambiguous unit to
// epoch milliseconds.
func NormalizeInstallTime(v int64) int64 {
	if v < millisThreshold {
		return v * 1000
	}
	return v
}

// WithinInstallWindow reports whether a candidate created at createdAtMs is
// time-eligible for a fingerprint claiming installTime (ambiguous unit).
func WithinInstallWindow(installTime, createdAtMs int64) bool {
	return NormalizeInstallTime(installTime)-createdAtMs > -InstallTimeTolerance
}
