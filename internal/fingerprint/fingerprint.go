// Package fingerprint computes the stat-based cache key used by the
// manifest cache and the script host's compile cache.
package fingerprint

import "os"

// Fingerprint is the exact triple a cache entry is validated against:
// the source path, its byte length, and its modification time in
// nanoseconds since the Unix epoch. All three must match bit-exactly
// for a cache hit.
type Fingerprint struct {
	SourcePath string
	ByteLength int64
	ModTimeNs  int64
}

// Of stats path and returns its current fingerprint.
func Of(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{
		SourcePath: path,
		ByteLength: info.Size(),
		ModTimeNs:  info.ModTime().UnixNano(),
	}, nil
}

// Matches reports whether two fingerprints are exactly equal.
func (f Fingerprint) Matches(other Fingerprint) bool {
	return f == other
}
