//go:build !(linux || darwin || freebsd)

package admission

import "errors"

// FreeBytes implements Probe.
func (StatfsProbe) FreeBytes(path string) (uint64, error) {
	return 0, errors.New("free space probe not supported on this platform")
}
