// Package discovery locates bus device files, mirroring the teacher's use
// of a device path (e.g. "/dev/ttyACM0") to name a serial endpoint, except
// here there may be several such endpoints to enumerate.
package discovery

import (
	"path/filepath"
	"sort"

	"github.com/BoumPower/ola/bus"
)

// DiscoverBuses globs deviceDir for entries whose name starts with prefix,
// returning the matched absolute paths, sorted.
func DiscoverBuses(deviceDir, prefix string) ([]string, error) {
	pattern := filepath.Join(deviceDir, prefix+"*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, bus.Wrap(bus.ConfigurationInvalid, err, "glob %s", pattern)
	}

	sort.Strings(matches)
	return matches, nil
}
