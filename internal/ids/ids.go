package ids

import "github.com/segmentio/ksuid"

// New returns a sortable unique id for sessions, devices and object keys.
func New() string {
	return ksuid.New().String()
}
