package admission

// Probe reports free storage on the filesystem holding a path.
type Probe interface {
	FreeBytes(path string) (uint64, error)
}

// StatfsProbe reads free space with statfs(2). Only blocks available to
// unprivileged users are counted.
type StatfsProbe struct{}

var _ Probe = StatfsProbe{}
