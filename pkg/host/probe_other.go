//go:build !linux

package host

type SysinfoProbe struct{}

func (s SysinfoProbe) TotalMemory() (uint64, error) {
	return 0, ErrUnsupportedOS
}

func Probe(diskPath string) (*Info, error) {
	return nil, ErrUnsupportedOS
}
