//go:build linux

package host

import (
	"fmt"
	"net"
	"os"
	"runtime"

	"github.com/jsimonetti/rtnetlink"
	logging "github.com/tim-beatham/khost/pkg/log"
	"golang.org/x/sys/unix"
)

// SysinfoProbe reads the installed memory from the kernel
type SysinfoProbe struct{}

func (s SysinfoProbe) TotalMemory() (uint64, error) {
	var info unix.Sysinfo_t

	if err := unix.Sysinfo(&info); err != nil {
		return 0, fmt.Errorf("sysinfo: %w", err)
	}

	return uint64(info.Totalram) * uint64(info.Unit), nil
}

func diskUsage(path string) (*Disk, error) {
	var stat unix.Statfs_t

	if err := unix.Statfs(path, &stat); err != nil {
		return nil, fmt.Errorf("statfs %s: %w", path, err)
	}

	return &Disk{
		Path:  path,
		Total: stat.Blocks * uint64(stat.Bsize),
		Free:  stat.Bavail * uint64(stat.Bsize),
	}, nil
}

// addresses lists the universe scoped addresses of every link
func addresses() ([]net.IP, error) {
	conn, err := rtnetlink.Dial(nil)

	if err != nil {
		return nil, fmt.Errorf("failed to dial netlink: %w", err)
	}

	defer conn.Close()

	messages, err := conn.Address.List()

	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}

	ips := make([]net.IP, 0, len(messages))

	for _, message := range messages {
		if message.Scope != unix.RT_SCOPE_UNIVERSE || message.Attributes == nil {
			continue
		}

		ips = append(ips, message.Attributes.Address)
	}

	return globalAddresses(ips), nil
}

// Probe takes a snapshot of the host. diskPath selects the filesystem
// reported, usually the service user's home folder. Parts that cannot
// be read are left empty
func Probe(diskPath string) (*Info, error) {
	memory, err := SysinfoProbe{}.TotalMemory()

	if err != nil {
		return nil, err
	}

	hostname, _ := os.Hostname()

	info := &Info{
		Hostname:    hostname,
		OS:          readOsName(),
		CPUs:        runtime.NumCPU(),
		TotalMemory: memory,
		HostID:      readHostID(),
		Addresses:   []net.IP{},
	}

	if disk, err := diskUsage(diskPath); err == nil {
		info.Disk = disk
	} else {
		logging.Log.WriteWarnf("%s", err.Error())
	}

	if ips, err := addresses(); err == nil {
		info.Addresses = ips
	} else {
		logging.Log.WriteWarnf("%s", err.Error())
	}

	return info, nil
}
