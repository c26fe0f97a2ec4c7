// host inspects the machine khost runs on: operating system, privilege,
// memory, disk and addresses
package host

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrUnsupportedOS = errors.New("khost only supports linux")
	ErrNotRoot       = errors.New("khost must be run as root")
)

// hostNamespace scopes host ids derived from the machine id
var hostNamespace = uuid.MustParse("7f1d4bb8-2c0e-4b8a-9a3e-0c6f4e21d9a5")

// CheckOS fails on anything but linux
func CheckOS() error {
	return checkOS(runtime.GOOS)
}

func checkOS(goos string) error {
	if goos != "linux" {
		return fmt.Errorf("%w: running on %s", ErrUnsupportedOS, goos)
	}

	return nil
}

func IsRoot() bool {
	return os.Geteuid() == 0
}

// MemoryProbe reports the memory installed on the host
type MemoryProbe interface {
	TotalMemory() (uint64, error)
}

// FixedMemory reports a constant amount of memory
type FixedMemory uint64

func (f FixedMemory) TotalMemory() (uint64, error) {
	return uint64(f), nil
}

// Disk usage of the filesystem holding the service data
type Disk struct {
	Path  string `json:"path"`
	Total uint64 `json:"total"`
	Free  uint64 `json:"free"`
}

// Info is a snapshot of the host
type Info struct {
	Hostname    string   `json:"hostname"`
	OS          string   `json:"os"`
	CPUs        int      `json:"cpus"`
	TotalMemory uint64   `json:"totalMemory"`
	Disk        *Disk    `json:"disk,omitempty"`
	HostID      string   `json:"hostId,omitempty"`
	Addresses   []net.IP `json:"addresses"`
}

// RequiredMemory is the memory needed to run the given number of node
// instances at once. A single instance has no requirement
func RequiredMemory(instances int, perInstance uint64) uint64 {
	if instances < 2 {
		return 0
	}

	return uint64(instances) * perInstance
}

// FormatBytes renders a byte count with a binary unit
func FormatBytes(bytes uint64) string {
	const unit = 1024

	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := uint64(unit), 0

	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// parseOsRelease returns PRETTY_NAME or NAME from an os-release file
func parseOsRelease(data string) string {
	values := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(data))

	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")

		if ok {
			values[key] = strings.Trim(value, `"'`)
		}
	}

	if name, ok := values["PRETTY_NAME"]; ok && name != "" {
		return name
	}

	return values["NAME"]
}

// hostID derives a stable id from the machine id
func hostID(machineID string) string {
	id := strings.TrimSpace(machineID)

	if id == "" {
		return ""
	}

	return uuid.NewSHA1(hostNamespace, []byte(id)).String()
}

// globalAddresses drops loopback and link local addresses
func globalAddresses(addresses []net.IP) []net.IP {
	result := make([]net.IP, 0, len(addresses))

	for _, address := range addresses {
		if address == nil || address.IsLoopback() || address.IsLinkLocalUnicast() ||
			address.IsLinkLocalMulticast() || address.IsUnspecified() {
			continue
		}

		result = append(result, address)
	}

	return result
}

func readOsName() string {
	data, err := os.ReadFile("/etc/os-release")

	if err != nil {
		return runtime.GOOS
	}

	if name := parseOsRelease(string(data)); name != "" {
		return name
	}

	return runtime.GOOS
}

func readHostID() string {
	data, err := os.ReadFile("/etc/machine-id")

	if err != nil {
		return ""
	}

	return hostID(string(data))
}
