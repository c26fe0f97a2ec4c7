// conf defines the khost tool settings file and its parsing
package conf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultSettingsPath is where khost looks for settings when no path
// is given on the command line
const DefaultSettingsPath = "/etc/khost/khost.yaml"

type SettingsError struct {
	msg string
}

func (m *SettingsError) Error() string {
	return m.msg
}

type LogLevel string

const (
	ERROR   LogLevel = "error"
	WARNING LogLevel = "warning"
	INFO    LogLevel = "info"
	DEBUG   LogLevel = "debug"
)

// Settings configures where khost keeps its files and how it talks to
// the host. The desired service state lives separately in the data
// folder, see pkg/state.
type Settings struct {
	// User is the account managed services run as
	User string `yaml:"user" validate:"required"`
	// HomeFolder is the home folder of User. Default node data folders
	// are derived from it
	HomeFolder string `yaml:"homeFolder" validate:"required"`
	// DataFolder holds the persisted desired state and the version stamp
	DataFolder string `yaml:"dataFolder" validate:"required"`
	// RootFolder contains the source trees and release builds of the
	// managed services
	RootFolder string `yaml:"rootFolder" validate:"required"`
	// UnitFolder is where systemd unit definitions are written
	UnitFolder string `yaml:"unitFolder" validate:"required"`
	// NginxFolder is the nginx configuration root
	NginxFolder string `yaml:"nginxFolder" validate:"required"`
	// LogLevel of the khost logger
	LogLevel LogLevel `yaml:"logLevel" validate:"required,eq=error|eq=warning|eq=info|eq=debug"`
	// RestartSec is the restart backoff written into every unit
	RestartSec int `yaml:"restartSec" validate:"gte=1"`
	// MinMemoryPerNodeGiB is the memory each enabled p2p node instance
	// needs when more than one network is enabled at the same time
	MinMemoryPerNodeGiB int `yaml:"minMemoryPerNodeGiB" validate:"gte=1"`
	// ProbeTimeout number of seconds to wait for a listener to accept
	// a connection when rendering status
	ProbeTimeout int `yaml:"probeTimeout" validate:"gte=1"`
	// ApiListen address of the read-only status API
	ApiListen string `yaml:"apiListen" validate:"required,hostname_port"`
}

// operatorUser: the account that invoked khost. Under sudo that is the
// real user, not root
func operatorUser() (*user.User, error) {
	if name := os.Getenv("SUDO_USER"); name != "" {
		return user.Lookup(name)
	}

	return user.Current()
}

// DefaultSettings: settings used when no settings file exists
func DefaultSettings() (*Settings, error) {
	account, err := operatorUser()

	if err != nil {
		return nil, &SettingsError{msg: fmt.Sprintf("could not determine operator account: %s", err.Error())}
	}

	return defaultSettingsFor(account.Username, account.HomeDir), nil
}

func defaultSettingsFor(username, home string) *Settings {
	return &Settings{
		User:                username,
		HomeFolder:          home,
		DataFolder:          filepath.Join(home, ".khost"),
		RootFolder:          filepath.Join(home, "kaspa"),
		UnitFolder:          "/etc/systemd/system",
		NginxFolder:         "/etc/nginx",
		LogLevel:            INFO,
		RestartSec:          5,
		MinMemoryPerNodeGiB: 16,
		ProbeTimeout:        2,
		ApiListen:           "127.0.0.1:8990",
	}
}

// ValidateSettings: validates the settings
func ValidateSettings(s *Settings) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(s)
}

// ParseSettings parses the settings file over the defaults and
// validates the result. A missing file yields the defaults
func ParseSettings(filePath string) (*Settings, error) {
	settings, err := DefaultSettings()

	if err != nil {
		return nil, err
	}

	return parseSettingsOver(filePath, settings)
}

func parseSettingsOver(filePath string, settings *Settings) (*Settings, error) {
	yamlBytes, err := os.ReadFile(filePath)

	if errors.Is(err, fs.ErrNotExist) {
		return settings, ValidateSettings(settings)
	}

	if err != nil {
		return nil, err
	}

	err = yaml.Unmarshal(yamlBytes, settings)

	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filePath, err)
	}

	return settings, ValidateSettings(settings)
}

// StatePath is the persisted desired state location
func (s *Settings) StatePath() string {
	return filepath.Join(s.DataFolder, "config.json")
}

// VersionPath is the stamp recording which khost version last
// generated the service configuration
func (s *Settings) VersionPath() string {
	return filepath.Join(s.DataFolder, "version")
}

// MinMemoryPerNode in bytes
func (s *Settings) MinMemoryPerNode() uint64 {
	return uint64(s.MinMemoryPerNodeGiB) * 1024 * 1024 * 1024
}
