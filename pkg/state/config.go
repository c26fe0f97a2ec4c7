// state holds the persisted desired state of the host: which node
// networks, resolver and proxy the operator wants and how they are
// configured
package state

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	logging "github.com/tim-beatham/khost/pkg/log"
	"github.com/tidwall/jsonc"
)

// CurrentVersion of the persisted schema
const CurrentVersion = 2

type Config struct {
	Version int `json:"version"`
	// Bootstrap records that the first run install completed
	Bootstrap bool `json:"bootstrap"`
	// Public marks the node as publicly reachable. The proxy then
	// listens on every address instead of loopback only
	Public   bool           `json:"public"`
	Fqdn     []string       `json:"fqdn" validate:"dive,domain"`
	Nginx    NginxConfig    `json:"nginx"`
	Kaspad   []NodeConfig   `json:"kaspad" validate:"dive"`
	Resolver ResolverConfig `json:"resolver"`
}

// legacyFields were present in earlier schema versions and are
// dropped by the migrations
type legacyFields struct {
	IP                *string `json:"ip"`
	DisableSudoPrompt *bool   `json:"disable_sudo_prompt"`
	Nginx             *struct {
		Enabled bool `json:"enabled"`
	} `json:"nginx"`
}

// Default is the configuration written on first run
func Default() *Config {
	config := &Config{
		Version:  CurrentVersion,
		Fqdn:     []string{},
		Resolver: NewResolverConfig(),
	}

	for _, network := range Networks {
		config.Kaspad = append(config.Kaspad, NewNodeConfig(network))
	}

	config.Kaspad[0].Enabled = true
	return config
}

func newValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterValidation("domain", func(fl validator.FieldLevel) bool {
		_, err := NormalizeDomain(fl.Field().String())
		return err == nil
	})

	validate.RegisterValidation("repository", func(fl validator.FieldLevel) bool {
		return isRepository(fl.Field().String())
	})

	validate.RegisterValidation("branch", func(fl validator.FieldLevel) bool {
		return isBranch(fl.Field().String())
	})

	validate.RegisterValidation("unitarg", func(fl validator.FieldLevel) bool {
		return isUnitArg(fl.Field().String())
	})

	return validate
}

// Validate: validates the configuration
func Validate(config *Config) error {
	if err := newValidator().Struct(config); err != nil {
		return err
	}

	seen := make(map[Network]struct{})

	for _, node := range config.Kaspad {
		if _, ok := seen[node.Network]; ok {
			return fmt.Errorf("network %s configured more than once", node.Network)
		}

		seen[node.Network] = struct{}{}
	}

	return nil
}

// Parse decodes a persisted configuration. Comments and trailing
// commas are tolerated. migrated reports that the document was written
// by an older schema and should be saved again
func Parse(data []byte) (config *Config, migrated bool, err error) {
	stripped := jsonc.ToJSON(data)

	config = &Config{}

	if err := json.Unmarshal(stripped, config); err != nil {
		return nil, false, fmt.Errorf("parsing configuration: %w", err)
	}

	var legacy legacyFields

	if err := json.Unmarshal(stripped, &legacy); err != nil {
		return nil, false, fmt.Errorf("parsing configuration: %w", err)
	}

	if config.Version > CurrentVersion {
		return nil, false, fmt.Errorf("configuration version %d is newer than supported version %d",
			config.Version, CurrentVersion)
	}

	migrated = config.Version < CurrentVersion
	migrate(config, &legacy)

	if err := Validate(config); err != nil {
		return nil, false, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, migrated, nil
}

func migrate(config *Config, legacy *legacyFields) {
	if config.Version < 1 {
		logging.Log.WriteInfof("migrating configuration to version 1")

		if config.Resolver.Origin.Repository == "" {
			enabled := config.Resolver.Enabled
			config.Resolver = NewResolverConfig()
			config.Resolver.Enabled = enabled
		}

		for i := range config.Kaspad {
			if config.Kaspad[i].Origin.Repository == "" {
				config.Kaspad[i].Origin = DefaultNodeOrigin()
			}
		}

		config.Version = 1
	}

	if config.Version < 2 {
		logging.Log.WriteInfof("migrating configuration to version 2")

		if legacy.IP != nil || legacy.DisableSudoPrompt != nil {
			logging.Log.WriteWarnf("dropping obsolete ip and sudo prompt settings")
		}

		if legacy.Nginx == nil {
			config.Nginx.Enabled = config.Resolver.Enabled || len(config.EnabledNodes()) > 0
		}

		config.Version = 2
	}

	normalize(config)
}

// normalize keeps exactly one node record per network in display order
func normalize(config *Config) {
	byNetwork := make(map[Network]NodeConfig)

	for _, node := range config.Kaspad {
		if _, ok := byNetwork[node.Network]; !ok {
			byNetwork[node.Network] = node
		}
	}

	nodes := make([]NodeConfig, 0, len(Networks))

	for _, network := range Networks {
		node, ok := byNetwork[network]

		if !ok {
			node = NewNodeConfig(network)
		}

		nodes = append(nodes, node)
	}

	config.Kaspad = nodes

	if config.Fqdn == nil {
		config.Fqdn = []string{}
	}
}

// Clone returns a deep copy
func (c *Config) Clone() *Config {
	data, err := json.Marshal(c)

	if err != nil {
		panic(fmt.Sprintf("configuration is not serializable: %s", err.Error()))
	}

	clone := &Config{}

	if err := json.Unmarshal(data, clone); err != nil {
		panic(fmt.Sprintf("configuration is not serializable: %s", err.Error()))
	}

	return clone
}

// Node returns the record of the given network
func (c *Config) Node(network Network) *NodeConfig {
	for i := range c.Kaspad {
		if c.Kaspad[i].Network == network {
			return &c.Kaspad[i]
		}
	}

	return nil
}

func (c *Config) EnabledNodes() []NodeConfig {
	nodes := make([]NodeConfig, 0, len(c.Kaspad))

	for _, node := range c.Kaspad {
		if node.Enabled {
			nodes = append(nodes, node)
		}
	}

	return nodes
}

// SetNetworks enables exactly the given networks
func (c *Config) SetNetworks(networks []Network) {
	wanted := make(map[Network]struct{}, len(networks))

	for _, network := range networks {
		wanted[network] = struct{}{}
	}

	for i := range c.Kaspad {
		_, ok := wanted[c.Kaspad[i].Network]
		c.Kaspad[i].Enabled = ok
	}
}
