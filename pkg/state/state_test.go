package state

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/tim-beatham/khost/pkg/fsys"
)

const statePath = "/home/kaspa/.khost/config.json"

func TestDefaultEnablesMainnetOnly(t *testing.T) {
	config := Default()

	enabled := config.EnabledNodes()

	if len(enabled) != 1 || enabled[0].Network != Mainnet {
		t.Fatalf(`expected only mainnet enabled got %v`, enabled)
	}

	if config.Resolver.Enabled || config.Nginx.Enabled {
		t.Fatal(`resolver and nginx should be disabled by default`)
	}

	if err := Validate(config); err != nil {
		t.Fatalf(`default configuration should be valid: %s`, err.Error())
	}
}

func TestParseMigratesVersionZero(t *testing.T) {
	document := `{
		// written by an old release
		"ip": "10.0.0.1",
		"disable_sudo_prompt": true,
		"resolver": null,
		"kaspad": [
			{"enabled": true, "network": "testnet11"},
		]
	}`

	config, migrated, err := Parse([]byte(document))

	if err != nil {
		t.Fatalf(`migration failed: %s`, err.Error())
	}

	if !migrated {
		t.Error(`expected the document to be reported as migrated`)
	}

	if config.Version != CurrentVersion {
		t.Errorf(`expected version %d got %d`, CurrentVersion, config.Version)
	}

	if config.Resolver.Origin.Repository != DefaultResolverRepository {
		t.Errorf(`resolver should receive the default origin got %q`, config.Resolver.Origin.Repository)
	}

	if len(config.Kaspad) != len(Networks) {
		t.Fatalf(`expected a record for each network got %d`, len(config.Kaspad))
	}

	node := config.Node(Testnet11)

	if !node.Enabled || node.Origin.Repository != DefaultNodeRepository {
		t.Errorf(`testnet-11 should stay enabled with the default origin got %+v`, node)
	}

	if config.Node(Mainnet).Enabled {
		t.Error(`networks absent from the document should be disabled`)
	}

	if !config.Nginx.Enabled {
		t.Error(`nginx should be enabled when a node was enabled`)
	}
}

func TestParseMigrationKeepsExplicitNginx(t *testing.T) {
	document := `{"version": 1, "nginx": {"enabled": false, "tls": {"enabled": false}},
		"kaspad": [{"enabled": true, "network": "mainnet", "origin": {"repository": "https://github.com/kaspanet/rusty-kaspa"}}],
		"resolver": {"enabled": false, "origin": {"repository": "https://github.com/aspectron/kaspa-resolver"}}}`

	config, _, err := Parse([]byte(document))

	if err != nil {
		t.Fatal(err)
	}

	if config.Nginx.Enabled {
		t.Fatal(`an explicit nginx block must be preserved`)
	}
}

func TestParseCurrentVersionNotMigrated(t *testing.T) {
	config := Default()
	store := NewFileStore(statePath, fsys.NewMemFileSystem())

	if err := store.Save(config); err != nil {
		t.Fatal(err)
	}

	data, _ := store.Fs.ReadFile(statePath)
	_, migrated, err := Parse(data)

	if err != nil {
		t.Fatal(err)
	}

	if migrated {
		t.Fatal(`a current document should not be migrated`)
	}
}

func TestParseRejectsNewerVersion(t *testing.T) {
	_, _, err := Parse([]byte(`{"version": 99}`))

	if err == nil {
		t.Fatal(`error should be thrown`)
	}
}

func TestParseRejectsUnknownNetwork(t *testing.T) {
	_, _, err := Parse([]byte(`{"version": 2, "kaspad": [{"network": "devnet"}]}`))

	if err == nil {
		t.Fatal(`error should be thrown`)
	}
}

func TestValidateRejectsDuplicateNetwork(t *testing.T) {
	config := Default()
	config.Kaspad = append(config.Kaspad, NewNodeConfig(Mainnet))

	if err := Validate(config); err == nil {
		t.Fatal(`error should be thrown`)
	}
}

func TestValidateRejectsBadDomain(t *testing.T) {
	config := Default()
	config.Fqdn = []string{"bad domain"}

	if err := Validate(config); err == nil {
		t.Fatal(`error should be thrown`)
	}
}

func TestValidateTlsRequiresCertificate(t *testing.T) {
	config := Default()
	config.Nginx.Tls.Enabled = true

	if err := Validate(config); err == nil {
		t.Fatal(`tls without certificate should be rejected`)
	}

	config.Nginx.Tls.Certificate = "/etc/ssl/cert.pem"
	config.Nginx.Tls.Key = "/etc/ssl/key.pem"

	if err := Validate(config); err != nil {
		t.Fatalf(`tls with certificate should be accepted: %s`, err.Error())
	}
}

func TestValidateRejectsBadOrigin(t *testing.T) {
	config := Default()
	config.Kaspad[0].Origin.Repository = "rusty-kaspa"

	if err := Validate(config); err == nil {
		t.Fatal(`error should be thrown`)
	}
}

func TestValidateRejectsUnsafeDataFolder(t *testing.T) {
	for _, folder := range []string{"/data/kaspa node", "/data/\tkaspa", "/data/%h", "/data/$HOME", `/data/"kaspa"`} {
		config := Default()
		config.Kaspad[0].DataFolder = &folder

		if err := Validate(config); err == nil {
			t.Fatalf(`data folder %q should be rejected`, folder)
		}
	}

	folder := "/data/kaspa-mainnet"
	config := Default()
	config.Kaspad[0].DataFolder = &folder

	if err := Validate(config); err != nil {
		t.Fatalf(`data folder should be accepted: %s`, err.Error())
	}
}

func TestFileStoreCreatesDefaults(t *testing.T) {
	files := fsys.NewMemFileSystem()
	store := NewFileStore(statePath, files)

	config, err := store.Load()

	if err != nil {
		t.Fatal(err)
	}

	if !files.Exists(statePath) {
		t.Fatal(`defaults should be saved on first load`)
	}

	if config.Version != CurrentVersion {
		t.Fatalf(`expected version %d got %d`, CurrentVersion, config.Version)
	}
}

func TestFileStoreRewritesMigrated(t *testing.T) {
	files := fsys.NewMemFileSystem()
	files.Files[statePath] = []byte(`{"kaspad": [{"enabled": true, "network": "mainnet"}]}`)
	store := NewFileStore(statePath, files)

	if _, err := store.Load(); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(string(files.Files[statePath]), `"version": 2`) {
		t.Fatalf(`migrated document should be saved got %s`, files.Files[statePath])
	}
}

func TestFileStoreRejectsInvalid(t *testing.T) {
	files := fsys.NewMemFileSystem()
	files.Files[statePath] = []byte(`{not json`)
	store := NewFileStore(statePath, files)

	if _, err := store.Load(); err == nil {
		t.Fatal(`error should be thrown`)
	}
}

func TestUpdateLeavesConfigOnFailure(t *testing.T) {
	files := fsys.NewMemFileSystem()
	store := NewFileStore(statePath, files)
	config := Default()
	files.WriteErrors[statePath] = errors.New("read-only file system")

	err := Update(store, config, func(c *Config) error {
		c.Resolver.Enabled = true
		return nil
	})

	if err == nil {
		t.Fatal(`error should be thrown`)
	}

	if config.Resolver.Enabled {
		t.Fatal(`config should be unchanged when the save fails`)
	}
}

func TestUpdateRejectsInvalid(t *testing.T) {
	store := NewFileStore(statePath, fsys.NewMemFileSystem())
	config := Default()

	err := Update(store, config, func(c *Config) error {
		c.Fqdn = []string{"-bad-"}
		return nil
	})

	if err == nil {
		t.Fatal(`error should be thrown`)
	}

	if len(config.Fqdn) != 0 {
		t.Fatal(`config should be unchanged when validation fails`)
	}
}

func TestUpdateApplies(t *testing.T) {
	files := fsys.NewMemFileSystem()
	store := NewFileStore(statePath, files)
	config := Default()

	err := Update(store, config, func(c *Config) error {
		c.SetNetworks([]Network{Testnet10, Testnet11})
		return nil
	})

	if err != nil {
		t.Fatal(err)
	}

	networks := []Network{}

	for _, node := range config.EnabledNodes() {
		networks = append(networks, node.Network)
	}

	if !slices.Equal(networks, []Network{Testnet10, Testnet11}) {
		t.Fatalf(`expected testnets enabled got %v`, networks)
	}

	reloaded, err := store.Load()

	if err != nil {
		t.Fatal(err)
	}

	if reloaded.Node(Mainnet).Enabled {
		t.Fatal(`saved configuration should have mainnet disabled`)
	}
}

func TestCloneIsDeep(t *testing.T) {
	config := Default()
	clone := config.Clone()

	*clone.Kaspad[0].OutgoingPeers = 8

	if *config.Kaspad[0].OutgoingPeers != 32 {
		t.Fatal(`clone should not share pointers`)
	}
}

func TestParseNetwork(t *testing.T) {
	for input, expected := range map[string]Network{
		"mainnet":    Mainnet,
		"testnet10":  Testnet10,
		"testnet-10": Testnet10,
		"TESTNET-11": Testnet11,
	} {
		network, err := ParseNetwork(input)

		if err != nil {
			t.Fatalf(`%s should parse: %s`, input, err.Error())
		}

		if network != expected {
			t.Errorf(`%s: expected %s got %s`, input, expected, network)
		}
	}

	if _, err := ParseNetwork("devnet"); err == nil {
		t.Fatal(`error should be thrown`)
	}
}

func TestNodeServiceNameAndPorts(t *testing.T) {
	node := NewNodeConfig(Testnet10)

	if node.ServiceName() != "kaspa-testnet-10" {
		t.Fatalf(`unexpected service name %s`, node.ServiceName())
	}

	if node.Grpc.String() != "127.0.0.1:16210" {
		t.Fatalf(`unexpected grpc listen %s`, node.Grpc)
	}
}

func TestNodeArgs(t *testing.T) {
	node := NewNodeConfig(Testnet11)
	node.Grpc = PublicInterface(16310)
	folder := "/data/tn11"
	node.DataFolder = &folder

	args := node.Args()

	for _, expected := range []string{
		"--testnet", "--netsuffix=11", "--utxoindex", "--disable-upnp",
		"--outpeers=32", "--maxinpeers=256", "--rpclisten=0.0.0.0:16310",
		"--rpclisten-json=127.0.0.1:18310", "--appdir=/data/tn11",
	} {
		if !slices.Contains(args, expected) {
			t.Errorf(`expected %s in %v`, expected, args)
		}
	}

	node.EnableUpnp = true

	if slices.Contains(node.Args(), "--disable-upnp") {
		t.Error(`upnp enabled node should not disable upnp`)
	}
}

func TestMainnetArgsHaveNoTestnetFlag(t *testing.T) {
	node := NewNodeConfig(Mainnet)

	if slices.Contains(node.Args(), "--testnet") {
		t.Fatal(`mainnet should not pass --testnet`)
	}
}

func TestOriginFolder(t *testing.T) {
	origin, err := NewOrigin("https://github.com/someone/rusty-kaspa.git", "dev")

	if err != nil {
		t.Fatal(err)
	}

	if origin.Folder() != "someone/dev" {
		t.Fatalf(`unexpected folder %s`, origin.Folder())
	}

	if origin.Name() != "rusty-kaspa" {
		t.Fatalf(`unexpected name %s`, origin.Name())
	}

	if DefaultNodeOrigin().Folder() != "kaspanet/master" {
		t.Fatalf(`unexpected default folder %s`, DefaultNodeOrigin().Folder())
	}
}

func TestNewOriginRejectsInvalid(t *testing.T) {
	if _, err := NewOrigin("not a url", ""); !errors.Is(err, ErrInvalidOrigin) {
		t.Fatalf(`expected ErrInvalidOrigin got %v`, err)
	}

	if _, err := NewOrigin(DefaultNodeRepository, "bad..branch"); !errors.Is(err, ErrInvalidOrigin) {
		t.Fatalf(`expected ErrInvalidOrigin got %v`, err)
	}
}

func TestNormalizeDomains(t *testing.T) {
	domains, err := NormalizeDomains([]string{"Node.Example.com.", "node.example.com", "*.example.org"})

	if err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(domains, []string{"node.example.com", "*.example.org"}) {
		t.Fatalf(`unexpected domains %v`, domains)
	}

	for _, bad := range []string{"", "exa mple.com", "-bad.com", "under_score.com"} {
		if _, err := NormalizeDomain(bad); err == nil {
			t.Errorf(`%q should be rejected`, bad)
		}
	}
}

func TestNginxListenPort(t *testing.T) {
	nginx := NginxConfig{}

	if nginx.ListenPort() != 80 {
		t.Fatalf(`expected 80 got %d`, nginx.ListenPort())
	}

	nginx.Tls.Enabled = true

	if nginx.ListenPort() != 443 {
		t.Fatalf(`expected 443 got %d`, nginx.ListenPort())
	}
}
