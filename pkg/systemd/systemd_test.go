package systemd

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/tim-beatham/khost/pkg/cmd"
	"github.com/tim-beatham/khost/pkg/fsys"
)

func getExampleUnit() UnitConfig {
	return UnitConfig{
		ServiceName: "kaspa-mainnet",
		Description: "Kaspa p2p Node (mainnet)",
		User:        "kaspa",
		ExecStart:   "/home/kaspa/kaspa/rusty-kaspa/kaspanet/master/target/release/kaspad --utxoindex",
		RestartSec:  5,
	}
}

func getTestManager() (*SystemctlUnitManager, *cmd.StubCmdRunner, *fsys.MemFileSystem) {
	runner := cmd.NewStubCmdRunner()
	files := fsys.NewMemFileSystem()
	return NewSystemctlUnitManager("/etc/systemd/system", runner, files), runner, files
}

func TestRenderUnit(t *testing.T) {
	unit := getExampleUnit()

	content, err := unit.Render()

	if err != nil {
		t.Fatal(err)
	}

	for _, line := range []string{
		"[Unit]",
		"Description=Kaspa p2p Node (mainnet)",
		"User=kaspa",
		"ExecStart=/home/kaspa/kaspa/rusty-kaspa/kaspanet/master/target/release/kaspad --utxoindex",
		"RestartSec=5",
		"Restart=on-failure",
		"WantedBy=multi-user.target",
	} {
		if !strings.Contains(content, line+"\n") {
			t.Errorf(`expected line %q in %s`, line, content)
		}
	}
}

func TestUnitValidation(t *testing.T) {
	for name, mutate := range map[string]func(*UnitConfig){
		"empty name":        func(u *UnitConfig) { u.ServiceName = "" },
		"name with slash":   func(u *UnitConfig) { u.ServiceName = "../evil" },
		"relative exec":     func(u *UnitConfig) { u.ExecStart = "kaspad" },
		"multiline exec":    func(u *UnitConfig) { u.ExecStart = "/bin/kaspad\nExecStartPre=/bin/rm" },
		"empty user":        func(u *UnitConfig) { u.User = "" },
		"zero restart":      func(u *UnitConfig) { u.RestartSec = 0 },
		"multiline caption": func(u *UnitConfig) { u.Description = "a\nb" },
	} {
		unit := getExampleUnit()
		mutate(&unit)

		if _, err := unit.Render(); err == nil {
			t.Errorf(`%s: error should be thrown`, name)
		}
	}
}

func TestObserveParsesShow(t *testing.T) {
	manager, runner, _ := getTestManager()
	runner.Respond("systemctl show nginx.service", cmd.StubResponse{
		Output: "LoadState=loaded\nUnitFileState=enabled\nActiveState=active\n",
	})

	unit, err := manager.Observe(context.Background(), "nginx")

	if err != nil {
		t.Fatal(err)
	}

	if !unit.Exists || !unit.Enabled || !unit.Active {
		t.Fatalf(`expected existing enabled active unit got %+v`, unit)
	}
}

func TestObserveMissingUnit(t *testing.T) {
	manager, runner, _ := getTestManager()
	runner.Respond("systemctl show", cmd.StubResponse{
		Output: "LoadState=not-found\nUnitFileState=\nActiveState=inactive\n",
	})

	unit, err := manager.Observe(context.Background(), "kaspa-mainnet")

	if err != nil {
		t.Fatal(err)
	}

	if unit.Exists || unit.Enabled || unit.Active {
		t.Fatalf(`expected absent unit got %+v`, unit)
	}
}

func TestObserveUnitFileOnDisk(t *testing.T) {
	manager, runner, files := getTestManager()
	files.Files["/etc/systemd/system/kaspa-mainnet.service"] = []byte("[Unit]\n")
	runner.Respond("systemctl show", cmd.StubResponse{Output: "LoadState=not-found\n"})

	unit, err := manager.Observe(context.Background(), "kaspa-mainnet")

	if err != nil {
		t.Fatal(err)
	}

	if !unit.Exists {
		t.Fatal(`a unit file on disk should count as existing`)
	}
}

func TestObserveFailure(t *testing.T) {
	manager, runner, _ := getTestManager()
	runner.Respond("systemctl show", cmd.StubResponse{ExitCode: 1, Output: "Failed to connect to bus"})

	if _, err := manager.Observe(context.Background(), "kaspa-mainnet"); err == nil {
		t.Fatal(`error should be thrown`)
	}
}

func TestWriteAndRemove(t *testing.T) {
	manager, _, files := getTestManager()
	unit := getExampleUnit()

	if err := manager.Write(context.Background(), unit); err != nil {
		t.Fatal(err)
	}

	path := "/etc/systemd/system/kaspa-mainnet.service"

	if !strings.Contains(string(files.Files[path]), "User=kaspa") {
		t.Fatalf(`unit not written got %q`, files.Files[path])
	}

	if err := manager.Remove(context.Background(), "kaspa-mainnet"); err != nil {
		t.Fatal(err)
	}

	if files.Exists(path) {
		t.Fatal(`unit should be removed`)
	}
}

func TestWriteInvalidUnitWritesNothing(t *testing.T) {
	manager, _, files := getTestManager()
	unit := getExampleUnit()
	unit.ExecStart = "kaspad"

	if err := manager.Write(context.Background(), unit); err == nil {
		t.Fatal(`error should be thrown`)
	}

	if files.Writes != 0 {
		t.Fatal(`no file should be written`)
	}
}

func TestLifecycleCommands(t *testing.T) {
	manager, runner, _ := getTestManager()
	ctx := context.Background()

	manager.DaemonReload(ctx)
	manager.Enable(ctx, "kaspa-mainnet")
	manager.Start(ctx, "kaspa-mainnet")
	manager.Restart(ctx, "kaspa-mainnet")
	manager.Stop(ctx, "kaspa-mainnet")
	manager.Disable(ctx, "kaspa-mainnet")
	manager.Logs(ctx, "kaspa-mainnet", 50)

	expected := []string{
		"systemctl daemon-reload",
		"systemctl enable kaspa-mainnet.service",
		"systemctl start kaspa-mainnet.service",
		"systemctl restart kaspa-mainnet.service",
		"systemctl stop kaspa-mainnet.service",
		"systemctl disable kaspa-mainnet.service",
		"journalctl -u kaspa-mainnet.service -n 50 --no-pager",
	}

	if !slices.Equal(runner.CallLines(), expected) {
		t.Fatalf(`expected %v got %v`, expected, runner.CallLines())
	}
}

func TestStatusReturnsOutputOfInactiveUnit(t *testing.T) {
	manager, runner, _ := getTestManager()
	runner.Respond("systemctl status", cmd.StubResponse{ExitCode: 3, Output: "Active: inactive (dead)"})

	output, err := manager.Status(context.Background(), "kaspa-mainnet")

	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(output, "inactive") {
		t.Fatalf(`unexpected output %q`, output)
	}
}

func TestEnableFailurePropagates(t *testing.T) {
	manager, runner, _ := getTestManager()
	runner.Respond("systemctl enable", cmd.StubResponse{ExitCode: 1, Output: "Access denied"})

	err := manager.Enable(context.Background(), "kaspa-mainnet")

	if err == nil || !strings.Contains(err.Error(), "Access denied") {
		t.Fatalf(`expected access denied error got %v`, err)
	}
}

func TestStubRequiresDaemonReload(t *testing.T) {
	stub := NewUnitManagerStub()
	ctx := context.Background()

	if err := stub.Write(ctx, getExampleUnit()); err != nil {
		t.Fatal(err)
	}

	if err := stub.Start(ctx, "kaspa-mainnet"); err == nil {
		t.Fatal(`start before daemon-reload should fail`)
	}

	stub.DaemonReload(ctx)

	if err := stub.Start(ctx, "kaspa-mainnet"); err != nil {
		t.Fatal(err)
	}

	if !stub.Units["kaspa-mainnet"].Active {
		t.Fatal(`unit should be active`)
	}
}
