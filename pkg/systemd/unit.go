// systemd renders unit definitions and drives systemctl and journalctl
// for the services khost manages
package systemd

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var unitNamePattern = regexp.MustCompile(`^[A-Za-z0-9:_.@-]+$`)

// UnitConfig is everything written into a unit definition
type UnitConfig struct {
	ServiceName string `validate:"required,unitname"`
	Description string `validate:"required,singleline"`
	User        string `validate:"required,singleline"`
	// ExecStart is the absolute binary path followed by its flags
	ExecStart  string `validate:"required,singleline,startswith=/"`
	RestartSec int    `validate:"gte=1"`
}

// Unit is the observed state of a unit on the host
type Unit struct {
	Name    string `json:"name"`
	Exists  bool   `json:"exists"`
	Enabled bool   `json:"enabled"`
	Active  bool   `json:"active"`
}

func newValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterValidation("unitname", func(fl validator.FieldLevel) bool {
		return unitNamePattern.MatchString(fl.Field().String())
	})

	validate.RegisterValidation("singleline", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), "\r\n")
	})

	return validate
}

func (u *UnitConfig) Validate() error {
	if err := newValidator().Struct(u); err != nil {
		return fmt.Errorf("invalid unit %q: %w", u.ServiceName, err)
	}

	return nil
}

// FileName is the unit file name, e.g. kaspa-mainnet.service
func FileName(name string) string {
	return name + ".service"
}

// Render produces the unit definition text
func (u *UnitConfig) Render() (string, error) {
	if err := u.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder

	b.WriteString("[Unit]\n")
	fmt.Fprintf(&b, "Description=%s\n", u.Description)
	b.WriteString("\n[Service]\n")
	fmt.Fprintf(&b, "User=%s\n", u.User)
	fmt.Fprintf(&b, "ExecStart=%s\n", u.ExecStart)
	fmt.Fprintf(&b, "RestartSec=%d\n", u.RestartSec)
	b.WriteString("Restart=on-failure\n")
	b.WriteString("\n[Install]\n")
	b.WriteString("WantedBy=multi-user.target\n")

	return b.String(), nil
}
