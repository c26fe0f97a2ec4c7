package nginx

import (
	"context"
	"fmt"
)

// ConfigManagerStub keeps the route file in memory
type ConfigManagerStub struct {
	Content string
	Exists  bool
	// Calls records "write", "remove" and "reload"
	Calls       []string
	WriteError  error
	RemoveError error
	ReloadError error
	OnCall      func(call string)
}

func NewConfigManagerStub() *ConfigManagerStub {
	return &ConfigManagerStub{}
}

func (c *ConfigManagerStub) record(call string) {
	c.Calls = append(c.Calls, call)

	if c.OnCall != nil {
		c.OnCall(call)
	}
}

func (c *ConfigManagerStub) Path() string {
	return fmt.Sprintf("/etc/nginx/sites-enabled/%s", RouteFileName)
}

func (c *ConfigManagerStub) Read() (string, bool, error) {
	return c.Content, c.Exists, nil
}

func (c *ConfigManagerStub) Write(content string) error {
	c.record("write")

	if c.WriteError != nil {
		return c.WriteError
	}

	c.Content = content
	c.Exists = true
	return nil
}

func (c *ConfigManagerStub) Remove() error {
	c.record("remove")

	if c.RemoveError != nil {
		return c.RemoveError
	}

	c.Content = ""
	c.Exists = false
	return nil
}

func (c *ConfigManagerStub) Reload(ctx context.Context) error {
	c.record("reload")
	return c.ReloadError
}
