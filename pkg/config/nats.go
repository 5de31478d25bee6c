package config

import (
	"fmt"
	"strings"
	"time"
)

type NATSConfig struct {
	Servers []string      `koanf:"servers"`
	Name    string        `koanf:"name"`
	Timeout time.Duration `koanf:"timeout"`
	Queue   string        `koanf:"queue"`
	Workers int           `koanf:"workers"`
}

// String returns a string representation of the NATS configuration.
func (c *NATSConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- NATS ---\n")
	b.WriteString(fmt.Sprintf("  servers: %s\n", strings.Join(c.Servers, ",")))
	b.WriteString(fmt.Sprintf("  name: %s\n", c.Name))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	b.WriteString(fmt.Sprintf("  queue: %s\n", c.Queue))
	b.WriteString(fmt.Sprintf("  workers: %d\n", c.Workers))
	return b.String()
}

func (c *NATSConfig) Validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("NATS servers are not configured")
	}
	for _, s := range c.Servers {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("NATS server address cannot be empty")
		}
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("nats dial timeout is not configured")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("nats workers must be greater than zero")
	}
	return nil
}
