package config

import (
	"fmt"
	"strings"
	"time"
)

const defaultFlushTimeout = 5 * time.Second

// ShutdownConfig bounds the graceful stop. Timeout applies to each server,
// Flush to pushing the last RPC replies out before the NATS connection drains.
type ShutdownConfig struct {
	Timeout time.Duration `koanf:"timeout"`
	Flush   time.Duration `koanf:"flush"`
}

func (c *ShutdownConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Shutdown ---\n")
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	b.WriteString(fmt.Sprintf("  flush: %s\n", c.Flush))
	return b.String()
}

func (c *ShutdownConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("shutdown timeout is not configured")
	}
	if c.Timeout > 5*time.Minute {
		return fmt.Errorf("shutdown timeout is too long: %s", c.Timeout)
	}
	if c.Flush <= 0 {
		c.Flush = defaultFlushTimeout
	}
	if c.Flush > c.Timeout {
		return fmt.Errorf("shutdown flush %s exceeds shutdown timeout %s", c.Flush, c.Timeout)
	}
	return nil
}
