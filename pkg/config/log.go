package config

import (
	"fmt"
	"strings"
)

const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// LogConfig selects the minimum level and the output format of the service log.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func (c *LogConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Log ---\n")
	b.WriteString(fmt.Sprintf("  level: %s\n", c.Level))
	b.WriteString(fmt.Sprintf("  format: %s\n", c.Format))
	return b.String()
}

// Validate checks the level and defaults the format to JSON.
func (c *LogConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.Level)
	}
	switch c.Format {
	case "":
		c.Format = LogFormatJSON
	case LogFormatJSON, LogFormatText:
	default:
		return fmt.Errorf("unknown log format %q, expected %s or %s", c.Format, LogFormatJSON, LogFormatText)
	}
	return nil
}
