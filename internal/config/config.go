// Package config defines the configuration of the product catalog service.
package config

import (
	"fmt"
	"strings"

	"github.com/abgdnv/product-catalog/internal/store"
	"github.com/abgdnv/product-catalog/pkg/config"
	"github.com/abgdnv/product-catalog/pkg/config/configloader"
)

var _ configloader.Validator = (*Config)(nil)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

type Config struct {
	Env        string                 `koanf:"env"`
	HTTPServer config.HTTPConfig      `koanf:"server"`
	Database   config.DatabaseConfig  `koanf:"database"`
	NATS       config.NATSConfig      `koanf:"nats"`
	Catalog    CatalogConfig          `koanf:"catalog"`
	Log        config.LogConfig       `koanf:"log"`
	PProf      config.PProfConfig     `koanf:"pprof"`
	Telemetry  config.TelemetryConfig `koanf:"telemetry"`
	Shutdown   config.ShutdownConfig  `koanf:"shutdown"`
}

// CatalogConfig holds the business rules that depend on the deployment.
type CatalogConfig struct {
	// UniqueFields lists the product columns that must be unique among active products.
	UniqueFields []string `koanf:"uniquefields"`
}

func (c *Config) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("\n  env: %s\n", c.Env))
	b.WriteString(c.HTTPServer.String())
	b.WriteString(c.Database.String())
	b.WriteString(c.NATS.String())
	b.WriteString("\n--- Catalog ---\n")
	b.WriteString(fmt.Sprintf("  uniquefields: %s\n", strings.Join(c.Catalog.UniqueFields, ",")))
	b.WriteString(c.Log.String())
	b.WriteString(c.PProf.String())
	b.WriteString(c.Telemetry.String())
	b.WriteString(c.Shutdown.String())
	return b.String()
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	switch c.Env {
	case "":
		c.Env = EnvDevelopment
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("unknown environment: %s", c.Env)
	}
	if err := c.HTTPServer.Validate(); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.NATS.Validate(); err != nil {
		return err
	}
	if err := store.ValidateUniqueFields(c.Catalog.UniqueFields); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.PProf.Validate(); err != nil {
		return err
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	if err := c.Shutdown.Validate(); err != nil {
		return err
	}
	return nil
}
