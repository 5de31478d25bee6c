// Package configloader loads service configuration from a YAML file, a .env file
// and the process environment, in increasing order of priority.
package configloader

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	defaultConfigFile = "config.yaml"
	defaultEnvFile    = ".env"
)

type Validator interface {
	Validate() error
}

// Options overrides the file locations used by Load.
type Options struct {
	ConfigFile string
	EnvFile    string
}

func Load[T Validator](serviceName string) (T, error) {
	return LoadWithOptions[T](serviceName, Options{})
}

func LoadWithOptions[T Validator](serviceName string, opts Options) (T, error) {
	var cfg T
	// Create a new Koanf instance
	k := koanf.New(".")

	// envPrefix is set to <SERVICE_NAME>_ to match environment variables.
	envPrefix := fmt.Sprintf("%s_", strings.ToUpper(serviceName))
	configFile := opts.ConfigFile
	if configFile == "" {
		configFile = os.Getenv(envPrefix + "CONFIG_FILE")
	}
	if configFile == "" {
		configFile = defaultConfigFile
	}
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = defaultEnvFile
	}

	// 1. Load configuration from yaml file
	if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("WARN: error loading YAML config file '%s': %v", configFile, err)
		}
	}

	// 2. Load environment variables from .env file
	envTransformer := func(key string) string {
		key = strings.ToLower(key)
		key = strings.TrimPrefix(key, strings.ToLower(envPrefix))
		return strings.ReplaceAll(key, "_", ".")
	}
	if envFileMap, err := godotenv.Read(envFile); err == nil {
		envMap := make(map[string]any)
		for key, value := range envFileMap {
			if !strings.HasPrefix(strings.ToUpper(key), envPrefix) {
				continue
			}
			envMap[envTransformer(key)] = splitList(value)
		}
		// Load the envMap into Koanf
		if err := k.Load(confmap.Provider(envMap, "."), nil); err != nil {
			log.Printf("WARN: error loading .env config: %v", err)
		}
	} else if !os.IsNotExist(err) {
		log.Printf("WARN: error reading .env file: %v", err)
	}

	// 3. Load environment variables from the system, the highest priority
	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, any) {
		return envTransformer(key), splitList(value)
	})
	if err := k.Load(envProvider, nil); err != nil {
		log.Printf("WARN: error loading system env vars: %v", err)
	}

	// 4. Unmarshal the configuration into the Config struct
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("error unmarshalling config: %w", err)
	}

	// 5. Validate the configuration
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// splitList turns comma-separated values into a list, e.g. "nats://a:4222,nats://b:4222".
func splitList(value string) any {
	if !strings.Contains(value, ",") {
		return value
	}
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
