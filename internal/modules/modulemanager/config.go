package modulemanager

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ModuleConfig controls which modules load
type ModuleConfig struct {
	Modules struct {
		Disabled []string `yaml:"disabled"`
	} `yaml:"modules"`
}

// GetDefaultConfigPath returns the module config location, overridable via
// MODULES_CONFIG_PATH.
func GetDefaultConfigPath() string {
	if path := os.Getenv("MODULES_CONFIG_PATH"); path != "" {
		return path
	}
	return "./config/modules.yaml"
}

// LoadConfig reads the module configuration. A missing file yields the empty
// config, not an error.
func LoadConfig(path string) (*ModuleConfig, error) {
	config := &ModuleConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}
	return config, nil
}
