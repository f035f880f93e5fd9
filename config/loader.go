package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/shlex"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/mensylisir/xmguest/common"
)

// Loader handles loading and initial parsing of the GuestConfig from a file.
type Loader struct {
	filePath string
}

func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads the configuration file, unmarshals it into GuestConfig and
// validates its structure. Defaulting is handled separately by SetDefaults.
func (l *Loader) Load() (*GuestConfig, error) {
	if l.filePath == "" {
		return nil, fmt.Errorf("configuration file path is empty")
	}
	content, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file '%s'", l.filePath)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("configuration file '%s' is empty", l.filePath)
	}
	cfg, err := Parse(content)
	if err != nil {
		return nil, errors.Wrapf(err, "config '%s'", l.filePath)
	}
	return cfg, nil
}

// Parse unmarshals and validates raw YAML.
func Parse(content []byte) (*GuestConfig, error) {
	var cfg GuestConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config YAML")
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the structure of cfg. It does not require authentication
// data on hosts, since the CLI may supply it.
func Validate(cfg *GuestConfig) error {
	if cfg.APIVersion == "" {
		return fmt.Errorf("config validation failed: apiVersion is a required field")
	}
	if cfg.Kind != Kind {
		return fmt.Errorf("config validation failed: kind must be '%s', got '%s'", Kind, cfg.Kind)
	}
	if cfg.Metadata.Name == "" {
		return fmt.Errorf("config validation failed: metadata.name is a required field")
	}
	if cfg.Spec == nil {
		return fmt.Errorf("config validation failed: spec section is missing or empty")
	}
	if err := validateSettings(&cfg.Spec.Settings); err != nil {
		return errors.Wrap(err, "config validation failed")
	}
	if cfg.Spec.Log.Level != "" {
		if _, err := logrus.ParseLevel(cfg.Spec.Log.Level); err != nil {
			return errors.Wrap(err, "config validation failed: log.level")
		}
	}

	seen := make(map[string]bool, len(cfg.Spec.Hosts))
	for i, h := range cfg.Spec.Hosts {
		if strings.TrimSpace(h.Name) == "" {
			return fmt.Errorf("config validation failed: hosts[%d].name is required", i)
		}
		if seen[h.Name] {
			return fmt.Errorf("config validation failed: duplicate host name '%s'", h.Name)
		}
		seen[h.Name] = true
		if strings.TrimSpace(h.Address) == "" {
			return fmt.Errorf("config validation failed: address is required for host '%s'", h.Name)
		}
		if h.Port < 0 || h.Port > 65535 {
			return fmt.Errorf("config validation failed: invalid port %d for host '%s'", h.Port, h.Name)
		}
		for _, g := range h.Guests {
			if strings.ContainsAny(g, " '\"") || strings.TrimSpace(g) == "" {
				return fmt.Errorf("config validation failed: invalid guest '%s' for host '%s'", g, h.Name)
			}
		}
	}
	return nil
}

func validateSettings(s *SettingsSpec) error {
	if s.Shell != "" {
		parts, err := shlex.Split(s.Shell)
		if err != nil {
			return errors.Wrapf(err, "settings.shell %q cannot be split", s.Shell)
		}
		if len(parts) == 0 {
			return fmt.Errorf("settings.shell %q names no program", s.Shell)
		}
	}
	if s.SudoPrefix != "" && strings.Count(s.SudoPrefix, "%s") != 1 {
		return fmt.Errorf("settings.sudoPrefix %q must contain exactly one %%s for the prompt", s.SudoPrefix)
	}
	switch common.PathBehavior(s.PathBehavior) {
	case "", common.PathAppend, common.PathPrepend, common.PathReplace:
	default:
		return fmt.Errorf("settings.pathBehavior must be one of append, prepend, replace; got '%s'", s.PathBehavior)
	}
	return nil
}
