package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"os/user"
	"path"

	"gopkg.in/yaml.v2"

	"github.com/cpuview/cpuview/pkg/settings"
)

const (
	configDir  string = ".cpuview"
	configFile string = "config.yml"
)

// DefaultBackend is the backend REST root used when none is configured.
const DefaultBackend = "http://127.0.0.1:8000/api"

// DefaultDisassembleCount is the number of instructions requested per
// window when none is configured.
const DefaultDisassembleCount = 100

// Clipboard values.
const (
	ClipboardSystem = "system"
	ClipboardNone   = "none"
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Backend is the REST root of the backend service.
	Backend string `yaml:"backend"`
	// PushURL overrides the push channel URL derived from Backend.
	PushURL string `yaml:"push-url,omitempty"`

	// Commands aliases.
	Aliases map[string][]string `yaml:"aliases"`

	// Settings are the display settings used until the backend's are
	// loaded, keyed like the backend's settings.
	Settings map[string]string `yaml:"settings"`

	// DisassembleCount is the number of instructions per window.
	DisassembleCount int `yaml:"disassemble-count,omitempty"`

	// Clipboard is "system" to copy to the system clipboard or "none" to
	// only print copied text.
	Clipboard string `yaml:"clipboard,omitempty"`

	// Modified byte and instruction pointer colors (3/4 bit color codes as
	// defined here: https://en.wikipedia.org/wiki/ANSI_escape_code#Colors)
	ModifiedColor int `yaml:"modified-color,omitempty"`
	IPColor       int `yaml:"ip-color,omitempty"`
}

// BackendURL returns the configured backend or DefaultBackend.
func (c *Config) BackendURL() string {
	if c.Backend == "" {
		return DefaultBackend
	}
	return c.Backend
}

// Count returns the configured window size or DefaultDisassembleCount.
func (c *Config) Count() int {
	if c.DisassembleCount <= 0 {
		return DefaultDisassembleCount
	}
	return c.DisassembleCount
}

// DisplaySettings returns the default settings overridden by the settings
// section. Invalid entries are skipped and returned as errors.
func (c *Config) DisplaySettings() (settings.Settings, []error) {
	return settings.Default().Merge(c.Settings)
}

// UseSystemClipboard reports whether copied text goes to the system
// clipboard.
func (c *Config) UseSystemClipboard() bool {
	return c.Clipboard != ClipboardNone
}

// LoadConfig attempts to populate a Config object from the config.yml file.
func LoadConfig() *Config {
	err := createConfigPath()
	if err != nil {
		fmt.Printf("Could not create config directory: %v.", err)
		return &Config{}
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Printf("Unable to get config file path: %v.", err)
		return &Config{}
	}
	if _, err := os.Stat(fullConfigFile); os.IsNotExist(err) {
		if err := createDefaultConfig(fullConfigFile); err != nil {
			fmt.Printf("Error creating default config file: %v", err)
			return &Config{}
		}
	}
	c, err := LoadConfigFile(fullConfigFile)
	if err != nil {
		fmt.Printf("%v.", err)
		return &Config{}
	}
	return c
}

// LoadConfigFile reads the configuration at fullConfigFile.
func LoadConfigFile(fullConfigFile string) (*Config, error) {
	data, err := ioutil.ReadFile(fullConfigFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read config data: %v", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unable to decode config file: %v", err)
	}
	return &c, nil
}

// SaveConfig will marshal and save the config struct
// to disk.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}
	return SaveConfigFile(conf, fullConfigFile)
}

// SaveConfigFile writes conf to fullConfigFile.
func SaveConfigFile(conf *Config, fullConfigFile string) error {
	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(fullConfigFile)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create config file: %v", err)
	}
	defer f.Close()
	err = writeDefaultConfig(f)
	if err != nil {
		return fmt.Errorf("unable to write default configuration: %v", err)
	}
	return nil
}

func writeDefaultConfig(f *os.File) error {
	_, err := f.WriteString(
		`# Configuration file for cpuview.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# REST root of the backend service.
# backend: http://127.0.0.1:8000/api

# Push channel URL, derived from the backend URL if unset.
# push-url: ws://127.0.0.1:8000/ws

# Provided aliases will be added to the default aliases for a given command.
aliases:
  # command: ["alias1", "alias2"]

# Display settings used until the backend's settings are loaded.
settings:
  # listingCase: upper
  # registerNaming: plain
  # swapArguments: "true"
  # numberFormat: auto
  # negativeFormat: signed
  # negativeWidth: "64"
  # copyHexFormat: raw
  # showGdbComments: "true"
  # disassemblyFlavor: att

# Number of instructions requested per window.
# disassemble-count: 100

# Set to none to print copied text instead of using the system clipboard.
# clipboard: system

# ANSI foreground colors of modified bytes and of the instruction pointer marker.
# modified-color: 31
# ip-color: 32
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	userHomeDir := "."
	if home, err := os.UserHomeDir(); err == nil {
		userHomeDir = home
	} else if usr, err := user.Current(); err == nil {
		userHomeDir = usr.HomeDir
	}
	return path.Join(userHomeDir, configDir, file), nil
}
