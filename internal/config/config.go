// Package config loads the deployment configuration. The result is a
// plain value handed into the pipeline; nothing reads configuration from
// process-wide state after startup.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds everything one deployment needs besides the target host.
type Config struct {
	// Artifact
	SourceDir         string `yaml:"source_dir"`
	InstallerFilename string `yaml:"installer_filename"`
	StagingDir        string `yaml:"staging_dir"`
	InstallDir        string `yaml:"install_dir"`
	VerifyRelPath     string `yaml:"verify_rel_path"`

	// Installer options
	AddToPath         bool `yaml:"add_to_path"`
	RegisterAsDefault bool `yaml:"register_as_default"`

	// Remote execution
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Port     int    `yaml:"port"`
	UseSSL   bool   `yaml:"use_ssl"`

	// Staging transport: "share" or "sftp"
	Transport  string `yaml:"transport"`
	ShareMount string `yaml:"share_mount"` // local mount of the admin share, optional
	SSHPort    int    `yaml:"ssh_port"`
	SSHKeyPath string `yaml:"ssh_key_path"`

	// Behavior
	InstallTimeoutSecs      int  `yaml:"install_timeout"` // 0 waits indefinitely
	EscalateMissingArtifact bool `yaml:"escalate_missing_artifact"`

	// Journal
	JournalPath string `yaml:"journal_path"` // empty disables the attempt journal
}

// Default returns a config with sane defaults.
func Default() Config {
	return Config{
		InstallerFilename: "installer.exe",
		StagingDir:        `C:\Staging`,
		InstallDir:        `C:\Program Files\App`,
		AddToPath:         true,
		RegisterAsDefault: false,
		Transport:         "share",
		SSHPort:           22,
	}
}

// Load reads the YAML file, applies env overrides, and validates. The
// returned value is complete; callers never consult the environment again.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Credentials are the usual thing kept out of config files.
	if v := os.Getenv("WINSTALL_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("WINSTALL_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("WINSTALL_SOURCE_DIR"); v != "" {
		cfg.SourceDir = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields the pipeline cannot default.
func (c *Config) Validate() error {
	if c.SourceDir == "" {
		return fmt.Errorf("source_dir is required")
	}
	if c.InstallerFilename == "" {
		return fmt.Errorf("installer_filename is required")
	}
	switch strings.ToLower(c.Transport) {
	case "share", "sftp":
	default:
		return fmt.Errorf("transport must be \"share\" or \"sftp\", got %q", c.Transport)
	}
	if c.InstallTimeoutSecs < 0 {
		return fmt.Errorf("install_timeout must not be negative")
	}
	return nil
}
