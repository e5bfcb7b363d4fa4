package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the storage roots the pipeline reads from and writes to.
type Paths struct {
	InputBase            string `toml:"input_base"`
	OutputBase           string `toml:"output_base"`
	ScratchDir           string `toml:"scratch_dir"`
	LogDir               string `toml:"log_dir"`
	UseAbsoluteLocations bool   `toml:"use_absolute_locations"`
}

// Host describes where a capture host drops its recordings and which camera
// perspective those recordings use.
type Host struct {
	CamLocation string `toml:"cam_location"`
	Perspective string `toml:"perspective"`
}

// Transfer controls how artifacts leave scratch storage.
type Transfer struct {
	Mode   string `toml:"mode"`
	Binary string `toml:"binary"`
}

// Workflow contains batch scheduling settings.
type Workflow struct {
	Workers              int  `toml:"workers"`
	CleanupScratch       bool `toml:"cleanup_scratch"`
	ScratchRetentionDays int  `toml:"scratch_retention_days"`
}

// Encoder configures the frame-sequence encoder.
type Encoder struct {
	Binary          string   `toml:"binary"`
	FrameRate       int      `toml:"frame_rate"`
	ImageExtensions []string `toml:"image_extensions"`
}

// Pose configures the pose analyzer.
type Pose struct {
	Command       string `toml:"command"`
	ModelDir      string `toml:"model_dir"`
	TopViewConfig string `toml:"top_view_config"`
	WhiskerConfig string `toml:"whisker_config"`
	TopShuffle    int    `toml:"top_shuffle"`
	LeftShuffle   int    `toml:"left_shuffle"`
	RightShuffle  int    `toml:"right_shuffle"`
}

// Transform configures the view splitter and frame-data writer.
type Transform struct {
	Command          string  `toml:"command"`
	FrameDataCommand string  `toml:"frame_data_command"`
	ContrastFactor   float64 `toml:"contrast_factor"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for behaviorpipe.
//
// Configuration sections by subsystem:
//   - Paths: input, output, scratch and log roots
//   - Hosts: capture host to camera location mapping
//   - Transfer: publication mode and transfer binary
//   - Workflow: worker count and scratch cleanup
//   - Encoder, Pose, Transform: external collaborator settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths     Paths           `toml:"paths"`
	Hosts     map[string]Host `toml:"hosts"`
	Transfer  Transfer        `toml:"transfer"`
	Workflow  Workflow        `toml:"workflow"`
	Encoder   Encoder         `toml:"encoder"`
	Pose      Pose            `toml:"pose"`
	Transform Transform       `toml:"transform"`
	Logging   Logging         `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/behaviorpipe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("behaviorpipe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a run writes into before any
// work-unit is touched. The output base is best-effort because network
// storage may be mounted lazily.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ScratchDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.OutputBase) != "" {
		_ = os.MkdirAll(c.Paths.OutputBase, 0o755)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
