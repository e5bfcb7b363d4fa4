package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeHosts()
	c.normalizeTransfer()
	c.normalizeEncoder()
	if err := c.normalizePose(); err != nil {
		return err
	}
	c.normalizeTransform()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.InputBase, err = expandPath(strings.TrimSpace(c.Paths.InputBase)); err != nil {
		return fmt.Errorf("paths.input_base: %w", err)
	}
	if c.Paths.OutputBase, err = expandPath(strings.TrimSpace(c.Paths.OutputBase)); err != nil {
		return fmt.Errorf("paths.output_base: %w", err)
	}
	if c.Paths.ScratchDir, err = expandPath(strings.TrimSpace(c.Paths.ScratchDir)); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeHosts() {
	if len(c.Hosts) == 0 {
		c.Hosts = defaultHosts()
		return
	}
	normalized := make(map[string]Host, len(c.Hosts))
	for name, host := range c.Hosts {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		host.CamLocation = strings.Trim(strings.TrimSpace(host.CamLocation), "/")
		host.Perspective = strings.ToLower(strings.TrimSpace(host.Perspective))
		if host.Perspective == "" {
			host.Perspective = PerspectiveTop
		}
		normalized[name] = host
	}
	c.Hosts = normalized
}

func (c *Config) normalizeTransfer() {
	c.Transfer.Mode = strings.ToLower(strings.TrimSpace(c.Transfer.Mode))
	if c.Transfer.Mode == "" {
		c.Transfer.Mode = defaultTransferMode
	}
	c.Transfer.Binary = strings.TrimSpace(c.Transfer.Binary)
	if c.Transfer.Binary == "" {
		c.Transfer.Binary = defaultTransferBinary
	}
}

func (c *Config) normalizeEncoder() {
	c.Encoder.Binary = strings.TrimSpace(c.Encoder.Binary)
	if c.Encoder.Binary == "" {
		c.Encoder.Binary = defaultEncoderBinary
	}
	if c.Encoder.FrameRate <= 0 {
		c.Encoder.FrameRate = defaultFrameRate
	}
	exts := make([]string, 0, len(c.Encoder.ImageExtensions))
	seen := make(map[string]struct{}, len(c.Encoder.ImageExtensions))
	for _, ext := range c.Encoder.ImageExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		exts = []string{".jpg", ".jpeg"}
	}
	c.Encoder.ImageExtensions = exts
}

func (c *Config) normalizePose() error {
	c.Pose.Command = strings.TrimSpace(c.Pose.Command)
	var err error
	if c.Pose.ModelDir, err = expandPath(strings.TrimSpace(c.Pose.ModelDir)); err != nil {
		return fmt.Errorf("pose.model_dir: %w", err)
	}
	c.Pose.TopViewConfig = strings.TrimSpace(c.Pose.TopViewConfig)
	c.Pose.WhiskerConfig = strings.TrimSpace(c.Pose.WhiskerConfig)
	return nil
}

func (c *Config) normalizeTransform() {
	c.Transform.Command = strings.TrimSpace(c.Transform.Command)
	c.Transform.FrameDataCommand = strings.TrimSpace(c.Transform.FrameDataCommand)
	if c.Transform.ContrastFactor == 0 {
		c.Transform.ContrastFactor = defaultContrastFactor
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
