package config

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateHosts(); err != nil {
		return err
	}
	if err := c.validateTransfer(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validatePose(); err != nil {
		return err
	}
	if err := c.validateTransform(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	for key, value := range map[string]string{
		"paths.input_base":  c.Paths.InputBase,
		"paths.output_base": c.Paths.OutputBase,
		"paths.scratch_dir": c.Paths.ScratchDir,
		"paths.log_dir":     c.Paths.LogDir,
	} {
		if value == "" {
			return fmt.Errorf("%s must be set", key)
		}
		if !filepath.IsAbs(value) {
			return fmt.Errorf("%s must be an absolute path, got %q", key, value)
		}
	}
	return nil
}

func (c *Config) validateHosts() error {
	for name, host := range c.Hosts {
		switch host.Perspective {
		case PerspectiveTop, PerspectiveSide:
		default:
			return fmt.Errorf("hosts.%s.perspective must be %q or %q, got %q", name, PerspectiveTop, PerspectiveSide, host.Perspective)
		}
	}
	return nil
}

func (c *Config) validateTransfer() error {
	switch c.Transfer.Mode {
	case TransferCopy, TransferMove:
		return nil
	default:
		return fmt.Errorf("transfer.mode must be %q or %q, got %q", TransferCopy, TransferMove, c.Transfer.Mode)
	}
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.Workers < 0 {
		return errors.New("workflow.workers must be zero (auto) or positive")
	}
	if c.Workflow.ScratchRetentionDays < 0 {
		return errors.New("workflow.scratch_retention_days must be non-negative")
	}
	return nil
}

func (c *Config) validatePose() error {
	if c.Pose.TopShuffle < 0 || c.Pose.LeftShuffle < 0 || c.Pose.RightShuffle < 0 {
		return errors.New("pose shuffle indices must be non-negative")
	}
	return nil
}

func (c *Config) validateTransform() error {
	if c.Transform.ContrastFactor <= 0 {
		return errors.New("transform.contrast_factor must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be non-negative")
	}
	return nil
}
