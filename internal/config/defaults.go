package config

const (
	defaultInputBase            = "/net/dk-server"
	defaultOutputBase           = "/net/dk-server"
	defaultScratchDir           = "/scratch"
	defaultLogDir               = "~/.local/share/behaviorpipe/logs"
	defaultTransferMode         = TransferCopy
	defaultTransferBinary       = "rclone"
	defaultScratchRetentionDays = 7
	defaultEncoderBinary        = "ffmpeg"
	defaultFrameRate            = 40
	defaultPoseCommand          = "dlc-analyze"
	defaultModelDir             = "~/models"
	defaultTopViewConfig        = "topview/config.yaml"
	defaultWhiskerConfig        = "whiskers/config.yaml"
	defaultTopShuffle           = 3
	defaultLeftShuffle          = 1
	defaultRightShuffle         = 1
	defaultTransformCommand     = "split-views"
	defaultFrameDataCommand     = "write-frame-data"
	defaultContrastFactor       = 1.05
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InputBase:  defaultInputBase,
			OutputBase: defaultOutputBase,
			ScratchDir: defaultScratchDir,
			LogDir:     defaultLogDir,
		},
		Hosts: defaultHosts(),
		Transfer: Transfer{
			Mode:   defaultTransferMode,
			Binary: defaultTransferBinary,
		},
		Workflow: Workflow{
			ScratchRetentionDays: defaultScratchRetentionDays,
		},
		Encoder: Encoder{
			Binary:          defaultEncoderBinary,
			FrameRate:       defaultFrameRate,
			ImageExtensions: []string{".jpg", ".jpeg"},
		},
		Pose: Pose{
			Command:       defaultPoseCommand,
			ModelDir:      defaultModelDir,
			TopViewConfig: defaultTopViewConfig,
			WhiskerConfig: defaultWhiskerConfig,
			TopShuffle:    defaultTopShuffle,
			LeftShuffle:   defaultLeftShuffle,
			RightShuffle:  defaultRightShuffle,
		},
		Transform: Transform{
			Command:          defaultTransformCommand,
			FrameDataCommand: defaultFrameDataCommand,
			ContrastFactor:   defaultContrastFactor,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

func defaultHosts() map[string]Host {
	return map[string]Host{
		"lil-whisker": {CamLocation: "Topviewmovies", Perspective: PerspectiveTop},
		"gyri":        {CamLocation: "eyemovies/Rightcam2", Perspective: PerspectiveSide},
	}
}
