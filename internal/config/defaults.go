package config

const (
	defaultWatchDir      = "~/cardpress/cards"
	defaultProcessedDir  = "~/cardpress/processed"
	defaultQuarantineDir = "~/cardpress/quarantine"
	defaultStagingDir    = "~/.local/share/cardpress/staging"
	defaultLogDir        = "~/.local/share/cardpress/logs"

	defaultCardWidthInches  = 2.5
	defaultCardHeightInches = 3.5
	defaultCardDPI          = 300
	defaultOutputFormat     = "jpeg"
	defaultJPEGQuality      = 95
	defaultMinSourceWidth   = 200
	defaultMinSourceHeight  = 280
	defaultAspectTolerance  = 0.1
	defaultFitMode          = "cover"

	defaultDebounceSeconds = 2
	defaultRescanSeconds   = 1

	defaultPrinterName        = "Canon_G3070_series"
	defaultMediaType          = "Cardstock"
	defaultPageSize           = "Custom.2.5x3.5in"
	defaultPollSeconds        = 2
	defaultPollTimeoutSeconds = 120

	defaultQueueCapacity           = 64
	defaultQueuePollSeconds        = 2
	defaultErrorRetrySeconds       = 10
	defaultHeartbeatSeconds        = 15
	defaultHeartbeatTimeoutSeconds = 120
	defaultMaxAttempts             = 3
	defaultBackoffInitialSeconds   = 2
	defaultBackoffMaxSeconds       = 60
	defaultNormalizeWorkers        = 2
	defaultNormalizeTimeoutSeconds = 30

	defaultNotifyRequestTimeout = 10

	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 60
)

// defaultExtensions mirrors the formats the normalizer can decode.
var defaultExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WatchDir:      defaultWatchDir,
			ProcessedDir:  defaultProcessedDir,
			QuarantineDir: defaultQuarantineDir,
			StagingDir:    defaultStagingDir,
			LogDir:        defaultLogDir,
		},
		Card: Card{
			WidthInches:      defaultCardWidthInches,
			HeightInches:     defaultCardHeightInches,
			DPI:              defaultCardDPI,
			OutputFormat:     defaultOutputFormat,
			JPEGQuality:      defaultJPEGQuality,
			MinSourceWidth:   defaultMinSourceWidth,
			MinSourceHeight:  defaultMinSourceHeight,
			AspectTolerance:  defaultAspectTolerance,
			FitMode:          defaultFitMode,
			OptimizeForPrint: true,
		},
		Intake: Intake{
			SupportedExtensions: append([]string{}, defaultExtensions...),
			DebounceSeconds:     defaultDebounceSeconds,
			RescanSeconds:       defaultRescanSeconds,
			ProcessExisting:     true,
		},
		Printer: Printer{
			Name:               defaultPrinterName,
			MediaType:          defaultMediaType,
			PageSize:           defaultPageSize,
			PollSeconds:        defaultPollSeconds,
			PollTimeoutSeconds: defaultPollTimeoutSeconds,
		},
		Queue: Queue{
			Capacity:                defaultQueueCapacity,
			PollSeconds:             defaultQueuePollSeconds,
			ErrorRetrySeconds:       defaultErrorRetrySeconds,
			HeartbeatSeconds:        defaultHeartbeatSeconds,
			HeartbeatTimeoutSeconds: defaultHeartbeatTimeoutSeconds,
			MaxAttempts:             defaultMaxAttempts,
			BackoffInitialSeconds:   defaultBackoffInitialSeconds,
			BackoffMaxSeconds:       defaultBackoffMaxSeconds,
			NormalizeWorkers:        defaultNormalizeWorkers,
			NormalizeTimeoutSeconds: defaultNormalizeTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completed:      true,
			Quarantined:    true,
			QueueDrained:   true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
