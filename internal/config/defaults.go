package config

const (
	defaultLibraryDir         = "~/.local/share/folio/documents"
	defaultLogDir             = "~/.local/share/folio/logs"
	defaultInboxDir           = "~/.local/share/folio/inbox"
	defaultSubscriptBinary    = "subscript"
	defaultSegmentationModel  = "historical-manuscript"
	defaultTranscriptionModel = "gemini-pro-3"
	defaultSubscriptTimeout   = 3600
	defaultMaxAttempts        = 2
	defaultRetryDelaySeconds  = 10
	defaultWorkers            = 2
	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120
	defaultInboxOwner         = "inbox"
	defaultInboxSettleSeconds = 3
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir: defaultLibraryDir,
			LogDir:     defaultLogDir,
		},
		Subscript: Subscript{
			Binary:             defaultSubscriptBinary,
			SegmentationModel:  defaultSegmentationModel,
			TranscriptionModel: defaultTranscriptionModel,
			TimeoutSeconds:     defaultSubscriptTimeout,
			MaxAttempts:        defaultMaxAttempts,
			RetryDelaySeconds:  defaultRetryDelaySeconds,
		},
		Workflow: Workflow{
			Workers:            defaultWorkers,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		Inbox: Inbox{
			Dir:           defaultInboxDir,
			Owner:         defaultInboxOwner,
			Model:         defaultTranscriptionModel,
			SettleSeconds: defaultInboxSettleSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
