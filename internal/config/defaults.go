package config

const (
	defaultDataDir            = "~/.local/share/conveyor"
	defaultLogDir             = "~/.local/share/conveyor/logs"
	defaultUploadDir          = "~/uploads"
	defaultThumbnailDir       = "~/.local/share/conveyor/thumbnails"
	defaultMaxConcurrentTasks = 3
	defaultStageParallelism   = 4
	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10
	defaultMaxRetries         = 3
	defaultBackoffSeconds     = 2
	defaultBackoffCap         = 60
	defaultResultTTL          = 3600
	defaultCacheMaxEntries    = 1024
	defaultStageTimeout       = 300
	defaultPipelineTimeout    = 1800
	defaultWatchInterval      = 5
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:      defaultDataDir,
			LogDir:       defaultLogDir,
			UploadDir:    defaultUploadDir,
			ThumbnailDir: defaultThumbnailDir,
		},
		Workers: Workers{
			MaxConcurrentTasks: defaultMaxConcurrentTasks,
			StageParallelism:   defaultStageParallelism,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Retry: Retry{
			AutoRetry:      true,
			MaxRetries:     defaultMaxRetries,
			BackoffSeconds: defaultBackoffSeconds,
			BackoffCap:     defaultBackoffCap,
		},
		Cache: Cache{
			ResultTTL:  defaultResultTTL,
			MaxEntries: defaultCacheMaxEntries,
		},
		Stages: Stages{
			StageTimeout:    defaultStageTimeout,
			PipelineTimeout: defaultPipelineTimeout,
		},
		Watch: Watch{
			Enabled:  false,
			Interval: defaultWatchInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
