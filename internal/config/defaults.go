package config

const (
	defaultLibraryDir         = "~/library"
	defaultDataDir            = "~/.local/share/curator"
	defaultLogDir             = "~/.local/share/curator/logs"
	defaultAPIBind            = "127.0.0.1:7519"
	defaultProviderSourceType = "catalog"
	defaultProviderTimeout    = 15
	defaultWorkers            = 2
	defaultQueueDepth         = 64
	defaultErrorRetryInterval = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir: defaultLibraryDir,
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Provider: Provider{
			SourceType:     defaultProviderSourceType,
			TimeoutSeconds: defaultProviderTimeout,
		},
		Workflow: Workflow{
			Workers:            defaultWorkers,
			QueueDepth:         defaultQueueDepth,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
