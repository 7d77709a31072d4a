package config

const (
	defaultDataDir                = "~/.local/share/fieldsync"
	defaultAPIBind                = "127.0.0.1:7531"
	defaultBusyTimeoutMS          = 5000
	defaultMaxRetries             = 5
	defaultBaseDelayMS            = 1000
	defaultJitterMS               = 500
	defaultSendingTimeoutSeconds  = 300
	defaultSyncTag                = "fieldsync-queue"
	defaultPollIntervalSeconds    = 30
	defaultRemoteTimeoutSeconds   = 30
	defaultRemoteHealthPath       = "/health"
	defaultProbeIntervalSeconds   = 15
	defaultLocalModifiedAtKey     = "modifiedAt"
	defaultServerUpdatedAtKey     = "updatedAt"
	defaultServerUpdatedByKey     = "updatedBy"
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogMaxSizeMB           = 20
	defaultLogMaxBackups          = 5
	defaultLogRetentionDays       = 30
	defaultBroadcastDirName       = "broadcast"
	defaultBroadcastRetentionSecs = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			APIBind: defaultAPIBind,
		},
		Store: Store{
			BusyTimeoutMS: defaultBusyTimeoutMS,
		},
		Delivery: Delivery{
			MaxRetries:            defaultMaxRetries,
			BaseDelayMS:           defaultBaseDelayMS,
			JitterMS:              defaultJitterMS,
			SendingTimeoutSeconds: defaultSendingTimeoutSeconds,
		},
		Sync: Sync{
			Tag:                    defaultSyncTag,
			PollIntervalSeconds:    defaultPollIntervalSeconds,
			BackgroundSync:         true,
			BroadcastRetentionSecs: defaultBroadcastRetentionSecs,
		},
		Remote: Remote{
			TimeoutSeconds: defaultRemoteTimeoutSeconds,
			HealthPath:     defaultRemoteHealthPath,
		},
		Connectivity: Connectivity{
			ProbeIntervalSeconds: defaultProbeIntervalSeconds,
			Netlink:              true,
		},
		Conflict: Conflict{
			LocalModifiedAtKey: defaultLocalModifiedAtKey,
			ServerUpdatedAtKey: defaultServerUpdatedAtKey,
			ServerUpdatedByKey: defaultServerUpdatedByKey,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			ItemFailed:     true,
			Conflicts:      true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			MaxSizeMB:     defaultLogMaxSizeMB,
			MaxBackups:    defaultLogMaxBackups,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
