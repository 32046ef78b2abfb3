package config

import "mqfile/internal/msgq"

const (
	defaultQueueKey               = msgq.DefaultKey
	defaultQueuePermissions       = msgq.DefaultPermissions
	defaultPollIntervalMS         = 10
	defaultMaxPollIntervalMS      = 200
	defaultStateDir               = "~/.local/share/mqfile"
	defaultMaxTransfers           = 4
	defaultShutdownTimeoutSeconds = 10
	defaultClientPriority         = 1
	defaultHistoryEnabled         = true
	defaultHistoryFile            = "history.db"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Queue: Queue{
			Key:               defaultQueueKey,
			Permissions:       defaultQueuePermissions,
			PollIntervalMS:    defaultPollIntervalMS,
			MaxPollIntervalMS: defaultMaxPollIntervalMS,
		},
		Server: Server{
			StateDir:               defaultStateDir,
			MaxTransfers:           defaultMaxTransfers,
			ShutdownTimeoutSeconds: defaultShutdownTimeoutSeconds,
		},
		Client: Client{
			DefaultPriority: defaultClientPriority,
		},
		History: History{
			Enabled: defaultHistoryEnabled,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
