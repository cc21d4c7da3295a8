package backend

import (
	"fmt"

	"costbook/internal/config"
	"costbook/internal/services"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: backendType,

		SQLiteDBPath: appConfig.SQLiteDBPath,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,

		CacheTTL:  appConfig.SnapshotCacheTTL,
		CacheSize: appConfig.SnapshotCacheSize,
		Currency:  appConfig.Currency,

		ExportInterval:   appConfig.SyncInterval,
		ExportBatchSize:  appConfig.SyncBatchSize,
		ExportMaxRetries: appConfig.ExportMaxRetries,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case MemoryBackend:
		// Nothing to check
	}

	// AMQP is optional, but a half-configured broker is not.
	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == "") {
		return fmt.Errorf("AMQP exchange and queue are required when AMQP URL is set")
	}
	if c.CacheTTL > 0 && c.CacheSize < 1 {
		return fmt.Errorf("snapshot cache size must be at least 1, got %d", c.CacheSize)
	}
	return nil
}

// exportConfig fills unset export settings with defaults.
func (c Config) exportConfig() services.ExportProcessorConfig {
	d := services.DefaultExportProcessorConfig()
	if c.ExportInterval > 0 {
		d.PollInterval = c.ExportInterval
	}
	if c.ExportBatchSize > 0 {
		d.BatchSize = c.ExportBatchSize
	}
	if c.ExportMaxRetries > 0 {
		d.MaxRetries = c.ExportMaxRetries
	}
	return d
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}
