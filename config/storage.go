package config

// StorageConfig defines the storage backend for run state
type StorageConfig struct {
	Backend string `hcl:"backend,optional"` // "memory", "sqlite", or "postgres"
	Path    string `hcl:"path,optional"`    // SQLite file path (default: ".maestro/store.db")
	DSN     string `hcl:"dsn,optional"`     // Postgres connection string
}

// Defaults fills in default values for unset fields
func (s *StorageConfig) Defaults() {
	if s.Backend == "" {
		s.Backend = "memory"
	}
	if s.Path == "" {
		s.Path = ".maestro/store.db"
	}
}
