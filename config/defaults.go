package config

import "time"

const (
	DefaultAdminName  = "admin"
	DefaultKeyFile    = "./mediapriv.pem"
	DefaultIndexFile  = "_file.csv"
	DefaultConfigPath = "config.yaml"
)

// DefaultConfig : the configuration used when no file overrides it.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:           ":3004",
			Prefix:         "/",
			MaxUploadBytes: 500_000_000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Auth: AuthConfig{
			AuthorizedVersions: []string{"0.1"},
			IdentityNamespace:  "media.rudi.aqmo.org",
			TokenLifetime:      300 * time.Second,
			Groups: map[string]string{
				"admin":     "4",
				"delegate":  "100",
				"auth":      "101",
				"producer":  "102",
				"monitor":   "103",
				"anonymous": "1000",
			},
			Users: map[string]UserConfig{
				"admin": {
					ID:      "4",
					Groups:  []string{"admin", "delegate"},
					KeyFile: DefaultKeyFile,
				},
				"rudimanager": {ID: "101", Groups: []string{"auth"}},
				"rudiprod":    {ID: "102", Groups: []string{"producer"}},
				"rudiadmin":   {ID: "103", Groups: []string{"monitor", "producer"}},
			},
			SystemAcl: AclConfig{
				Core: []string{"admin", "admin", "rwx", "rwx", "---"},
				Groups: map[string]string{
					"auth":      "r-x",
					"producer":  "-w-",
					"monitor":   "r--",
					"anonymous": "---",
				},
			},
		},
		Storage: StorageConfig{
			MediaDir:         "./media",
			ConnectorTimeout: 120 * time.Second,
			FetchTimeout:     30 * time.Second,
			Zones: []ZoneConfig{
				{Name: "zone1", StagingTimeout: 300 * time.Second, DestroyTimeout: 600 * time.Second},
			},
		},
		Audit: AuditConfig{
			Driver:  "none",
			Timeout: 5 * time.Second,
			Redis:   RedisConfig{Stream: "media:events"},
		},
	}
}
