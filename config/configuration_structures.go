package config

import "time"

type ServerConfig struct {
	Addr      string `yaml:"addr" validate:"required"`
	Prefix    string `yaml:"prefix"`
	PublicURL string `yaml:"public_url"`
	// MaxUploadBytes caps the body of a post request.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" validate:"min=0"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// UserConfig : a statically configured identity.
// ID is either a numeric id or a UUIDv4.
type UserConfig struct {
	ID         string   `yaml:"id" validate:"required"`
	Password   string   `yaml:"password"`
	Groups     []string `yaml:"groups" validate:"required,min=1"`
	KeyFile    string   `yaml:"key_file"`
	PublicKeys []string `yaml:"public_keys"`
}

// AclConfig : core holds owner user, owner group, owner mask, group mask and other mask.
type AclConfig struct {
	Core   []string          `yaml:"core" validate:"len=5"`
	Users  map[string]string `yaml:"users"`
	Groups map[string]string `yaml:"groups"`
}

type AuthConfig struct {
	AuthorizedVersions []string              `yaml:"authorized_versions" validate:"required,min=1"`
	IdentityNamespace  string                `yaml:"identity_namespace" validate:"required"`
	TokenLifetime      time.Duration         `yaml:"token_lifetime" validate:"gt=0"`
	Groups             map[string]string     `yaml:"groups" validate:"required,min=1"`
	Users              map[string]UserConfig `yaml:"users" validate:"required,min=1,dive"`
	SystemAcl          AclConfig             `yaml:"system_acl"`
}

type ZoneConfig struct {
	Name  string `yaml:"name" validate:"required"`
	Path  string `yaml:"path"`
	Index string `yaml:"index"`
	// RawPath stores files under their media name instead of {uuid}_{name}.
	RawPath          bool          `yaml:"raw_path"`
	StagingTimeout   time.Duration `yaml:"staging_timeout" validate:"min=0"`
	DestroyTimeout   time.Duration `yaml:"destroy_timeout" validate:"min=0"`
	ConnectorTimeout time.Duration `yaml:"connector_timeout" validate:"min=0"`
}

type StorageConfig struct {
	MediaDir         string        `yaml:"media_dir" validate:"required"`
	ConnectorTimeout time.Duration `yaml:"connector_timeout" validate:"gt=0"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout" validate:"min=0"`
	Zones            []ZoneConfig  `yaml:"zones" validate:"required,min=1,dive"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
}

// AuditConfig : driver none disables the audit trail.
type AuditConfig struct {
	Driver   string         `yaml:"driver" validate:"oneof=none postgres redis"`
	Timeout  time.Duration  `yaml:"timeout" validate:"min=0"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
}

type S3Config struct {
	Enabled  bool   `yaml:"enabled"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	Local    bool   `yaml:"local"`
}
