package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate : checks struct tags, then the rules tags cannot express.
func Validate(cfg *AppConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	var errs []error
	for _, mask := range cfg.Auth.SystemAcl.Core[2:] {
		if !validMask(mask) {
			errs = append(errs, fmt.Errorf("auth.system_acl.core: invalid mask %q", mask))
		}
	}
	for name, mask := range cfg.Auth.SystemAcl.Users {
		if !validMask(mask) {
			errs = append(errs, fmt.Errorf("auth.system_acl.users.%s: invalid mask %q", name, mask))
		}
	}
	for name, mask := range cfg.Auth.SystemAcl.Groups {
		if !validMask(mask) {
			errs = append(errs, fmt.Errorf("auth.system_acl.groups.%s: invalid mask %q", name, mask))
		}
	}
	if _, ok := cfg.Auth.Users[DefaultAdminName]; !ok {
		errs = append(errs, fmt.Errorf("auth.users: %q is required", DefaultAdminName))
	}

	seen := make(map[string]bool, len(cfg.Storage.Zones))
	for _, zone := range cfg.Storage.Zones {
		if seen[zone.Name] {
			errs = append(errs, fmt.Errorf("storage.zones: duplicate zone %q", zone.Name))
		}
		seen[zone.Name] = true
	}

	switch cfg.Audit.Driver {
	case "postgres":
		if cfg.Audit.Database.DSN == "" {
			errs = append(errs, errors.New("audit.database.dsn is required for the postgres driver"))
		}
	case "redis":
		if cfg.Audit.Redis.Addr == "" {
			errs = append(errs, errors.New("audit.redis.addr is required for the redis driver"))
		}
	}

	if cfg.S3.Enabled && cfg.S3.Bucket == "" {
		errs = append(errs, errors.New("s3.bucket is required when the index archive is enabled"))
	}

	return errors.Join(errs...)
}

func validMask(mask string) bool {
	if len(mask) != 3 {
		return false
	}
	for i, allowed := range "rwx" {
		if rune(mask[i]) != allowed && mask[i] != '-' {
			return false
		}
	}
	return true
}

func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		field := strings.TrimPrefix(fieldErr.Namespace(), "AppConfig.")
		switch fieldErr.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of [%s]", field, fieldErr.Param()))
		case "min", "gt", "len":
			messages = append(messages, fmt.Sprintf("%s must satisfy %s=%s", field, fieldErr.Tag(), fieldErr.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s failed on %s", field, fieldErr.Tag()))
		}
	}

	return fmt.Errorf("invalid configuration: %s", strings.Join(messages, "; "))
}
