package security

import (
	"fmt"
	"log/slog"
	"media-gateway/config"
	"media-gateway/internal/util"
	"slices"
	"strconv"
	"sync"
	"time"
)

// AclDB : the identity directory and the authority over permission decisions
// and delegation tokens.
type AclDB struct {
	namespace     string
	tokenLifetime time.Duration
	adminName     string
	now           func() time.Time
	logger        *slog.Logger

	mu         sync.RWMutex
	groups     map[string]*Group
	groupsByID map[int]*Group
	users      map[string]*User
	usersByID  map[int]*User
}

type Option func(*AclDB)

// WithClock : replaces the time source used for token issue and expiry.
func WithClock(now func() time.Time) Option {
	return func(a *AclDB) {
		a.now = now
	}
}

func NewAclDB(cfg *config.AuthConfig, logger *slog.Logger, opts ...Option) (*AclDB, error) {
	if logger == nil {
		logger = util.DiscardLogger()
	}
	acldb := &AclDB{
		namespace:     cfg.IdentityNamespace,
		tokenLifetime: cfg.TokenLifetime,
		adminName:     config.DefaultAdminName,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "ac")),
		groups:        make(map[string]*Group, len(cfg.Groups)),
		groupsByID:    make(map[int]*Group, len(cfg.Groups)),
		users:         make(map[string]*User, len(cfg.Users)),
		usersByID:     make(map[int]*User, len(cfg.Users)),
	}
	for _, opt := range opts {
		opt(acldb)
	}
	if acldb.tokenLifetime <= 0 {
		acldb.tokenLifetime = 300 * time.Second
	}

	for _, name := range sortedKeys(cfg.Groups) {
		if _, err := acldb.NewGroup(name, cfg.Groups[name]); err != nil {
			return nil, util.LogError("could not initialize ACL DB", err)
		}
	}
	for _, name := range sortedKeys(cfg.Users) {
		if _, err := acldb.NewUser(name, cfg.Users[name]); err != nil {
			return nil, util.LogError("could not initialize ACL DB", err)
		}
	}

	return acldb, nil
}

func (a *AclDB) Logger() *slog.Logger {
	return a.logger
}

func (a *AclDB) NewGroup(name, id string) (*Group, error) {
	numericID, uid, err := IDFromString(name, id, a.namespace)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.groupsByID[numericID]; ok {
		return nil, fmt.Errorf("group id %d already set in %s for %s", numericID, existing.Name, name)
	}
	group := &Group{Name: name, ID: numericID, UUID: uid}
	a.groups[name] = group
	a.groupsByID[numericID] = group
	return group, nil
}

// NewUser : registers a user. Key load failures are logged and leave the
// matching capability absent.
func (a *AclDB) NewUser(name string, desc config.UserConfig) (*User, error) {
	numericID, uid, err := IDFromString(name, desc.ID, a.namespace)
	if err != nil {
		return nil, err
	}

	user := &User{Name: name, ID: numericID, UUID: uid, Password: desc.Password}
	for _, gname := range desc.Groups {
		group := a.FindGroup(gname)
		if group == nil {
			return nil, fmt.Errorf("invalid group %q while initializing %s", gname, name)
		}
		user.Groups = append(user.Groups, group)
	}

	if desc.KeyFile != "" {
		if signer, err := ReadPrivateKeyFile(desc.KeyFile); err == nil {
			user.signingKey = signer
			a.logger.Debug("private key set up", slog.String("user", name), slog.String("file", desc.KeyFile))
		}
		if key, err := ReadPublicKeyFile(desc.KeyFile); err == nil {
			user.keys = append(user.keys, key)
			a.logger.Debug("public key set up", slog.String("user", name), slog.String("file", desc.KeyFile))
		} else {
			a.logger.Warn("could not read public key", slog.String("user", name), slog.String("file", desc.KeyFile), slog.Any("error", err))
		}
	}
	for _, path := range desc.PublicKeys {
		key, err := ReadPublicKeyFile(path)
		if err != nil {
			a.logger.Warn("could not read public key", slog.String("user", name), slog.String("file", path), slog.Any("error", err))
			continue
		}
		user.keys = append(user.keys, key)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.usersByID[numericID]; ok {
		return nil, fmt.Errorf("user id %d already set in %s for %s", numericID, existing.Name, name)
	}
	a.users[name] = user
	a.usersByID[numericID] = user
	return user, nil
}

// NewAcl : builds an ACL whose users and groups must all be known.
func (a *AclDB) NewAcl(desc config.AclConfig) (*Acl, error) {
	acl, err := parseAcl(desc)
	if err != nil {
		return nil, err
	}

	if a.lookupUser(acl.Owner) == nil {
		return nil, fmt.Errorf("user %s not found in acl %v", acl.Owner, desc.Core)
	}
	for name := range acl.UserMasks {
		if a.lookupUser(name) == nil {
			return nil, fmt.Errorf("user %s not found in acl %v", name, desc.Core)
		}
	}
	if a.lookupGroup(acl.Group) == nil {
		return nil, fmt.Errorf("group %s not found in acl %v", acl.Group, desc.Core)
	}
	for name := range acl.GroupMasks {
		if a.lookupGroup(name) == nil {
			return nil, fmt.Errorf("group %s not found in acl %v", name, desc.Core)
		}
	}
	return acl, nil
}

// FindGroup : by name or numeric id.
func (a *AclDB) FindGroup(nameOrID string) *Group {
	if nameOrID == "" || nameOrID == "-" {
		return nil
	}
	if group := a.lookupGroup(nameOrID); group != nil {
		return group
	}
	if id, err := strconv.Atoi(nameOrID); err == nil {
		a.mu.RLock()
		defer a.mu.RUnlock()
		return a.groupsByID[id]
	}
	return nil
}

// LookupUser : by name or numeric id.
func (a *AclDB) LookupUser(login string) *User {
	if user := a.lookupUser(login); user != nil {
		return user
	}
	if id, err := strconv.Atoi(login); err == nil {
		a.mu.RLock()
		defer a.mu.RUnlock()
		return a.usersByID[id]
	}
	return nil
}

func (a *AclDB) lookupUser(name string) *User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.users[name]
}

func (a *AclDB) lookupGroup(name string) *Group {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.groups[name]
}

// FindUser : resolves a login without password, E02 when unknown.
func (a *AclDB) FindUser(login, gname string) *AccessStatus {
	user := a.LookupUser(login)
	code := CodeNone
	if user == nil {
		code = CodeInvalidCredentials
	}
	return newAccessStatus(a, login, gname, user, code)
}

// Authenticate : resolves a login whose password must verify, E02 otherwise.
func (a *AclDB) Authenticate(login, gname, password string) *AccessStatus {
	user := a.LookupUser(login)
	if user != nil && !user.CheckPassword(password) {
		user = nil
	}
	code := CodeNone
	if user == nil {
		code = CodeInvalidCredentials
	}
	return newAccessStatus(a, login, gname, user, code)
}

func (a *AclDB) UserStatus(user *User, gname string) *AccessStatus {
	return newAccessStatus(a, user.Name, gname, user, CodeNone)
}

func (a *AclDB) ErrorStatus(code Code) *AccessStatus {
	return newAccessStatus(a, "-", "-", nil, code)
}

func (a *AclDB) AnonymousStatus() *AccessStatus {
	return newAccessStatus(a, "-", "-", nil, CodeNone)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
