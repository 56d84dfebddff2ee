package security

import (
	"encoding/base64"
	"log/slog"
	"media-gateway/config"
	"media-gateway/internal/util"
	"net/http"
	"slices"
	"strings"
)

const (
	AuthCookieName   = "rudi.media.auth"
	MediaCookieField = "media_cookie"
	VersionHeader    = "version"
	anyVersion       = "0.1"
)

// AccessControl : resolves request credentials into an AccessStatus and checks
// them against the system ACL.
type AccessControl struct {
	acldb     *AclDB
	systemAcl *Acl
	versions  []string
	logger    *slog.Logger
}

func NewAccessControl(cfg *config.AuthConfig, logger *slog.Logger, opts ...Option) (*AccessControl, error) {
	acldb, err := NewAclDB(cfg, logger, opts...)
	if err != nil {
		return nil, err
	}
	systemAcl, err := acldb.NewAcl(cfg.SystemAcl)
	if err != nil {
		return nil, util.LogError("invalid system acl", err)
	}
	return &AccessControl{
		acldb:     acldb,
		systemAcl: systemAcl,
		versions:  cfg.AuthorizedVersions,
		logger:    acldb.Logger(),
	}, nil
}

func (ac *AccessControl) AclDB() *AclDB {
	return ac.acldb
}

func (ac *AccessControl) validVersion(r *http.Request) bool {
	if len(ac.versions) == 0 || ac.versions[0] == anyVersion {
		return true
	}
	return slices.Contains(ac.versions, r.Header.Get(VersionHeader))
}

// GetAccessStatus : the identity presented by r, bound to a fresh request context.
func (ac *AccessControl) GetAccessStatus(w http.ResponseWriter, r *http.Request) *AccessStatus {
	status := ac.credentials(r)
	status.SetContext(NewRequestContext(w, r, ac.validVersion(r), ac.logger))
	return status
}

func (ac *AccessControl) credentials(r *http.Request) *AccessStatus {
	if authorization := r.Header.Get("Authorization"); authorization != "" {
		scheme, value, _ := strings.Cut(strings.TrimSpace(authorization), " ")
		switch strings.ToLower(scheme) {
		case "basic":
			return ac.basicStatus(strings.TrimSpace(value))
		case "bearer":
			return ac.acldb.FindIdsFromJwt(strings.TrimSpace(value))
		default:
			ac.logger.Warn("unsupported authorization type", slog.String("type", scheme))
			return ac.acldb.ErrorStatus(CodeInvalidMethod)
		}
	}

	if token := cookieToken(r); token != "" {
		return ac.acldb.FindIdsFromJwt(token)
	}
	return ac.acldb.AnonymousStatus()
}

// basicStatus : "login[@group]:password", the group follows the last '@'.
func (ac *AccessControl) basicStatus(encoded string) *AccessStatus {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ac.acldb.ErrorStatus(CodeInvalidMethod)
	}
	login, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return ac.acldb.ErrorStatus(CodeInvalidMethod)
	}

	gname := "-"
	if at := strings.LastIndex(login, "@"); at >= 0 {
		login, gname = login[:at], login[at+1:]
	}
	return ac.acldb.Authenticate(login, gname, password)
}

func cookieToken(r *http.Request) string {
	for _, cookie := range r.Cookies() {
		if cookie.Name == AuthCookieName && cookie.Value != "" {
			return cookie.Value
		}
	}
	if raw := r.Header.Get(MediaCookieField); raw != "" {
		cookies, err := http.ParseCookie(raw)
		if err != nil {
			return ""
		}
		for _, cookie := range cookies {
			if cookie.Name == AuthCookieName && cookie.Value != "" {
				return cookie.Value
			}
		}
	}
	return ""
}

// CheckSystemAccessStatus : evaluates status against the system ACL. On denial
// the bound context has already answered the request.
func (ac *AccessControl) CheckSystemAccessStatus(status *AccessStatus, mode Mask) (Mask, bool) {
	status.SetAcl(ac.systemAcl)
	if err := status.Refused(mode); err != nil {
		return status.Access, false
	}
	return status.Access, true
}

// ForgeJwt : forges a delegation token; failures are reported through the
// context bound to status.
func (ac *AccessControl) ForgeJwt(status *AccessStatus, userID, userName, groupName string, attributes map[string]any) (string, bool) {
	token, err := ac.acldb.ForgeJwtFor(userID, userName, groupName, attributes)
	if err != nil {
		if ctx := status.Context(); ctx != nil {
			decision := Decision{UserName: status.UserName, Access: NoAccess, Code: CodeOf(err)}
			if status.User != nil {
				decision.UserUUID = status.User.UUID
			}
			_ = ctx.Process(decision)
		}
		return "", false
	}
	return token, true
}
