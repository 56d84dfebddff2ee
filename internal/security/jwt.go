package security

import (
	"errors"
	"fmt"
	"log/slog"
	"media-gateway/config"
	"regexp"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DelegateGroup  = "delegate"
	externalPrefix = "ext::"
)

var jwtShape = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*$`)

// Claims : the payload of a delegation token.
type Claims struct {
	ClientID string         `json:"client_id,omitempty"`
	UserID   int            `json:"user_id,omitempty"`
	GroupID  int            `json:"group_id,omitempty"`
	XAttr    map[string]any `json:"xattr,omitempty"`
	jwt.RegisteredClaims
}

// ForgeJwtFor : has the administrative identity sign a delegation token for the
// subject subjectID/name in group gname. Unknown subjects are registered on
// the fly; a name clashing with a reserved identity is prefixed with "ext::".
func (a *AclDB) ForgeJwtFor(subjectID, name, gname string, attributes map[string]any) (string, error) {
	if gname == "" {
		gname = "producer"
	}

	var user *User
	if known := a.lookupUser(name); known != nil {
		id, _, err := IDFromString(name, subjectID, a.namespace)
		if err != nil || id != known.ID {
			if known.ID < UserIDStart {
				return a.ForgeJwtFor(subjectID, externalPrefix+name, gname, attributes)
			}
			a.logger.Error("inconsistent user", slog.String("user", name), slog.String("id", subjectID))
			return "", &AccessError{Code: CodeInconsistentUser}
		}
		user = known
	} else {
		id, _, err := IDFromString(name, subjectID, a.namespace)
		if err != nil {
			a.logger.Error("invalid user", slog.String("user", name), slog.Any("error", err))
			return "", &AccessError{Code: CodeInvalidUserGroup}
		}
		if existing := a.LookupUser(strconv.Itoa(id)); existing != nil {
			user = existing
		} else {
			user, err = a.NewUser(name, config.UserConfig{ID: strconv.Itoa(id), Groups: []string{gname}})
			if err != nil {
				a.logger.Error("invalid user", slog.String("user", name), slog.Any("error", err))
				return "", &AccessError{Code: CodeInvalidUserGroup}
			}
		}
		a.logger.Debug("forge delegation", slog.String("user", name), slog.String("group", gname), slog.Int("id", id))
	}

	group, err := user.ValidGroup(a, gname)
	if err != nil {
		a.logger.Error("invalid user", slog.Any("error", err))
		return "", &AccessError{Code: CodeInvalidUserGroup}
	}

	token, err := a.signDelegation(user, group, attributes)
	if err != nil {
		a.logger.Error("could not forge JWT", slog.Any("error", err))
		return "", &AccessError{Code: CodeForgeFailed}
	}
	return token, nil
}

func (a *AclDB) signDelegation(subject *User, group *Group, attributes map[string]any) (string, error) {
	admin := a.lookupUser(a.adminName)
	if admin == nil {
		return "", errors.New("administrative identity missing")
	}
	if !admin.CanSign() {
		return "", fmt.Errorf("no private key defined for %s", admin.Name)
	}
	method, err := signingMethodFor(admin.signingKey)
	if err != nil {
		return "", err
	}

	xattr := map[string]any{"name": subject.Name, "uuid": subject.UUID, "group": group.Name}
	for key, value := range attributes {
		xattr[key] = value
	}

	now := a.now()
	claims := Claims{
		ClientID: admin.Name,
		UserID:   subject.ID,
		GroupID:  group.ID,
		XAttr:    xattr,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   DelegateGroup,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenLifetime)),
		},
	}

	token := jwt.NewWithClaims(method, claims)
	signed, err := token.SignedString(admin.signingKey)
	if err != nil {
		return "", err
	}

	a.logger.Info("access token forged",
		slog.String("issuer", admin.Name), slog.String("user", subject.Name), slog.String("group", group.Name))
	return signed, nil
}

// FindIdsFromJwt : validates a token and resolves the identity it carries.
// Expiry and not-before are checked ahead of the signature.
func (a *AclDB) FindIdsFromJwt(tokenString string) *AccessStatus {
	if !jwtShape.MatchString(tokenString) {
		a.logger.Warn("input token is not a JWT")
		return a.ErrorStatus(CodeMalformedToken)
	}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		a.logger.Debug("could not decode JWT", slog.Any("error", err))
		return a.ErrorStatus(CodeUndecodableToken)
	}

	gname := orDash(claims.Subject)
	uname := orDash(claims.ClientID)

	now := a.now()
	if claims.ExpiresAt != nil && now.After(claims.ExpiresAt.Time) {
		return newAccessStatus(a, uname, gname, nil, CodeExpiredToken)
	}
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return newAccessStatus(a, uname, gname, nil, CodePrematureToken)
	}

	status := a.FindUser(uname, gname)
	if status.Err != CodeNone {
		return status
	}

	keys := status.User.VerificationKeys()
	if len(keys) == 0 {
		status.Err = CodeNoKey
		return status
	}

	validated := false
	for _, key := range keys {
		_, err := parser.Parse(tokenString, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err == nil {
			validated = true
			break
		}
		a.logger.Debug("key did not validate the JWT", slog.String("user", status.UserName), slog.Any("error", err))
	}
	if !validated {
		status.Err = CodeInvalidSignature
		return status
	}

	issuer := ""
	if status.Group.Name == DelegateGroup {
		issuer = status.User.Name
		status = a.FindUser(idOrDash(claims.UserID), idOrDash(claims.GroupID))
		if status.Err != CodeNone {
			return status
		}
	}

	a.logger.Info("JWT validated",
		slog.String("user", status.UserName), slog.String("group", status.GroupName), slog.String("delegated_by", issuer))
	return status
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func idOrDash(id int) string {
	if id == 0 {
		return "-"
	}
	return strconv.Itoa(id)
}
