package security

import (
	"fmt"
	"media-gateway/internal/model"
)

// Decision : one authorization outcome handed to a context.
type Decision struct {
	UserName string
	UserUUID string
	Access   Mask
	Code     Code
}

// AccessContext : the side-effecting receiver of authorization decisions.
type AccessContext interface {
	ValidAPI() bool
	Process(decision Decision) error
	View() model.ContextView
}

// AccessStatus : the evaluation of one (user, group) pair, bound to the context
// currently asking for a decision.
type AccessStatus struct {
	UserName  string
	GroupName string
	User      *User
	Group     *Group
	Err       Code
	Access    Mask

	context AccessContext
}

func newAccessStatus(directory *AclDB, uname, gname string, user *User, code Code) *AccessStatus {
	status := &AccessStatus{
		UserName:  uname,
		GroupName: gname,
		User:      user,
		Err:       code,
		Access:    NoAccess,
	}
	if user != nil {
		status.UserName = user.Name
		group, err := user.ValidGroup(directory, gname)
		if err != nil {
			if status.Err == CodeNone {
				status.Err = CodeInvalidUserGroup
			}
		} else {
			status.Group = group
			status.GroupName = group.Name
		}
	}
	return status
}

func (s *AccessStatus) SetContext(ctx AccessContext) {
	s.context = ctx
}

func (s *AccessStatus) Context() AccessContext {
	return s.context
}

// ContextView : the public view of the bound context, anonymous when unbound.
func (s *AccessStatus) ContextView() model.ContextView {
	if s.context == nil {
		return model.ContextView{Source: "-", IP: "-", User: s.UserName, Access: string(s.Access)}
	}
	return s.context.View()
}

// SetAcl : resolves the access mask of the status against acl.
func (s *AccessStatus) SetAcl(acl *Acl) {
	if s.Err == CodeNone && s.User != nil {
		s.Access = acl.Access(s.User, s.Group)
	}
}

// Refused : the single decision point. It returns nil when mode is granted,
// an *AccessError otherwise, and reports the outcome to the bound context.
func (s *AccessStatus) Refused(mode Mask) error {
	if mode == "" {
		mode = NoAccess
	}

	code := s.evaluate(mode)
	if s.context != nil {
		decision := Decision{UserName: s.UserName, Access: s.Access, Code: code}
		if s.User != nil {
			decision.UserUUID = s.User.UUID
		}
		if err := s.context.Process(decision); err != nil {
			return &AccessError{Code: CodeContextClosed}
		}
	}

	if code != CodeNone {
		return &AccessError{Code: code}
	}
	return nil
}

func (s *AccessStatus) evaluate(mode Mask) Code {
	switch {
	case s.Err != CodeNone:
		return s.Err
	case mode.exec() == 'x' && s.context != nil && !s.context.ValidAPI():
		return CodeBadVersion
	case mode.exec() != '-' && mode.exec() != s.Access.exec():
		return CodeExecDenied
	case mode == NoAccess:
		return CodeNone
	case s.UserName == "-":
		return CodeNoCredentials
	case s.User == nil:
		return CodeInvalidCredentials
	case s.Access == NoAccess:
		return CodeMissingCredentials
	case mode.read() != '-' && mode.read() != s.Access.read():
		return CodeReadDenied
	case mode.write() != '-' && mode.write() != s.Access.write():
		return CodeWriteDenied
	}
	return CodeNone
}

func (s *AccessStatus) String() string {
	id := -1
	if s.User != nil {
		id = s.User.ID
	}
	result := fmt.Sprintf("ACL:%s[%d]:%s:%s", s.UserName, id, s.GroupName, s.Access)
	if s.Err != CodeNone {
		result += " => " + string(s.Err)
	}
	return result
}
