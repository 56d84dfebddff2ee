package security

import (
	"fmt"
	"media-gateway/config"
)

// Mask : a read/write/execute permission string such as "rw-".
type Mask string

const (
	NoAccess   Mask = "---"
	ReadMask   Mask = "r--"
	WriteMask  Mask = "-w-"
	ExecMask   Mask = "--x"
	DeleteMask Mask = "-wx"
	FullAccess Mask = "rwx"
)

func ParseMask(value string) (Mask, error) {
	if len(value) != 3 {
		return "", fmt.Errorf("invalid mask %q: 3 characters expected", value)
	}
	for i, allowed := range "rwx" {
		if rune(value[i]) != allowed && value[i] != '-' {
			return "", fmt.Errorf("invalid mask %q at position %d", value, i)
		}
	}
	return Mask(value), nil
}

func (m Mask) read() byte  { return m[0] }
func (m Mask) write() byte { return m[1] }
func (m Mask) exec() byte  { return m[2] }

// Acl : owner, group, and exception masks for one protected resource.
type Acl struct {
	Owner      string
	Group      string
	OwnerMask  Mask
	GroupMask  Mask
	OtherMask  Mask
	UserMasks  map[string]Mask
	GroupMasks map[string]Mask
}

// Access : the first matching rule among owner user, named user, owner group,
// named group, then other.
func (a *Acl) Access(user *User, group *Group) Mask {
	if user.Name == a.Owner {
		return a.OwnerMask
	}
	if mask, ok := a.UserMasks[user.Name]; ok {
		return mask
	}
	if group != nil && group.Name == a.Group {
		return a.GroupMask
	}
	if group != nil {
		if mask, ok := a.GroupMasks[group.Name]; ok {
			return mask
		}
	}
	return a.OtherMask
}

func parseAcl(desc config.AclConfig) (*Acl, error) {
	if len(desc.Core) != 5 {
		return nil, fmt.Errorf("incorrect number of elements for core in acl %v", desc.Core)
	}

	masks := make([]Mask, 3)
	for i, value := range desc.Core[2:] {
		mask, err := ParseMask(value)
		if err != nil {
			return nil, err
		}
		masks[i] = mask
	}

	acl := &Acl{
		Owner:      desc.Core[0],
		Group:      desc.Core[1],
		OwnerMask:  masks[0],
		GroupMask:  masks[1],
		OtherMask:  masks[2],
		UserMasks:  make(map[string]Mask, len(desc.Users)),
		GroupMasks: make(map[string]Mask, len(desc.Groups)),
	}
	for name, value := range desc.Users {
		mask, err := ParseMask(value)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", name, err)
		}
		acl.UserMasks[name] = mask
	}
	for name, value := range desc.Groups {
		mask, err := ParseMask(value)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", name, err)
		}
		acl.GroupMasks[name] = mask
	}
	return acl, nil
}
