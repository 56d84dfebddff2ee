package security

import (
	"crypto"
	"fmt"
	"slices"
)

type Group struct {
	Name string
	ID   int
	UUID string
}

type User struct {
	Name     string
	ID       int
	UUID     string
	Password string
	// Groups[0] is the primary group.
	Groups []*Group

	signingKey crypto.Signer
	keys       []crypto.PublicKey
}

func (u *User) CanSign() bool {
	return u.signingKey != nil
}

func (u *User) VerificationKeys() []crypto.PublicKey {
	return u.keys
}

func (u *User) CheckPassword(input string) bool {
	return CheckPassword(u.Password, input)
}

// ValidGroup : resolves gname among the user's groups; "" and "-" select the primary group.
func (u *User) ValidGroup(directory *AclDB, gname string) (*Group, error) {
	if gname == "" || gname == "-" {
		if len(u.Groups) == 0 {
			return nil, fmt.Errorf("no group for %s", u.Name)
		}
		return u.Groups[0], nil
	}

	group := directory.FindGroup(gname)
	if group == nil || !slices.Contains(u.Groups, group) {
		return nil, fmt.Errorf("invalid group %q for %s", gname, u.Name)
	}
	return group, nil
}
