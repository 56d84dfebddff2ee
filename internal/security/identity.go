package security

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

const (
	AdminID       = 4
	UserIDStart   = 1000
	systemIDStart = 100
	systemIDEnd   = 200
	maxMappedID   = UserIDStart + 0xffff
)

var (
	ErrInvalidIdentity  = errors.New("invalid identity")
	ErrIrreversibleUUID = errors.New("cannot revert id from uuid-v5")
)

// idTemplate carries mapped ids in bytes 10 and 11.
var idTemplate = uuid.MustParse("a3d5c7e1-9b24-4f68-8c0a-0000e4f1b2d3")

// IDFromString : resolves the numeric id and uuid of an identity described by value.
// Numeric values get a name-based uuid in namespace; UUIDv4 values give back their embedded id.
func IDFromString(name, value, namespace string) (int, string, error) {
	if id, err := strconv.Atoi(value); err == nil {
		if !validNumericID(name, id) {
			return 0, "", fmt.Errorf("%w: id %d for %s not in valid range", ErrInvalidIdentity, id, name)
		}
		uid := uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%d.%s", id, namespace)))
		return id, uid.String(), nil
	}

	uid, err := uuid.Parse(value)
	if err != nil {
		return 0, "", fmt.Errorf("%w: invalid uuid for %s", ErrInvalidIdentity, name)
	}
	switch uid.Version() {
	case 4:
		return embeddedID(uid), uid.String(), nil
	case 5:
		return 0, "", fmt.Errorf("%w: %s", ErrIrreversibleUUID, name)
	default:
		return 0, "", fmt.Errorf("%w: uuid version %d for %s", ErrInvalidIdentity, uid.Version(), name)
	}
}

// UUIDFromID : the UUIDv4 carrying a user id, inverse of IDFromUUID.
func UUIDFromID(id int) (string, error) {
	if id < UserIDStart || id > maxMappedID {
		return "", fmt.Errorf("%w: id %d cannot be mapped", ErrInvalidIdentity, id)
	}
	uid := idTemplate
	offset := id - UserIDStart
	uid[10] = byte(offset >> 8)
	uid[11] = byte(offset)
	return uid.String(), nil
}

// IDFromUUID : the user id embedded in a UUIDv4.
func IDFromUUID(value string) (int, error) {
	uid, err := uuid.Parse(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	switch uid.Version() {
	case 4:
		return embeddedID(uid), nil
	case 5:
		return 0, ErrIrreversibleUUID
	default:
		return 0, fmt.Errorf("%w: uuid version %d", ErrInvalidIdentity, uid.Version())
	}
}

func embeddedID(uid uuid.UUID) int {
	return UserIDStart + int(uid[10])<<8 + int(uid[11])
}

func validNumericID(name string, id int) bool {
	if id == AdminID && name == "admin" {
		return true
	}
	if id < systemIDStart {
		return false
	}
	return id < systemIDEnd || id >= UserIDStart
}
