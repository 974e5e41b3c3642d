package entity

import "github.com/pkg/errors"

var (
	// ErrConfiguration is returned when an identity is not configured properly for the operation
	ErrConfiguration = errors.New("configuration error")

	// ErrNotServer is returned when a server-only operation is called on an object not active on the server
	ErrNotServer = errors.New("object is not server active")
	// ErrUnsupportedConfiguration is returned when the object does not support client authority
	ErrUnsupportedConfiguration = errors.New("object does not support client authority")
	// ErrAlreadyOwned is returned when another connection already holds authority
	ErrAlreadyOwned = errors.New("object is already owned by another connection")
	// ErrInvalidConnection is returned when the connection is nil or not registered
	ErrInvalidConnection = errors.New("invalid connection")
	// ErrIsPlayerObject is returned when removing authority from a player object
	ErrIsPlayerObject = errors.New("object is a player object")
	// ErrNoOwner is returned when removing authority from an object without owner
	ErrNoOwner = errors.New("object has no owner")
	// ErrWrongOwner is returned when removing authority with a connection which is not the owner
	ErrWrongOwner = errors.New("connection is not the owner")

	// ErrProtocolInconsistency is returned when peer data can not be framed
	ErrProtocolInconsistency = errors.New("protocol inconsistency")
	// ErrComponentFault is the cause of failures raised by component hooks
	ErrComponentFault = errors.New("component fault")
)

// IsAuthorityViolation returns if the error is caused by an unmet server or ownership precondition
func IsAuthorityViolation(err error) bool {
	switch errors.Cause(err) {
	case ErrNotServer, ErrUnsupportedConfiguration, ErrAlreadyOwned, ErrInvalidConnection,
		ErrIsPlayerObject, ErrNoOwner, ErrWrongOwner:
		return true
	}
	return false
}
