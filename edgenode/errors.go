package edgenode

import "errors"

var (
	// ErrNotConnected is returned by any publish/disconnect operation
	// attempted before a successful Connect.
	ErrNotConnected = errors.New("edgenode: not connected")
	// ErrAlreadyConnected is returned by Connect when the Node already
	// holds an open session.
	ErrAlreadyConnected = errors.New("edgenode: already connected")
	// ErrPrimaryHostOffline is returned by PublishBirth/PublishDeviceBirth
	// while a configured primary host's STATE is offline (invariant I7).
	ErrPrimaryHostOffline = errors.New("edgenode: primary host offline")
	// ErrBirthRequired is returned by operations that need a prior NBIRTH
	// (Rebirth, PublishDeviceBirth).
	ErrBirthRequired = errors.New("edgenode: NBIRTH required before this operation")
	// ErrUnknownDevice is returned by PublishDeviceDeath for a device that
	// was never born on this session.
	ErrUnknownDevice = errors.New("edgenode: unknown device")
	// ErrDeviceBirthRequired is returned by PublishDeviceData for a device
	// that has not had a DBIRTH published on this session.
	ErrDeviceBirthRequired = errors.New("edgenode: DBIRTH required before this operation")
)
