package driver

import "errors"

// Domain errors for the driver package.
var (
	// ErrNoDevice is returned when a path does not name a registered node.
	ErrNoDevice = errors.New("driver: no such device")

	// ErrNodeExists is returned when registering a path that is already taken.
	ErrNodeExists = errors.New("driver: node already exists")

	// ErrPermission is returned when the caller's credentials do not grant
	// the requested access mode.
	ErrPermission = errors.New("driver: permission denied")

	// ErrBadHandle is returned for I/O on a closed file or in a direction
	// the file was not opened for.
	ErrBadHandle = errors.New("driver: bad file handle")

	// ErrSetup is returned by Attach when a registration step fails. All
	// earlier steps have been undone by the time it is returned.
	ErrSetup = errors.New("driver: device setup failed")

	// ErrInvalidConfig is returned when the device configuration is unusable.
	ErrInvalidConfig = errors.New("driver: invalid config")
)
