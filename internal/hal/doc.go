// Package hal is the typed access stub over a register device.
//
// A Module describes the device and how to reach it. Module.Open returns a
// Device, on which SetVal and GetVal move the register's fixed-width binary
// form through the underlying connection:
//
//	mod := hal.NewModule(hal.FileOpener{}, hal.Options{Logger: logger})
//	dev, err := mod.Open(ctx)
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
//
//	if err := dev.SetVal(ctx, 42); err != nil {
//	    return err
//	}
//	v, err := dev.GetVal(ctx)
//
// The connection is pluggable: FileOpener opens a real character device,
// SocketOpener talks to hellod over its unix socket, and LocalOpener opens
// a node of an in-process driver.
//
// Short transfers are logged and otherwise ignored unless Options.Strict is
// set, in which case they fail with ErrShortTransfer.
package hal
