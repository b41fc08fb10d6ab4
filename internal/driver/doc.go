// Package driver attaches register devices and exposes each one through
// three independent nodes that share a single register.Store:
//
//   - a character node (<dev>/<name>) speaking the binary interface
//   - a proc node (<proc>/<name>) speaking the text interface
//   - a class attribute (<class>/<name>/<name>/val) speaking the text interface
//
// # Architecture
//
//	┌──────────────────────────── Namespace ────────────────────────────┐
//	│  /dev/hello            /proc/hello        /sys/class/hello/hello/val│
//	│      │ binary              │ text                  │ text          │
//	└──────│─────────────────────│───────────────────────│───────────────┘
//	       └──────────────┬──────┴───────────────────────┘
//	                      ▼
//	              register.Store (one per Driver)
//
// The Namespace stands in for the operating system's device and file trees.
// Attach registers the nodes step by step and unwinds every completed step
// in reverse order if a later one fails. Detach removes them again.
//
// Opening a node checks the caller's uid/gid against the node's mode bits,
// with uid 0 bypassing the check. Every successful register mutation through
// any node is reported to subscribers as an Event after the register
// semaphore has been released.
//
// # Usage
//
//	ns := driver.NewNamespace()
//	drv, err := driver.Attach(ns, driver.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer drv.Detach()
//
//	node, _ := ns.Lookup("/dev/hello")
//	f, err := node.Open(driver.Caller{UID: 0}, os.O_RDWR)
package driver
