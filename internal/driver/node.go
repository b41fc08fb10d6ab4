package driver

import (
	"fmt"
	"io/fs"
	"os"
)

// Kind identifies which register interface a node speaks.
type Kind int

const (
	// KindChar is a character node using the fixed-width binary interface.
	KindChar Kind = iota + 1

	// KindProc is an introspection node using the text interface.
	KindProc

	// KindAttr is a class attribute using the text interface.
	KindAttr
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindChar:
		return "char"
	case KindProc:
		return "proc"
	case KindAttr:
		return "attr"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Caller identifies who is opening a node.
type Caller struct {
	UID uint32
	GID uint32
	PID int32

	// Session is an opaque id for the open session, carried into events.
	Session string
}

// accessMode mask over the open flags.
const accessMode = os.O_RDONLY | os.O_WRONLY | os.O_RDWR

// Permission bits within an rwx triplet.
const (
	permRead  fs.FileMode = 4
	permWrite fs.FileMode = 2
)

// Node is one registered entry point to a driver's register.
type Node struct {
	path string
	kind Kind
	mode fs.FileMode
	uid  uint32
	gid  uint32
	drv  *Driver
}

// Path returns the absolute node path.
func (n *Node) Path() string { return n.path }

// Kind returns the interface the node speaks.
func (n *Node) Kind() Kind { return n.kind }

// Mode returns the node's permission bits.
func (n *Node) Mode() fs.FileMode { return n.mode }

// Driver returns the owning driver.
func (n *Node) Driver() *Driver { return n.drv }

// Info returns a snapshot description of the node.
func (n *Node) Info() NodeInfo {
	return NodeInfo{
		Path:   n.path,
		Kind:   n.kind,
		Mode:   n.mode,
		UID:    n.uid,
		GID:    n.gid,
		Device: n.drv.Name(),
	}
}

// Open starts a session on the node.
//
// flags carries the access mode (os.O_RDONLY, os.O_WRONLY or os.O_RDWR);
// other bits are ignored. The caller must hold the matching permission bits.
//
// Returns:
//   - File: open session
//   - error: ErrPermission if access is denied, ErrNoDevice after Detach
func (n *Node) Open(c Caller, flags int) (File, error) {
	store, err := n.drv.openStore()
	if err != nil {
		return nil, err
	}

	var readable, writable bool
	switch flags & accessMode {
	case os.O_RDONLY:
		readable = true
	case os.O_WRONLY:
		writable = true
	case os.O_RDWR:
		readable, writable = true, true
	default:
		return nil, fmt.Errorf("%w: bad access mode %#o", ErrPermission, flags&accessMode)
	}

	if readable && !n.permits(c, permRead) {
		return nil, fmt.Errorf("%w: read %s", ErrPermission, n.path)
	}
	if writable && !n.permits(c, permWrite) {
		return nil, fmt.Errorf("%w: write %s", ErrPermission, n.path)
	}

	base := fileBase{
		node:     n,
		caller:   c,
		readable: readable,
		writable: writable,
	}

	var f File
	switch n.kind {
	case KindChar:
		f = &charFile{fileBase: base, handle: store.Open()}
	default:
		f = &textFile{fileBase: base, store: store}
	}

	n.drv.getLogger().Debug("node opened",
		"path", n.path,
		"uid", c.UID,
		"session", c.Session,
	)
	return f, nil
}

// permits reports whether c holds want on the node, using the owner, group
// or other triplet as appropriate.
func (n *Node) permits(c Caller, want fs.FileMode) bool {
	if c.UID == 0 {
		return true
	}

	perm := n.mode.Perm()
	var shift uint
	switch {
	case c.UID == n.uid:
		shift = 6
	case c.GID == n.gid:
		shift = 3
	default:
		shift = 0
	}
	return (perm>>shift)&want == want
}
