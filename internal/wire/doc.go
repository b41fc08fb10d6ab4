// Package wire defines the node protocol spoken between hellod and its
// clients over a unix socket.
//
// Each message is a CBOR map with integer keys, carried in a frame with a
// 4-byte big-endian length prefix. A client sends a Request and reads back
// exactly one Response with the same ID:
//
//	Request  {1: id, 2: op, 3: fd, 4: path, 5: flags, 6: len, 7: data}
//	Response {1: id, 2: errno, 3: n, 4: fd, 5: data}
//
// Register values travel as the raw native-endian bytes produced by
// register.Encode. Failures are reported as unix errno values so a remote
// client sees the same error classes as one using a real device file.
package wire
