// Package server serves a driver.Namespace to other processes over a unix
// socket using the wire node protocol.
//
// Each accepted connection is a session with its own descriptor table.
// Opening a node checks the peer's credentials against the node mode, the
// same way the operating system would for a device file. Requests on one
// connection are handled in order; separate connections run concurrently
// and contend on the register exactly as separate processes would.
//
// Lifecycle:
//
//	srv := server.New(ns, server.Config{Socket: "/run/hello.sock"})
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//	defer srv.Close()
package server
