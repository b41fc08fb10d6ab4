// Package api serves HTTP introspection for a hellod register device.
//
// Routes (all under /api/v1):
//
//	GET  /health     daemon and dependency health
//	GET  /nodes      registered nodes with kind, mode and owner
//	GET  /register   current value and its text form
//	PUT  /register   raw text body written like a write to the class attribute
//	GET  /audit      write trail, when auditing is enabled
//
// Writes go through the class attribute as the device owner, so they raise
// the same driver events as any other writer and reach the audit trail and
// the MQTT bridge.
package api
