// Package bridge mirrors a register device onto MQTT.
//
// After every successful write, whichever node it came through, the
// current value is published retained on hello/state/<device>/val as
// decimal text. Payloads on hello/command/<device>/val are written to
// the device's class attribute as its owner, so they get the same
// parsing and truncation as a shell write to that attribute.
//
// Publishing is decoupled from the writer by a bounded queue. When it is
// full the oldest pending value is dropped; the retained state converges
// on the newest value either way.
package bridge
