package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for hellod.
//
// Register topics use the scheme hello/{category}/{device}/{attribute}.
const (
	// TopicPrefix is the base for all hellod topics.
	TopicPrefix = "hello"

	// TopicPrefixSystem is the base for daemon status topics.
	TopicPrefixSystem = "hello/system"

	// AttrVal is the single attribute the register exposes.
	AttrVal = "val"
)

// Topics provides builders for hellod MQTT topics.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.RegisterState("hello")
//	// Returns: "hello/state/hello/val"
type Topics struct{}

// RegisterState returns the retained state topic for a device's register.
//
// Example: hello/state/hello/val
func (Topics) RegisterState(device string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, device, AttrVal)
}

// RegisterCommand returns the topic on which new register values arrive.
//
// Example: hello/command/hello/val
func (Topics) RegisterCommand(device string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, device, AttrVal)
}

// SystemStatus returns the daemon status topic carrying online/offline
// payloads and the Last Will.
//
// Example: hello/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// DeviceFromTopic extracts the device name from a state or command topic.
// It returns false for topics outside the register scheme.
func (Topics) DeviceFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[3] != AttrVal || parts[2] == "" {
		return "", false
	}
	if parts[1] != "state" && parts[1] != "command" {
		return "", false
	}
	return parts[2], true
}
