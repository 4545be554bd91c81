package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the echo control MQTT hierarchy.
//
//	echocontrol/device/{id}/status          retained device status
//	echocontrol/device/{id}/ptz/position    PTZ position reports
//	echocontrol/device/{id}/sound/play_end  playback finished
//	echocontrol/device/{id}/light/status    light output state
//	echocontrol/device/{id}/reply           command and query replies
//	echocontrol/command/{id}                JSON commands in
//	echocontrol/command/{id}/result         command outcome
//	echocontrol/system/status               core online/offline (LWT)
//
// {id} is the device id as 0x%08X.
const (
	TopicPrefix        = "echocontrol"
	TopicPrefixDevice  = TopicPrefix + "/device"
	TopicPrefixCommand = TopicPrefix + "/command"
	TopicPrefixSystem  = TopicPrefix + "/system"
)

// Topics provides builders for echo control MQTT topics.
type Topics struct{}

// DeviceStatus returns the retained status topic of a device.
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixDevice, deviceID)
}

// PtzPosition returns the PTZ position report topic of a device.
func (Topics) PtzPosition(deviceID string) string {
	return fmt.Sprintf("%s/%s/ptz/position", TopicPrefixDevice, deviceID)
}

// SoundPlayEnd returns the playback-finished topic of a device.
func (Topics) SoundPlayEnd(deviceID string) string {
	return fmt.Sprintf("%s/%s/sound/play_end", TopicPrefixDevice, deviceID)
}

// LightStatus returns the light status topic of a device.
func (Topics) LightStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/light/status", TopicPrefixDevice, deviceID)
}

// DeviceReply returns the topic carrying replies from a device.
func (Topics) DeviceReply(deviceID string) string {
	return fmt.Sprintf("%s/%s/reply", TopicPrefixDevice, deviceID)
}

// Command returns the topic a device accepts JSON commands on.
func (Topics) Command(deviceID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixCommand, deviceID)
}

// CommandResult returns the topic command outcomes are published on.
func (Topics) CommandResult(deviceID string) string {
	return fmt.Sprintf("%s/%s/result", TopicPrefixCommand, deviceID)
}

// AllCommands matches the command topic of every device.
func (Topics) AllCommands() string {
	return TopicPrefixCommand + "/+"
}

// AllDevices matches every device topic.
func (Topics) AllDevices() string {
	return TopicPrefixDevice + "/#"
}

// SystemStatus returns the core online/offline topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// CommandDevice extracts the device id from a command topic. It reports
// false for any other topic, including result topics.
func (Topics) CommandDevice(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefixCommand+"/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
