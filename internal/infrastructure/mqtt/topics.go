package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every blktagd topic.
const TopicPrefix = "blktag"

// Topics provides builders for blktagd MQTT topics.
// Using these helpers keeps topic naming consistent across publishers and
// subscribers.
//
//	topics := mqtt.Topics{}
//	topics.Device("/dev/mapper/root")
//	// Returns: "blktag/device/mapper/root"
type Topics struct{}

// SystemStatus returns the retained online/offline status topic, also
// used as the Last Will topic.
//
// Example: blktag/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// ProbeResult returns the topic a summary is published to after every
// full probe.
//
// Example: blktag/probe/result
func (Topics) ProbeResult() string {
	return TopicPrefix + "/probe/result"
}

// ProbeCommand returns the topic that requests a full re-probe.
//
// Example: blktag/command/probe
func (Topics) ProbeCommand() string {
	return TopicPrefix + "/command/probe"
}

// Device returns the retained topic carrying the tags of one device.
// The leading /dev/ is dropped and remaining path elements become topic
// levels.
//
// Example: blktag/device/sda1
func (Topics) Device(devname string) string {
	name := strings.TrimPrefix(devname, "/dev/")
	name = strings.Trim(name, "/")
	return fmt.Sprintf("%s/device/%s", TopicPrefix, name)
}

// AllDevices returns a wildcard matching every device topic.
func (Topics) AllDevices() string {
	return TopicPrefix + "/device/#"
}

// AllTopics returns a wildcard matching every blktagd topic.
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
