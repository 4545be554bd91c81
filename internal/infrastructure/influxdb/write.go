package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the device telemetry helpers.
const (
	MeasurementDeviceStatus = "device_status"
	MeasurementPtzPosition  = "ptz_position"
	MeasurementLightStatus  = "light_status"
)

// DeviceTags identifies the device a point belongs to. All values are low
// cardinality: a site has at most a few hundred devices.
type DeviceTags struct {
	DeviceID string // 0x%08X
	Family   string
	Slot     int
}

func (t DeviceTags) tags() map[string]string {
	m := map[string]string{
		"device_id": t.DeviceID,
		"family":    t.Family,
	}
	if t.Slot > 0 {
		m["slot"] = strconv.Itoa(t.Slot)
	}
	return m
}

// WriteDeviceStatus records a status push.
//
// Parameters:
//   - tags: Device identity
//   - state: Upper-case state name, e.g. "ONLINE"
//   - errorCode: Last error code, 0 when healthy
//   - temperature: Reported device temperature in degrees C
//   - at: Time of the status change
func (c *Client) WriteDeviceStatus(tags DeviceTags, state string, errorCode uint32, temperature float32, at time.Time) {
	c.WritePointWithTime(MeasurementDeviceStatus, tags.tags(), map[string]interface{}{
		"state":       state,
		"online":      state == "ONLINE" || state == "WORKING",
		"error_code":  int64(errorCode),
		"temperature": float64(temperature),
	}, at)
}

// WritePtzPosition records a pan/tilt/zoom report.
func (c *Client) WritePtzPosition(tags DeviceTags, pan, tilt, zoom float32, at time.Time) {
	c.WritePointWithTime(MeasurementPtzPosition, tags.tags(), map[string]interface{}{
		"pan":  float64(pan),
		"tilt": float64(tilt),
		"zoom": float64(zoom),
	}, at)
}

// WriteLightStatus records the output state of a light.
func (c *Client) WriteLightStatus(tags DeviceTags, on bool, brightness, strobe uint8, at time.Time) {
	c.WritePointWithTime(MeasurementLightStatus, tags.tags(), map[string]interface{}{
		"on":         on,
		"brightness": int64(brightness),
		"strobe":     int64(strobe),
	}, at)
}

// WritePointWithTime writes a custom point. It is dropped silently while
// the client is not connected.
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() || c.writer == nil {
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
