package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePowerMetric records the power draw of one device component.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Bridge-local device identifier (e.g., "outlet-kitchen")
//   - componentID: Component within the device (e.g., "0", "usb")
//   - watts: Instantaneous power draw in watts
//
// Example:
//
//	client.WritePowerMetric("outlet-kitchen", "0", 23.5)
func (c *Client) WritePowerMetric(deviceID, componentID string, watts float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"power",
		map[string]string{
			"device_id": deviceID,
			"component": componentID,
		},
		map[string]interface{}{
			"watts": watts,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSensorMetric records an insert sensor reading.
//
// Parameters:
//   - deviceID: Bridge-local device identifier
//   - sensor: Sensor name (e.g., "temperature", "humidity", "iaq")
//   - value: The reading
func (c *Client) WriteSensorMetric(deviceID, sensor string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sensor",
		map[string]string{
			"device_id": deviceID,
			"sensor":    sensor,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSignalStrength records a device's reported wifi RSSI.
//
// Parameters:
//   - deviceID: Bridge-local device identifier
//   - rssi: Signal strength in dBm (negative)
func (c *Client) WriteSignalStrength(deviceID string, rssi int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"signal",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"rssi": rssi,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
