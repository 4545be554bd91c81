// Package influxdb writes device telemetry to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library: one non-blocking,
// batched write API per client, a ping-based health check and typed
// helpers for the device measurements:
//
//	device_status  state, online, error_code, temperature
//	ptz_position   pan, tilt, zoom
//	light_status   on, brightness, strobe
//
// Every point is tagged with device_id, family and slot.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { logger.Warn("influx write failed", "error", err) })
//	client.WritePtzPosition(tags, 12.5, -3, 1, time.Now())
package influxdb
