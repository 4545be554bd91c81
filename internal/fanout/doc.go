// Package fanout carries device pushes out of the supervisor and commands
// into it.
//
// Every sink implements supervisor.Sink and is registered with AddSink:
//
//   - MQTTSink publishes each push as JSON under echocontrol/device/{id}/...
//   - InfluxSink writes status, PTZ position and light status points
//   - HistorySink records status pushes in SQLite
//
// CommandIngress subscribes to echocontrol/command/+ and runs the JSON
// commands it receives through the supervisor command surface.
//
// Sinks run on the supervisor's consumer goroutine and must not block for
// long; each bounds its own I/O.
package fanout
