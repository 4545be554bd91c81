// Package api provides the HTTP REST API and WebSocket server for echo control.
//
// It exposes the loaded devices, the command surface, per-device
// configuration, state history and the command log to operator consoles and
// automation clients. Device pushes are relayed to WebSocket subscribers as
// JSON envelopes.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
