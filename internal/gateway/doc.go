// Package gateway exposes the device packet protocol over TCP.
//
// Every frame is a 4-byte big-endian length followed by a body of
// [u32 big-endian device id][encoded packet]. Inbound frames are decoded
// through the packet registry and submitted to the device that owns the id.
// Pushes emitted by devices are framed with their source id and broadcast to
// every connected client.
//
// Usage:
//
//	gw := gateway.New(gateway.Config{Addr: ":9100"}, protocol.NewCatalogueRegistry(), sup)
//	if err := gw.Start(ctx); err != nil {
//	    return err
//	}
//	sup.AddSink(gw)
//	defer gw.Close()
package gateway
