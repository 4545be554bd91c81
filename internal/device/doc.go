// Package device provides the per-device runtime of Echo Control Core.
//
// Each physical endpoint is owned by one Actor. The actor holds the device
// identity, its property table, a FIFO mailbox and the connection state
// machine, and runs a single goroutine that drains the mailbox. Drivers
// supply the family-specific behaviour through the Driver interface and the
// optional RawReader, EventHandler and ConfigHandler hooks.
//
// # Architecture
//
//	caller ──SubmitPacket──▶ mailbox ──▶ loop ──▶ packet hook ──▶ driver
//	                                      │
//	                                      ├─ connect / reconnect
//	                                      └─ config and custom events
//
//	driver ──ReadRaw──▶ reader goroutine (ONLINE only) ──OnRawData──▶ Emit
//
// # State Machine
//
//	UNKNOWN ─▶ INITIALIZED ─▶ OFFLINE ⇄ CONNECTING ─▶ ONLINE ⇄ WORKING
//	                 ▲            ▲ │                     │        │
//	                 └── ERROR ◀──┘ └──────── ERROR ◀─────┴────────┘
//
// Transitions outside the table are rejected: the stored state is kept and a
// status push carrying the attempted state is emitted instead.
//
// # Identity
//
// A device ID packs family (8 bits), model (16 bits) and instance index
// (8 bits). The ID with the index cleared is the object ID used for driver
// lookup.
//
// # Thread Safety
//
// Actor methods are safe for concurrent use. Drivers are called from the
// actor goroutine only, except RawReader methods which run on the reader
// goroutine.
package device
