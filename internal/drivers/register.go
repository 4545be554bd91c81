// Package drivers binds the model drivers to their object identities.
package drivers

import (
	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/drivers/light"
	"github.com/nerrad567/echo-control-core/internal/drivers/link"
	"github.com/nerrad567/echo-control-core/internal/drivers/ptz"
	"github.com/nerrad567/echo-control-core/internal/drivers/relay"
	"github.com/nerrad567/echo-control-core/internal/drivers/sound"
	"github.com/nerrad567/echo-control-core/internal/protocol"
)

// Register adds every built-in driver to reg using TCP transports.
// It must be called once at startup; a second call panics.
func Register(reg *device.Registry) {
	RegisterWith(reg, link.TCP)
}

// RegisterWith adds every built-in driver to reg using dial for transports.
func RegisterWith(reg *device.Registry, dial link.Dialer) {
	bind := func(family protocol.Family, model device.Model, name string, ctor func(link.Dialer) device.Driver) {
		reg.Register(device.MakeID(family, model, 0), name, func() device.Driver { return ctor(dial) })
	}

	bind(protocol.FamilyLight, device.ModelHL525, "HL-525", light.New)
	bind(protocol.FamilyPTZ, device.ModelYZBY010W, "YZ-BY010W", ptz.New)
	bind(protocol.FamilySound, device.ModelNetSpeakerV2, "NetSpeaker-V2", sound.New)
	bind(protocol.FamilyRelay, device.ModelTASIO428R2, "TAS-IO-428R2", relay.New)
}
