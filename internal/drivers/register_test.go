package drivers

import (
	"testing"

	"github.com/nerrad567/echo-control-core/internal/device"
)

func TestRegister(t *testing.T) {
	reg := device.NewRegistry()
	Register(reg)

	for _, name := range []string{"HL-525", "YZ-BY010W", "NetSpeaker-V2", "TAS-IO-428R2"} {
		object, ok := reg.ObjectIDForModelName(name)
		if !ok {
			t.Fatalf("model %s unknown", name)
		}
		drv, ok := reg.Create(object)
		if !ok || drv == nil {
			t.Errorf("Create(%s) = %v, %v", name, drv, ok)
		}
	}

	for _, name := range []string{"PT-LD-1307", "HKVISION", "HSXVISION"} {
		object, _ := reg.ObjectIDForModelName(name)
		if reg.HasDriver(object) {
			t.Errorf("%s has a driver", name)
		}
	}
}

func TestCapabilities(t *testing.T) {
	reg := device.NewRegistry()
	Register(reg)

	create := func(name string) device.Driver {
		object, _ := reg.ObjectIDForModelName(name)
		drv, _ := reg.Create(object)
		return drv
	}

	if _, ok := create("HL-525").(device.Light); !ok {
		t.Error("HL-525 is not a Light")
	}
	if _, ok := create("YZ-BY010W").(device.PTZ); !ok {
		t.Error("YZ-BY010W is not a PTZ")
	}
	if _, ok := create("NetSpeaker-V2").(device.Sound); !ok {
		t.Error("NetSpeaker-V2 is not a Sound")
	}
	if _, ok := create("TAS-IO-428R2").(device.Relay); !ok {
		t.Error("TAS-IO-428R2 is not a Relay")
	}
	if _, ok := create("HL-525").(device.PTZ); ok {
		t.Error("HL-525 claims PTZ")
	}
}

func TestRegisterTwicePanics(t *testing.T) {
	reg := device.NewRegistry()
	Register(reg)
	defer func() {
		if recover() == nil {
			t.Error("second Register did not panic")
		}
	}()
	Register(reg)
}
