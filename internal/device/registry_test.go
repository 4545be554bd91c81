package device

import (
	"context"
	"testing"

	"github.com/nerrad567/echo-control-core/internal/protocol"
)

type nopDriver struct{}

func (nopDriver) Declare(*Properties)           {}
func (nopDriver) Configure(*Actor) error        { return nil }
func (nopDriver) Connect(context.Context) error { return nil }
func (nopDriver) Disconnect()                   {}

func TestRegistryBuiltinModelNames(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		want ID
	}{
		{"HL-525", 0x01000200},
		{"PT-LD-1307", 0x01000100},
		{"NetSpeaker-V2", 0x02000100},
		{"YZ-BY010W", 0x03000100},
		{"TAS-IO-428R2", 0x04000100},
		{"HKVISION", 0x05000100},
		{"HSXVISION", 0x05000200},
	}
	for _, tt := range tests {
		got, ok := r.ObjectIDForModelName(tt.name)
		if !ok || got != tt.want {
			t.Errorf("ObjectIDForModelName(%q) = %s, %v, want %s", tt.name, got.Hex(), ok, tt.want.Hex())
		}
	}

	if got, ok := r.ObjectIDForModelName("HL-999"); ok || got != InvalidID {
		t.Errorf("unknown model = %s, %v", got.Hex(), ok)
	}
}

func TestRegistryCreate(t *testing.T) {
	r := NewRegistry()
	object := MakeID(protocol.FamilyLight, ModelHL525, 0)
	r.Register(object, "HL-525", func() Driver { return nopDriver{} })

	if _, ok := r.Create(object); !ok {
		t.Error("Create(registered) = false")
	}
	if _, ok := r.Create(MakeID(protocol.FamilyLight, ModelHL525, 4)); !ok {
		t.Error("Create() ignores the index")
	}
	if _, ok := r.Create(MakeID(protocol.FamilyCamera, ModelHKVision, 0)); ok {
		t.Error("Create(camera) = true without a driver")
	}
	if !r.HasDriver(object) || len(r.Drivers()) != 1 {
		t.Errorf("HasDriver = %v, Drivers = %v", r.HasDriver(object), r.Drivers())
	}
	if name, ok := r.ModelName(0x01000203); !ok || name != "HL-525" {
		t.Errorf("ModelName() = %q, %v", name, ok)
	}
}

func TestRegistryPanics(t *testing.T) {
	ctor := func() Driver { return nopDriver{} }

	tests := []struct {
		name string
		fn   func(r *Registry)
	}{
		{"duplicate object id", func(r *Registry) {
			r.Register(0x01000200, "HL-525", ctor)
			r.Register(0x01000200, "HL-525", ctor)
		}},
		{"name bound elsewhere", func(r *Registry) {
			r.Register(0x01000300, "HL-525", ctor)
		}},
		{"live id", func(r *Registry) {
			r.Register(0x01000201, "HL-525", ctor)
		}},
		{"nil constructor", func(r *Registry) {
			r.Register(0x01000200, "HL-525", nil)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("Register did not panic")
				}
			}()
			tt.fn(NewRegistry())
		})
	}
}
