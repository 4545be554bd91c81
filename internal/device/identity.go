package device

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/echo-control-core/internal/protocol"
)

// ID is a 32-bit device identity: family (8) | model (16) | index (8).
type ID uint32

// InvalidID is returned by lookups that fail.
const InvalidID ID = 0xFFFFFFFF

const (
	familyMask = 0xFF000000
	modelMask  = 0x00FFFF00
	indexMask  = 0x000000FF
)

// Model is a vendor-specific model enumerant within a family.
type Model uint16

// Light models.
const (
	ModelPTLD1307 Model = 1
	ModelHL525    Model = 2
)

// Sound models.
const (
	ModelNetSpeakerV2 Model = 1
)

// PTZ models.
const (
	ModelYZBY010W Model = 1
)

// Relay models.
const (
	ModelTASIO428R2 Model = 1
)

// Camera models.
const (
	ModelHKVision  Model = 1
	ModelHSXVision Model = 2
)

// MakeID packs an identity. An index of 0 produces an object ID.
func MakeID(family protocol.Family, model Model, index uint8) ID {
	return ID(uint32(family)<<24 | uint32(model)<<8 | uint32(index))
}

// ParseID parses a hexadecimal identity, with or without a 0x prefix.
//
// Parameters:
//   - s: e.g. "0x01000201" or "01000201"
//
// Returns:
//   - ID: The parsed identity
//   - error: ErrInvalidID if s is not a 32-bit hex number
func ParseID(s string) (ID, error) {
	t := strings.TrimSpace(s)
	t = strings.TrimPrefix(strings.TrimPrefix(t, "0x"), "0X")
	if t == "" {
		return InvalidID, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	v, err := strconv.ParseUint(t, 16, 32)
	if err != nil {
		return InvalidID, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return ID(v), nil
}

// Family returns the device family.
func (id ID) Family() protocol.Family { return protocol.Family(uint32(id) & familyMask >> 24) }

// Model returns the model enumerant.
func (id ID) Model() Model { return Model(uint32(id) & modelMask >> 8) }

// Index returns the instance index.
func (id ID) Index() uint8 { return uint8(uint32(id) & indexMask) }

// ObjectID returns the identity with the index cleared.
func (id ID) ObjectID() ID { return id &^ indexMask }

// IsObjectID reports whether the index is 0.
func (id ID) IsObjectID() bool { return id.Index() == 0 }

// IsLive reports whether the identity may be assigned to a running device.
func (id ID) IsLive() bool { return id != InvalidID && id.Index() >= 1 }

// SameModel reports whether two identities share family and model.
func (id ID) SameModel(other ID) bool { return id.ObjectID() == other.ObjectID() }

// Hex renders the identity as 0x%08X.
func (id ID) Hex() string { return fmt.Sprintf("0x%08X", uint32(id)) }

// String renders the identity as Family/Model[index].
func (id ID) String() string {
	if id == InvalidID {
		return "Invalid"
	}
	return fmt.Sprintf("%s/%s[%d]", id.Family(), modelName(id.ObjectID()), id.Index())
}

// builtinModels is the static model-name table. Names are the strings used
// in configuration files.
var builtinModels = []struct {
	object ID
	name   string
}{
	{MakeID(protocol.FamilyLight, ModelPTLD1307, 0), "PT-LD-1307"},
	{MakeID(protocol.FamilyLight, ModelHL525, 0), "HL-525"},
	{MakeID(protocol.FamilySound, ModelNetSpeakerV2, 0), "NetSpeaker-V2"},
	{MakeID(protocol.FamilyPTZ, ModelYZBY010W, 0), "YZ-BY010W"},
	{MakeID(protocol.FamilyRelay, ModelTASIO428R2, 0), "TAS-IO-428R2"},
	{MakeID(protocol.FamilyCamera, ModelHKVision, 0), "HKVISION"},
	{MakeID(protocol.FamilyCamera, ModelHSXVision, 0), "HSXVISION"},
}

func modelName(object ID) string {
	for _, m := range builtinModels {
		if m.object == object {
			return m.name
		}
	}
	return fmt.Sprintf("Model(%d)", uint16(object.Model()))
}
