package protocol

import "fmt"

// Family is the device family encoded in the top byte of a packet id.
type Family uint8

// Device families. Values are shared with device identities.
const (
	FamilySystem Family = 0
	FamilyLight  Family = 1
	FamilySound  Family = 2
	FamilyPTZ    Family = 3
	FamilyRelay  Family = 4
	FamilyCamera Family = 5
)

// String returns the family name.
func (f Family) String() string {
	switch f {
	case FamilySystem:
		return "System"
	case FamilyLight:
		return "Light"
	case FamilySound:
		return "Sound"
	case FamilyPTZ:
		return "PTZ"
	case FamilyRelay:
		return "Relay"
	case FamilyCamera:
		return "Camera"
	default:
		return fmt.Sprintf("Family(%d)", uint8(f))
	}
}

// Category is the message category of a packet.
type Category uint8

// Message categories.
const (
	CategoryOneWay  Category = 1
	CategoryControl Category = 2
	CategoryQuery   Category = 3
	CategorySetting Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryOneWay:
		return "OneWay"
	case CategoryControl:
		return "Control"
	case CategoryQuery:
		return "Query"
	case CategorySetting:
		return "Setting"
	default:
		return fmt.Sprintf("Category(%d)", uint8(c))
	}
}

// Bit layout of a packet id.
const (
	familyShift   = 24
	categoryShift = 16
	responseShift = 15

	byteMask  = 0xFF
	indexMask = 0x7FFF

	// MaxIndex is the largest sequence index that fits in a packet id.
	MaxIndex = indexMask
)

// ID is a 32-bit packet identity.
type ID uint32

// MakeID builds a packet id from its four fields.
//
// The function is total: index values above MaxIndex are masked to 15 bits.
// Distinct (family, category, response, index) tuples within range always
// produce distinct ids because the fields never overlap.
//
// Parameters:
//   - family: Device family (or FamilySystem)
//   - category: Message category
//   - response: True for the response half of a request/response pair
//   - index: Sequence index within family, category and direction
//
// Returns:
//   - ID: The packed packet id
func MakeID(family Family, category Category, response bool, index uint16) ID {
	var resp uint32
	if response {
		resp = 1
	}
	return ID(uint32(family)&byteMask<<familyShift |
		uint32(category)&byteMask<<categoryShift |
		resp<<responseShift |
		uint32(index)&indexMask)
}

// Family returns the family field.
func (id ID) Family() Family { return Family(uint32(id) >> familyShift & byteMask) }

// Category returns the category field.
func (id ID) Category() Category { return Category(uint32(id) >> categoryShift & byteMask) }

// IsResponse reports whether the response bit is set.
func (id ID) IsResponse() bool { return uint32(id)>>responseShift&1 == 1 }

// Index returns the 15-bit sequence index.
func (id ID) Index() uint16 { return uint16(uint32(id) & indexMask) }

// Response returns the id of the response paired with this request id.
func (id ID) Response() ID { return id | 1<<responseShift }

// Request returns the id of the request paired with this response id.
func (id ID) Request() ID { return id &^ (1 << responseShift) }

// String renders the id as hex.
func (id ID) String() string { return fmt.Sprintf("0x%08X", uint32(id)) }
