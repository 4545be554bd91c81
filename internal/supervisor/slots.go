package supervisor

import (
	"sort"
	"strconv"
	"strings"
)

// slotPrefix starts every slot section name, e.g. "Slot_3".
const slotPrefix = "Slot_"

// maxSlot is the largest slot number a status push can carry.
const maxSlot = 255

// Slot is one device slot read from configuration.
type Slot struct {
	// ID is the slot number parsed from the section name.
	ID int

	// Section is the configuration section name.
	Section string

	// Values holds the raw key/value pairs.
	Values map[string]string
}

// Rule constrains what may occupy a slot.
type Rule struct {
	// Mandatory slots log an error when disabled or invalid.
	Mandatory bool

	// AllowedModels restricts the model names accepted in the slot.
	// Empty accepts any model.
	AllowedModels []string
}

func (r Rule) allows(model string) bool {
	if len(r.AllowedModels) == 0 {
		return true
	}
	for _, m := range r.AllowedModels {
		if strings.EqualFold(m, model) {
			return true
		}
	}
	return false
}

// ParseSlotID extracts the slot number from a section name of the form
// "Slot_<n>" with n between 1 and 255.
func ParseSlotID(section string) (int, bool) {
	rest, ok := strings.CutPrefix(section, slotPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 || n > maxSlot {
		return 0, false
	}
	return n, true
}

// SlotsFromSections converts configuration sections into slots ordered by
// slot number. Sections whose names are not slot names are returned
// separately so the caller can report them.
func SlotsFromSections(sections map[string]map[string]string) (slots []Slot, rejected []string) {
	for name, values := range sections {
		id, ok := ParseSlotID(name)
		if !ok {
			rejected = append(rejected, name)
			continue
		}
		slots = append(slots, Slot{ID: id, Section: name, Values: values})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].ID < slots[j].ID })
	sort.Strings(rejected)
	return slots, rejected
}
