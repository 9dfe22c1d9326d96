package idfactory

import "fmt"

// Object ID range shared by every persistent entity (characters, items, clans,
// ground drops, mail). 0x00000000-0x0FFFFFFF stays reserved for client-side and
// temporary objects.
const (
	FirstObjectID int32 = 0x10000000
	LastObjectID  int32 = 0x7FFFFFFF
)

// Domain is the contiguous range [First, Last] ids are drawn from.
type Domain struct {
	First int32
	Last  int32
}

// DefaultDomain returns the object ID domain used by the game server.
func DefaultDomain() Domain {
	return Domain{First: FirstObjectID, Last: LastObjectID}
}

// Validate checks First < Last.
func (d Domain) Validate() error {
	if d.First >= d.Last {
		return fmt.Errorf("invalid id domain [%d, %d]: first must be below last", d.First, d.Last)
	}
	return nil
}

// Size returns the number of ids in the domain (both bounds included).
func (d Domain) Size() int {
	return int(d.Last) - int(d.First) + 1
}

// offset maps id to its bitset index. ok is false when id lies outside the domain.
func (d Domain) offset(id int32) (off uint, ok bool) {
	if id < d.First || id > d.Last {
		return 0, false
	}
	return uint(int(id) - int(d.First)), true
}

// Contains reports whether id lies inside the domain.
func (d Domain) Contains(id int32) bool {
	_, ok := d.offset(id)
	return ok
}
