// internal/poller/identity.go
package poller

import (
	"fmt"

	"github.com/tamzrod/modbus-fleetmon/internal/codec"
	"github.com/tamzrod/modbus-fleetmon/internal/fleet"
)

// identityWords is the length of the ASCII name block.
const identityWords = 10

// HoldingReader is the read side needed for identification.
type HoldingReader interface {
	ReadHoldingRegisters(unitID uint8, addr, qty uint16) ([]uint16, error)
}

// Identity is what a controller reports about itself.
type Identity struct {
	Name     string `json:"name"`
	Revision uint16 `json:"revision"`
}

// RevisionText maps known firmware revision codes to their names.
func (id Identity) RevisionText() string {
	switch id.Revision {
	case 22:
		return "v8"
	case 1:
		return "v1"
	}
	return fmt.Sprintf("rev %d", id.Revision)
}

// ReadIdentity reads the controller name block and firmware revision.
func ReadIdentity(r HoldingReader, unitID uint8) (Identity, error) {
	words, err := r.ReadHoldingRegisters(unitID, fleet.RegIdentityName, identityWords)
	if err != nil {
		return Identity{}, fmt.Errorf("identity name: %w", err)
	}
	rev, err := r.ReadHoldingRegisters(unitID, fleet.RegIdentityRev, 1)
	if err != nil {
		return Identity{}, fmt.Errorf("identity revision: %w", err)
	}
	if len(rev) < 1 {
		return Identity{}, fmt.Errorf("identity revision: %w: empty response", fleet.ErrReadFailed)
	}

	return Identity{Name: codec.DecodeASCII(words), Revision: rev[0]}, nil
}
