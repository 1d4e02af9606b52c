// internal/poller/builder.go
package poller

import (
	"fmt"
	"time"

	"github.com/tamzrod/modbus-fleetmon/internal/fleet"
)

// Build creates the poller of one device, selecting its register map by class.
func Build(d fleet.Device, profiles map[fleet.Class]fleet.Profile, interval, cooldown time.Duration, deps Deps) (*Poller, error) {
	prof, ok := profiles[d.Class]
	if !ok {
		return nil, fmt.Errorf("poller: %s: no register map for class %q", d.Name, d.Class)
	}

	return New(Config{
		Device:   d,
		Profile:  prof,
		Interval: interval,
		Cooldown: cooldown,
	}, deps)
}
