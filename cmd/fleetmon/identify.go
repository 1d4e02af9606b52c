// cmd/fleetmon/identify.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-fleetmon/internal/config"
	"github.com/tamzrod/modbus-fleetmon/internal/poller"
	"github.com/tamzrod/modbus-fleetmon/internal/pool"
)

// identify reads the controller name and firmware revision of one address
// and prints them as JSON.
func identify(args []string) error {
	if len(args) < 1 {
		return errors.New("identify: address required")
	}

	unit := uint8(config.DefaultUnitID)
	if len(args) > 1 {
		n, err := strconv.ParseUint(args[1], 10, 8)
		if err != nil {
			return fmt.Errorf("identify: bad unit id %q", args[1])
		}
		unit = uint8(n)
	}

	p, err := pool.New(pool.Config{
		DefaultPort:    config.DefaultPort,
		ConnectTimeout: config.DefaultConnectTimeoutMs * time.Millisecond,
		Serial: pool.SerialConfig{
			BaudRate: config.DefaultBaudRate,
			DataBits: config.DefaultDataBits,
			Parity:   config.DefaultParity,
			StopBits: config.DefaultStopBits,
		},
	}, zerolog.Nop())
	if err != nil {
		return err
	}
	defer p.ReleaseAll()

	conn, err := p.Acquire(context.Background(), args[0])
	if err != nil {
		return err
	}
	defer conn.Release()

	id, err := poller.ReadIdentity(conn, unit)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"address":  conn.Address(),
		"name":     id.Name,
		"revision": id.Revision,
		"firmware": id.RevisionText(),
	})
}
