// internal/mqtt/command.go
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Command actions.
const (
	ActionAck       = "ack"
	ActionThreshold = "threshold"
	ActionSetpoint  = "setpoint"
	ActionCommand   = "command"
)

// Command is the JSON body of a cmd message.
type Command struct {
	Action string   `json:"action"`
	Class  string   `json:"class,omitempty"`
	Value  *float64 `json:"value,omitempty"`
}

// Result is published after every command.
type Result struct {
	Device    string    `json:"device,omitempty"`
	Action    string    `json:"action"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	CommandID string    `json:"command_id,omitempty"`
	At        time.Time `json:"at"`
}

// handle routes one inbound message and publishes its result.
func (b *Bridge) handle(topic string, payload []byte) {
	device, global, ok := b.route(topic)
	if !ok {
		b.log.Debug().Str("topic", topic).Msg("ignoring message on unexpected topic")
		return
	}

	res := b.dispatch(device, global, payload)

	out, err := json.Marshal(res)
	if err != nil {
		b.log.Error().Err(err).Msg("encode result failed")
		return
	}

	resultTopic := b.topic(device, "result")
	if global {
		resultTopic = b.topic(ActionThreshold, "result")
	}
	if err := b.publish(resultTopic, false, out); err != nil {
		b.log.Warn().Err(err).Str("topic", resultTopic).Msg("publish result failed")
	}
}

// route maps a topic to a device, or to the global threshold.
func (b *Bridge) route(topic string) (device string, global bool, ok bool) {
	rest := topic
	if b.cfg.TopicPrefix != "" {
		if !strings.HasPrefix(topic, b.cfg.TopicPrefix+"/") {
			return "", false, false
		}
		rest = strings.TrimPrefix(topic, b.cfg.TopicPrefix+"/")
	}

	if rest == ActionThreshold {
		return "", true, true
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "cmd" {
		return "", false, false
	}
	return parts[0], false, true
}

func (b *Bridge) dispatch(device string, global bool, payload []byte) Result {
	res := Result{Device: device, At: time.Now()}

	var c Command
	if err := json.Unmarshal(payload, &c); err != nil {
		res.Error = fmt.Sprintf("bad payload: %v", err)
		return res
	}
	if global {
		c.Action = ActionThreshold
	}
	res.Action = c.Action

	var err error
	switch c.Action {
	case ActionAck:
		if c.Class == "" {
			err = errors.New("class required")
			break
		}
		err = b.cmd.Acknowledge(device, c.Class)

	case ActionThreshold:
		if c.Value == nil {
			err = errors.New("value required")
			break
		}
		if global {
			err = b.cmd.SetGlobalThreshold(*c.Value)
		} else {
			err = b.cmd.SetThreshold(device, *c.Value)
		}

	case ActionSetpoint:
		if c.Value == nil {
			err = errors.New("value required")
			break
		}
		res.CommandID, err = b.cmd.WriteSetpoint(b.ctx, device, *c.Value)

	case ActionCommand:
		res.CommandID, err = b.cmd.WriteCommand(b.ctx, device)

	default:
		err = fmt.Errorf("unknown action %q", c.Action)
	}

	if err != nil {
		res.Error = err.Error()
		b.log.Warn().Err(err).Str("device", device).Str("action", c.Action).Msg("mqtt command rejected")
		return res
	}

	res.OK = true
	b.log.Info().Str("device", device).Str("action", c.Action).Msg("mqtt command applied")
	return res
}
