package stacksim

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/bleloop/bleloop/stack"
)

// Scenario is a YAML-described emission script. Playing one drives the
// simulator's producer side the way a radio would, with deterministic
// content and timing.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is one scripted action. Fields beyond Action apply only
// to the actions that read them.
type ScenarioStep struct {
	// Action is one of scan_result, completion, rssi, connect,
	// disconnect, register_app, pause.
	Action string `yaml:"action"`

	// DelayMs is slept before the step runs.
	DelayMs int `yaml:"delay_ms,omitempty"`

	// Repeat replays the step this many times.
	Repeat int `yaml:"repeat,omitempty" default:"1"`

	Event  string `yaml:"event,omitempty"`
	Status string `yaml:"status,omitempty" default:"success"`
	Addr   string `yaml:"addr,omitempty"`
	RSSI   int8   `yaml:"rssi,omitempty"`
	Name   string `yaml:"name,omitempty"`
	AppID  uint16 `yaml:"app_id,omitempty"`
	ConnID uint16 `yaml:"conn_id,omitempty"`
	Iface  uint8  `yaml:"iface,omitempty" default:"1"`
	Reason uint8  `yaml:"reason,omitempty"`
}

var completionEvents = map[string]stack.GAPEvent{
	"scan_param_set_complete":    stack.GAPScanParamSetComplete,
	"scan_start_complete":        stack.GAPScanStartComplete,
	"scan_stop_complete":         stack.GAPScanStopComplete,
	"adv_data_set_complete":      stack.GAPAdvDataSetComplete,
	"scan_rsp_data_set_complete": stack.GAPScanRspDataSetComplete,
	"adv_start_complete":         stack.GAPAdvStartComplete,
	"adv_stop_complete":          stack.GAPAdvStopComplete,
	"read_rssi_complete":         stack.GAPReadRSSIComplete,
	"auth_complete":              stack.GAPAuthComplete,
	"security_request":           stack.GAPSecurityRequest,
}

var statusNames = map[string]stack.Status{
	"success": stack.StatusSuccess,
	"fail":    stack.StatusFail,
	"nomem":   stack.StatusNoMem,
	"busy":    stack.StatusBusy,
	"timeout": stack.StatusTimeout,
}

// ParseScenario decodes and validates a YAML scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	for i := range sc.Steps {
		defaults.SetDefaults(&sc.Steps[i])
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// LoadScenario reads and parses a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	return ParseScenario(data)
}

func (sc *Scenario) validate() error {
	if len(sc.Steps) == 0 {
		return fmt.Errorf("scenario %q: no steps", sc.Name)
	}
	for i, step := range sc.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("scenario %q step %d: %w", sc.Name, i, err)
		}
	}
	return nil
}

func (st *ScenarioStep) validate() error {
	if _, ok := statusNames[st.Status]; !ok {
		return fmt.Errorf("unknown status %q", st.Status)
	}
	switch st.Action {
	case "scan_result", "rssi", "connect", "disconnect":
		if _, err := stack.ParseAddr(st.Addr); err != nil {
			return err
		}
	case "completion":
		if _, ok := completionEvents[st.Event]; !ok {
			return fmt.Errorf("unknown completion event %q", st.Event)
		}
	case "register_app", "pause":
	default:
		return fmt.Errorf("unknown action %q", st.Action)
	}
	return nil
}

// Play runs the scenario against sim on the calling goroutine, which
// takes the producer role. It stops early when ctx is canceled.
func (sc *Scenario) Play(ctx context.Context, sim *Sim, logger *logrus.Logger) error {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("scenario", sc.Name)
	log.Debug("Playing scenario")

	for i, step := range sc.Steps {
		if step.DelayMs > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(step.DelayMs) * time.Millisecond):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		for n := 0; n < step.Repeat; n++ {
			if err := step.run(sim); err != nil {
				return fmt.Errorf("scenario %q step %d: %w", sc.Name, i, err)
			}
		}
		log.WithFields(logrus.Fields{"step": i, "action": step.Action}).Trace("Step done")
	}
	return nil
}

func (st *ScenarioStep) run(sim *Sim) error {
	switch st.Action {
	case "pause":
		return nil

	case "scan_result":
		addr := stack.MustParseAddr(st.Addr)
		res := stack.ScanResult{
			SearchEvent: stack.SearchInquiryResult,
			Addr:        addr,
			AddrType:    stack.AddrTypePublic,
			RSSI:        st.RSSI,
		}
		payload := AdvPayload(st.Name)
		res.AdvDataLen = uint8(copy(res.AdvData[:], payload))
		sim.EmitScanResult(&res)
		return nil

	case "completion":
		sim.EmitCompletion(completionEvents[st.Event], statusNames[st.Status])
		return nil

	case "rssi":
		sim.EmitRSSI(stack.MustParseAddr(st.Addr), st.RSSI, statusNames[st.Status])
		return nil

	case "connect":
		sim.Connect(stack.GATTIf(st.Iface), stack.ConnID(st.ConnID), stack.MustParseAddr(st.Addr))
		return nil

	case "disconnect":
		sim.Disconnect(stack.GATTIf(st.Iface), stack.ConnID(st.ConnID), stack.MustParseAddr(st.Addr), st.Reason)
		return nil

	case "register_app":
		sim.RegisterApp(st.AppID)
		return nil
	}
	return fmt.Errorf("unknown action %q", st.Action)
}

// AdvPayload composes a minimal raw advertisement: a flags record plus,
// when name is non-empty, a complete-local-name record.
func AdvPayload(name string) []byte {
	payload := []byte{2, stack.ADTypeFlags, 0x06}
	if name == "" {
		return payload
	}
	if len(name) > 29 {
		name = name[:29]
	}
	payload = append(payload, byte(1+len(name)), stack.ADTypeCompleteLocalName)
	return append(payload, name...)
}
