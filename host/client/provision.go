package client

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provision is a declarative device setup pushed over the console.
// Nil fields leave the corresponding device setting untouched.
type Provision struct {
	Timezone       string           `yaml:"timezone"`
	Hour24         *bool            `yaml:"hour24"`
	Celsius        *bool            `yaml:"celsius"`
	AutoBrightness *bool            `yaml:"auto_brightness"`
	Brightness     *uint8           `yaml:"brightness"`
	SnoozeMinutes  *uint8           `yaml:"snooze_minutes"`
	DismissSeconds *uint8           `yaml:"dismiss_seconds"`
	Alarms         []ProvisionAlarm `yaml:"alarms"`
}

// ProvisionAlarm is one alarm entry. Days lists weekday names
// ("sun".."sat", full names work too) or the single word "daily".
// An empty list makes a one-shot alarm that disables itself after
// ringing.
type ProvisionAlarm struct {
	Time    string   `yaml:"time"`
	Days    []string `yaml:"days"`
	Enabled *bool    `yaml:"enabled"`
}

var provisionDays = map[string]uint8{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

// LoadProvision reads and validates a provisioning YAML file
func LoadProvision(path string) (*Provision, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provisioning file: %w", err)
	}
	p := &Provision{}
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("failed to parse provisioning file: %w", err)
	}
	for i := range p.Alarms {
		if _, _, _, err := p.Alarms[i].fields(); err != nil {
			return nil, fmt.Errorf("alarm %d: %w", i+1, err)
		}
	}
	return p, nil
}

// fields converts the YAML entry into wire values
func (a *ProvisionAlarm) fields() (hour, minute, days uint8, err error) {
	parts := strings.Split(a.Time, ":")
	if len(parts) != 2 {
		return 0, 0, 0, fmt.Errorf("time %q is not HH:MM", a.Time)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, 0, fmt.Errorf("time %q has a bad hour", a.Time)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, 0, fmt.Errorf("time %q has a bad minute", a.Time)
	}

	var mask uint8
	for _, day := range a.Days {
		name := strings.ToLower(strings.TrimSpace(day))
		if name == "daily" {
			mask = 0x7F
			continue
		}
		if len(name) > 3 {
			name = name[:3]
		}
		bit, ok := provisionDays[name]
		if !ok {
			return 0, 0, 0, fmt.Errorf("unknown day %q", day)
		}
		mask |= 1 << bit
	}
	return uint8(h), uint8(m), mask, nil
}

// Push applies a provisioning file to the connected clock. Settings
// are written first, then the alarm list is replaced atomically with
// the begin/item/commit sequence so a failure mid-push cannot leave
// the device with half the alarms.
func (c *Client) Push(p *Provision, timeout time.Duration) error {
	if p.Timezone != "" {
		if err := c.expectOK("set_tz", []string{"tz=" + p.Timezone}, timeout); err != nil {
			return err
		}
	}

	setConfig := func(key string, value uint32) error {
		idx, ok := c.dict.EnumValue("config_key", key)
		if !ok {
			return fmt.Errorf("device does not expose config key %q", key)
		}
		return c.expectOK("set_config", []string{
			"key=" + strconv.Itoa(idx),
			"value=" + strconv.FormatUint(uint64(value), 10),
		}, timeout)
	}

	if p.SnoozeMinutes != nil {
		if err := setConfig("snooze_minutes", uint32(*p.SnoozeMinutes)); err != nil {
			return err
		}
	}
	if p.DismissSeconds != nil {
		if err := setConfig("dismiss_seconds", uint32(*p.DismissSeconds)); err != nil {
			return err
		}
	}
	if p.Hour24 != nil {
		if err := setConfig("hour24", boolValue(*p.Hour24)); err != nil {
			return err
		}
	}
	if p.Celsius != nil {
		if err := setConfig("celsius", boolValue(*p.Celsius)); err != nil {
			return err
		}
	}
	if p.AutoBrightness != nil {
		if err := setConfig("auto_brightness", boolValue(*p.AutoBrightness)); err != nil {
			return err
		}
	}
	if p.Brightness != nil {
		if err := setConfig("brightness", uint32(*p.Brightness)); err != nil {
			return err
		}
	}

	if len(p.Alarms) == 0 {
		return nil
	}

	err := c.expectOK("alarms_begin", []string{
		"count=" + strconv.Itoa(len(p.Alarms)),
	}, timeout)
	if err != nil {
		return err
	}
	for i := range p.Alarms {
		hour, minute, days, err := p.Alarms[i].fields()
		if err != nil {
			return fmt.Errorf("alarm %d: %w", i+1, err)
		}
		enabled := uint32(1)
		if p.Alarms[i].Enabled != nil {
			enabled = boolValue(*p.Alarms[i].Enabled)
		}
		err = c.expectOK("alarms_item", []string{
			"enabled=" + strconv.FormatUint(uint64(enabled), 10),
			"hour=" + strconv.Itoa(int(hour)),
			"minute=" + strconv.Itoa(int(minute)),
			"days=" + strconv.Itoa(int(days)),
		}, timeout)
		if err != nil {
			return fmt.Errorf("alarm %d: %w", i+1, err)
		}
	}
	return c.expectOK("alarms_commit", nil, timeout)
}

func boolValue(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// expectOK runs a command and fails on a negative or missing result.
// set_tz answers with a tz frame instead of a result on success, so a
// burst with frames but no result also counts as success.
func (c *Client) expectOK(name string, argv []string, timeout time.Duration) error {
	responses, err := c.Call(name, argv, timeout)
	if err != nil {
		return err
	}
	ok, msg, found := Result(responses)
	if found && !ok {
		return fmt.Errorf("%s: %s", name, msg)
	}
	if !found && len(responses) == 0 {
		return fmt.Errorf("%s: no response", name)
	}
	return nil
}
