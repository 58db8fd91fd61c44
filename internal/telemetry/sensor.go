package telemetry

import (
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

const (
	AliasUnderPressure = "underPressure"
	AliasOverPressure  = "overPressure"

	TempHigh        = 120
	TempLowStrict   = -20
	TempLowSentinel = -20000002
	TempStep        = 0.2
	PressureLow     = 1
	PressureHigh    = 100
	PressureStep    = 5
)

// ClampPolicy selects what happens when outside temperature walks below -20.
type ClampPolicy string

const (
	ClampStrict ClampPolicy = "strict" // clamp to -20
	ClampLegacy ClampPolicy = "legacy" // replace with -20000002 sentinel, dashboards of old firmware expect it
)

func ParseClampPolicy(s string) (ClampPolicy, error) {
	switch ClampPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ClampStrict:
		return ClampStrict, nil
	case ClampLegacy:
		return ClampLegacy, nil
	}
	return "", errors.NotValidf("clamp_policy=%q", s)
}

// SensorState is simulated refrigeration unit.
// Only OutsideTemp, RefrigPressure and Uptime change, the rest are constants reported every tick.
type SensorState struct {
	OutsideTemp       float64
	RefrigPressure    float64
	Uptime            int
	Registered        int
	Location          string
	BatteryLevel      float64
	CompressorPowered int
	CompressorRunning int
	SignalStrength    int
	Tamper1           int
	Tamper2           int
	MainsPower        int
	Carrier           string
	IMEI              string

	// last values received from platform
	UnderPressure string
	OverPressure  string
}

func NewSensorState() *SensorState {
	return &SensorState{
		OutsideTemp:       60,
		RefrigPressure:    25,
		Registered:        1,
		Location:          "35.78958593, -78.65986705",
		BatteryLevel:      11.6,
		CompressorPowered: 1,
		CompressorRunning: 1,
		SignalStrength:    -90,
		MainsPower:        1,
		Carrier:           "Verizon",
		IMEI:              "12345-12345",
		UnderPressure:     "-1",
		OverPressure:      "-1",
	}
}

// Walk moves temperature and pressure by bounded random step.
func (s *SensorState) Walk(rnd *rand.Rand, policy ClampPolicy) {
	t := round(uniform(rnd, s.OutsideTemp-TempStep, s.OutsideTemp+TempStep), 1)
	if t > TempHigh {
		t = TempHigh
	}
	if t < TempLowStrict {
		if policy == ClampLegacy {
			t = TempLowSentinel
		} else {
			t = TempLowStrict
		}
	}
	s.OutsideTemp = t

	p := round(uniform(rnd, s.RefrigPressure-PressureStep, s.RefrigPressure+PressureStep), 2)
	if p > PressureHigh {
		p = PressureHigh
	}
	if p < PressureLow {
		p = PressureLow
	}
	s.RefrigPressure = p
}

// SetInput stores value polled for alias, unknown alias is error.
func (s *SensorState) SetInput(alias, value string) error {
	switch alias {
	case AliasUnderPressure:
		s.UnderPressure = value
	case AliasOverPressure:
		s.OverPressure = value
	default:
		return errors.NotFoundf("input alias=%s", alias)
	}
	return nil
}

func (s *SensorState) Input(alias string) string {
	switch alias {
	case AliasUnderPressure:
		return s.UnderPressure
	case AliasOverPressure:
		return s.OverPressure
	}
	return ""
}

// Fields returns telemetry record as ordered name, value pairs.
func (s *SensorState) Fields() [][2]string {
	return [][2]string{
		{"outside_temp", formatFloat(s.OutsideTemp)},
		{"refrig_pressure", formatFloat(s.RefrigPressure)},
		{"conn_uptime", strconv.Itoa(s.Uptime)},
		{"registered", strconv.Itoa(s.Registered)},
		{"location", s.Location},
		{"battery_lvl", formatFloat(s.BatteryLevel)},
		{"compressor_powered", strconv.Itoa(s.CompressorPowered)},
		{"compressor_running", strconv.Itoa(s.CompressorRunning)},
		{"signal_strength", strconv.Itoa(s.SignalStrength)},
		{"tamper_1", strconv.Itoa(s.Tamper1)},
		{"tamper_2", strconv.Itoa(s.Tamper2)},
		{"mains_power", strconv.Itoa(s.MainsPower)},
		{"carrier", s.Carrier},
		{"imei", s.IMEI},
	}
}

// Encode is form encoded telemetry record for alias write. Field order is stable,
// url.Values.Encode would sort keys.
func (s *SensorState) Encode() []byte {
	var b strings.Builder
	b.Grow(320)
	for i, f := range s.Fields() {
		if i != 0 {
			b.WriteByte('&')
		}
		b.WriteString(f[0])
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f[1]))
	}
	return []byte(b.String())
}

func (s *SensorState) String() string {
	return fmt.Sprintf("outside_temp=%s refrig_pressure=%s uptime=%d underPressure=%s overPressure=%s",
		formatFloat(s.OutsideTemp), formatFloat(s.RefrigPressure), s.Uptime, s.UnderPressure, s.OverPressure)
}

func uniform(rnd *rand.Rand, lo, hi float64) float64 {
	return lo + rnd.Float64()*(hi-lo)
}

func round(x float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(x*p) / p
}

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
