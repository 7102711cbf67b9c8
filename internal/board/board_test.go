package board

import (
	"errors"
	"testing"
)

// countingProbe returns a probe that yields names and counts its calls.
func countingProbe(names []string, err error) (GPIOProbe, *int) {
	calls := 0
	return func() ([]string, error) {
		calls++
		return names, err
	}, &calls
}

func TestResolveKnownBoards(t *testing.T) {
	tests := []struct {
		deviceID string
		probe    []string
		want     string
		variant  Variant
	}{
		{"edison_arduino", nil, "IO6", EdisonArduino},
		{"edison", []string{"IO0", "IO1"}, "IO6", EdisonArduino},
		{"edison", []string{"GP12", "GP13"}, "GP12", Edison},
		{"rpi3", nil, "PWM0", Rpi3},
		{"imx6ul", nil, "PWM7", Nxp},
	}

	for _, tt := range tests {
		t.Run(tt.deviceID+"/"+tt.want, func(t *testing.T) {
			probe, _ := countingProbe(tt.probe, nil)
			r := NewResolver()
			got, err := r.Resolve(tt.deviceID, probe)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("channel: got %q, want %q", got, tt.want)
			}
			v, ok := r.Variant()
			if !ok || v != tt.variant {
				t.Errorf("variant: got (%q, %v), want (%q, true)", v, ok, tt.variant)
			}
		})
	}
}

func TestResolveEdisonProbeRules(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		want  string
	}{
		{"first pin IO", []string{"IO2", "GP13"}, "IO6"},
		{"empty list", []string{}, "GP12"},
		{"nil list", nil, "GP12"},
		{"first pin GP", []string{"GP12", "IO3"}, "GP12"},
		{"lowercase io", []string{"io2"}, "GP12"},
		{"IO only later", []string{"GP44", "IO1"}, "GP12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe, calls := countingProbe(tt.names, nil)
			got, err := NewResolver().Resolve("edison", probe)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("channel: got %q, want %q", got, tt.want)
			}
			if *calls != 1 {
				t.Errorf("probe calls: got %d, want 1", *calls)
			}
		})
	}
}

func TestResolveCachesAndProbesOnce(t *testing.T) {
	probe, calls := countingProbe([]string{"IO0"}, nil)
	r := NewResolver()

	first, err := r.Resolve("edison", probe)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := r.Resolve("edison", probe)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if first != "IO6" || second != "IO6" {
		t.Errorf("channels: got %q, %q, want IO6 twice", first, second)
	}
	if *calls != 1 {
		t.Errorf("probe calls: got %d, want 1", *calls)
	}
}

func TestResolveCacheIgnoresLaterDeviceID(t *testing.T) {
	r := NewResolver()
	if _, err := r.Resolve("rpi3", nil); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	probe, calls := countingProbe([]string{"IO0"}, nil)
	got, err := r.Resolve("edison", probe)
	if err != nil {
		t.Fatalf("cached resolve: %v", err)
	}
	if got != "PWM0" {
		t.Errorf("cached channel: got %q, want PWM0", got)
	}
	if *calls != 0 {
		t.Errorf("probe calls on cache hit: got %d, want 0", *calls)
	}
}

func TestResolveUnsupported(t *testing.T) {
	for _, id := range []string{"", "rpi4", "EDISON", "beaglebone", "imx7d"} {
		t.Run(id, func(t *testing.T) {
			probe, calls := countingProbe([]string{"IO0"}, nil)
			r := NewResolver()
			got, err := r.Resolve(id, probe)
			if err == nil {
				t.Fatalf("expected error, got channel %q", got)
			}
			var ube *UnsupportedBoardError
			if !errors.As(err, &ube) {
				t.Fatalf("expected *UnsupportedBoardError, got %T: %v", err, err)
			}
			if ube.DeviceID != id {
				t.Errorf("DeviceID: got %q, want %q", ube.DeviceID, id)
			}
			if *calls != 0 {
				t.Errorf("probe calls: got %d, want 0", *calls)
			}
			if _, ok := r.Variant(); ok {
				t.Error("failed resolve must not populate the cache")
			}
		})
	}
}

func TestResolveProbeErrorNotCached(t *testing.T) {
	r := NewResolver()
	failing, _ := countingProbe(nil, errors.New("gpio busy"))
	if _, err := r.Resolve("edison", failing); err == nil {
		t.Fatal("expected probe error")
	}
	if _, ok := r.Variant(); ok {
		t.Fatal("probe failure must not populate the cache")
	}

	probe, calls := countingProbe([]string{"GP12"}, nil)
	got, err := r.Resolve("edison", probe)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got != "GP12" || *calls != 1 {
		t.Errorf("retry: got %q with %d probe calls, want GP12 with 1", got, *calls)
	}
}

func TestUnsupportedBoardErrorMessage(t *testing.T) {
	err := &UnsupportedBoardError{DeviceID: "rpi5"}
	if err.Error() != `unsupported board "rpi5"` {
		t.Errorf("message: got %q", err.Error())
	}
}

func TestVariantChannel(t *testing.T) {
	if Variant("nope").Channel() != "" {
		t.Error("unknown variant should have no channel")
	}
}
