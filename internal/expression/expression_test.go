package expression

import (
	"errors"
	"testing"

	"sphero-behavior/internal/device"
	"sphero-behavior/internal/models"
)

func TestParsePattern(t *testing.T) {
	tests := []struct {
		name    string
		rows    []string
		wantErr bool
	}{
		{"valid", []string{"r0000000", "00000000", "00000000", "00000000", "00000000", "00000000", "00000000", "0000000w"}, false},
		{"short", []string{"00000000"}, true},
		{"narrow row", []string{"0000000", "00000000", "00000000", "00000000", "00000000", "00000000", "00000000", "00000000"}, true},
		{"bad key", []string{"z0000000", "00000000", "00000000", "00000000", "00000000", "00000000", "00000000", "00000000"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParsePattern(tt.rows)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePattern() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if m[0][0] == nil || m[7][7] == nil || m[0][1] != nil {
				t.Errorf("Unexpected matrix %+v", m)
			}
		})
	}
}

func TestLibrary(t *testing.T) {
	names := Names()
	if len(names) != 7 {
		t.Fatalf("Expected 7 expressions, got %v", names)
	}
	for _, s := range models.AllStates {
		if _, err := Lookup(ForState(s)); err != nil {
			t.Errorf("State %s has no expression: %v", s, err)
		}
	}
	if _, err := Lookup("disco"); !errors.Is(err, ErrUnknownExpression) {
		t.Errorf("Expected ErrUnknownExpression, got %v", err)
	}
}

func TestShow(t *testing.T) {
	sim := device.NewSimulator()
	if err := Show(sim, Angry); err != nil {
		t.Fatalf("Show failed: %v", err)
	}

	want, _ := Lookup(Angry)
	st := sim.State()
	if st.Front != want.Indicator || st.Back != want.Indicator {
		t.Errorf("Expected indicators %v, got %v/%v", want.Indicator, st.Front, st.Back)
	}
	if sim.CountCalls(device.MethodClearMatrix) != 1 || sim.CountCalls(device.MethodRenderMatrix) != 1 {
		t.Error("Expected one clear and one render")
	}

	boom := errors.New("boom")
	sim.SetFault(func(method string) error {
		if method == device.MethodRenderMatrix {
			return boom
		}
		return nil
	})
	if err := Show(sim, Smile); !errors.Is(err, boom) {
		t.Fatalf("Expected render fault, got %v", err)
	}
	if sim.State().Front != indicators[Smile] {
		t.Error("Indicators must still be set after a render failure")
	}
}
