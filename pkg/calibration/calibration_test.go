package calibration

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/gwillem/clawctl/pkg/input"
	"github.com/pkg/errors"
)

func TestDefault_Valid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default profile invalid: %v", err)
	}
}

func TestProfile_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(p *Profile)
		ambiguous bool
	}{
		{"deadzone one", func(p *Profile) { p.Deadzone = 1 }, false},
		{"negative deadzone", func(p *Profile) { p.Deadzone = -0.1 }, false},
		{"zero turn scale", func(p *Profile) { p.TurnScale = 0 }, false},
		{"zero max speed", func(p *Profile) { p.MaxSpeed = 0 }, false},
		{"zero sample rate", func(p *Profile) { p.SampleRateHz = 0 }, false},
		{"sample rate too high", func(p *Profile) { p.SampleRateHz = 2e9 }, false},
		{"bad override", func(p *Profile) { p.PerpetualOverride = "sometimes" }, false},
		{"unknown axis", func(p *Profile) { p.Axes[0].Name = "yaw" }, false},
		{"axis twice", func(p *Profile) { p.Axes[1] = AxisMapping{Name: Throttle, Index: 3} }, false},
		{"shared axis index", func(p *Profile) { p.Axes[1].Index = p.Axes[0].Index }, true},
		{"shared button index", func(p *Profile) { p.Buttons[1].Index = p.Buttons[0].Index }, true},
	}

	for _, tt := range tests {
		p := Default()
		tt.mutate(p)
		err := p.Validate()
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: err = %v, want ErrInvalid", tt.name, err)
		}
		if got := errors.Is(err, ErrAmbiguous); got != tt.ambiguous {
			t.Errorf("%s: ambiguous = %v, want %v", tt.name, got, tt.ambiguous)
		}
	}
}

func TestStore_RoundTrip(t *testing.T) {
	for _, name := range []string{"profile.json", "profile.yaml"} {
		path := filepath.Join(t.TempDir(), name)

		p := Default()
		p.Deadzone = 0.05
		p.SpeedSteps = 4
		p.PerpetualOverride = OverrideAny
		// out of logical order on purpose
		p.Buttons[0], p.Buttons[3] = p.Buttons[3], p.Buttons[0]

		if err := p.SaveTo(path); err != nil {
			t.Fatalf("%s: save: %v", name, err)
		}
		first, _ := os.ReadFile(path)

		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("%s: load: %v", name, err)
		}
		want := p.Clone()
		want.canonicalize()
		if !reflect.DeepEqual(loaded, want) {
			t.Errorf("%s: loaded %+v, want %+v", name, loaded, want)
		}

		if err := loaded.SaveTo(path); err != nil {
			t.Fatalf("%s: resave: %v", name, err)
		}
		second, _ := os.ReadFile(path)
		if !bytes.Equal(first, second) {
			t.Errorf("%s: save-load-save changed the document:\n%s\n---\n%s", name, first, second)
		}
	}
}

func TestStore_LoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing file: err = %v, want fs.ErrNotExist", err)
	}

	corrupt := filepath.Join(dir, "corrupt.json")
	os.WriteFile(corrupt, []byte("{not json"), 0644)
	if _, err := Load(corrupt); !errors.Is(err, ErrInvalid) {
		t.Errorf("corrupt file: err = %v, want ErrInvalid", err)
	}

	p := Default()
	p.Buttons[2].Index = p.Buttons[4].Index
	ambiguous := filepath.Join(dir, "ambiguous.json")
	data, _ := p.Marshal(false)
	os.WriteFile(ambiguous, data, 0644)
	if _, err := Load(ambiguous); !errors.Is(err, ErrAmbiguous) {
		t.Errorf("ambiguous file: err = %v, want ErrAmbiguous", err)
	}
}

func TestLoadOrDefault(t *testing.T) {
	p, usedDefault, err := LoadOrDefault(filepath.Join(t.TempDir(), "none.json"))
	if err != nil || !usedDefault {
		t.Fatalf("LoadOrDefault = %v, %v", usedDefault, err)
	}
	if !reflect.DeepEqual(p, Default()) {
		t.Error("expected the built-in default")
	}
}

func TestTuning_Apply(t *testing.T) {
	dz, speed := 0.2, 250
	p := Default()
	if err := (Tuning{Deadzone: &dz, MaxSpeed: &speed}).Apply(p); err != nil {
		t.Fatal(err)
	}
	if p.Deadzone != 0.2 || p.MaxSpeed != 250 || p.TurnScale != 1.0 {
		t.Errorf("tuning not applied: %+v", p)
	}

	rate := -5.0
	if err := (Tuning{SampleRateHz: &rate}).Apply(Default()); !errors.Is(err, ErrFatalConfig) {
		t.Errorf("negative sample rate: err = %v, want ErrFatalConfig", err)
	}
	rate = MaxSampleRateHz + 1
	if err := (Tuning{SampleRateHz: &rate}).Apply(Default()); !errors.Is(err, ErrFatalConfig) {
		t.Errorf("sample rate %v: err = %v, want ErrFatalConfig", rate, err)
	}
}

func TestProfile_EffectivePerpetualSpeed(t *testing.T) {
	tests := []struct {
		maxSpeed, perpetual, want int
	}{
		{400, 0, 200},
		{1, 0, 1},
		{3, 0, 1},
		{100, 250, 100},
		{100, 30, 30},
	}
	for _, tt := range tests {
		p := Default()
		p.MaxSpeed, p.PerpetualSpeed = tt.maxSpeed, tt.perpetual
		if got := p.EffectivePerpetualSpeed(); got != tt.want {
			t.Errorf("EffectivePerpetualSpeed(max %d, perpetual %d) = %d, want %d", tt.maxSpeed, tt.perpetual, got, tt.want)
		}
	}
}

func TestProfile_TickInterval(t *testing.T) {
	p := Default()
	p.SampleRateHz = 50
	if got := p.TickInterval().Milliseconds(); got != 20 {
		t.Errorf("TickInterval = %dms, want 20ms", got)
	}
}

func axisSample(index int, v float64) input.Sample {
	return input.NewSample().WithAxis(0, 0).WithAxis(1, 0).WithAxis(index, v)
}

func buttonSample(index int) input.Sample {
	return axisSample(0, 0).WithButton(index, true)
}

func TestMapper_Walkthrough(t *testing.T) {
	m := NewMapper()
	rest := axisSample(0, 0)
	m.Feed(rest)

	// throttle: stick forward reads negative on axis 1
	if ok, err := m.Feed(axisSample(1, -0.9)); !ok || err != nil {
		t.Fatalf("throttle: %v %v", ok, err)
	}
	// still deflected: nothing happens until rest
	if ok, _ := m.Feed(axisSample(0, 0.9)); ok {
		t.Fatal("bound while waiting for rest")
	}
	m.Feed(rest)

	// turn on the same axis is ambiguous and re-prompted
	_, err := m.Feed(axisSample(1, 0.9))
	if !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("err = %v, want ErrAmbiguous", err)
	}
	if step, _ := m.Current(); step.Axis != Turn {
		t.Fatalf("current = %v, want turn re-prompted", step)
	}
	m.Feed(rest)
	if ok, err := m.Feed(axisSample(0, 0.8)); !ok || err != nil {
		t.Fatalf("turn: %v %v", ok, err)
	}
	m.Feed(rest)

	for i := range AllActions() {
		if i == 2 {
			m.Skip()
			m.Feed(rest)
			continue
		}
		if ok, err := m.Feed(buttonSample(10 + i)); !ok || err != nil {
			t.Fatalf("button %d: %v %v", i, ok, err)
		}
		m.Feed(rest)
	}
	if !m.Done() {
		t.Fatal("mapper not done")
	}

	p := m.Profile(Default())
	if err := p.Validate(); err != nil {
		t.Fatalf("mapped profile invalid: %v", err)
	}
	if a, _ := p.Axis(Throttle); a.Index != 1 || !a.Invert {
		t.Errorf("throttle = %+v, want index 1 inverted", a)
	}
	if a, _ := p.Axis(Turn); a.Index != 0 || a.Invert {
		t.Errorf("turn = %+v, want index 0", a)
	}
	if _, ok := p.Button(AllActions()[2]); ok {
		t.Error("skipped action should be unbound")
	}
	if b, _ := p.Button(Quit); b.Index != 16 {
		t.Errorf("quit index = %d, want 16", b.Index)
	}
}

func TestMapper_DuplicateButton(t *testing.T) {
	m := NewMapper()
	rest := axisSample(0, 0)
	m.Feed(rest)
	m.Skip()
	m.Skip()
	m.Feed(rest)

	m.Feed(buttonSample(3))
	m.Feed(rest)
	if _, err := m.Feed(buttonSample(3)); !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("err = %v, want ErrAmbiguous", err)
	}
	m.Feed(rest)
	if ok, _ := m.Feed(buttonSample(4)); !ok {
		t.Fatal("second action not bound after re-prompt")
	}
	if done, _ := m.Progress(); done != 4 {
		t.Errorf("progress = %d, want 4", done)
	}
}
