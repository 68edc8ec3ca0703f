package input

import (
	"strings"
	"sync"
	"time"
)

// Physical indices reported by the keyboard source. They line up with the
// default calibration profile so a keyboard works without running map.
const (
	KeyboardAxisTurn     = 0
	KeyboardAxisThrottle = 1

	KeyboardButtonOpen      = 1 // z
	KeyboardButtonClose     = 2 // x, space
	KeyboardButtonStop      = 3 // r
	KeyboardButtonCloseSlow = 4 // m
	KeyboardButtonOpenSlow  = 5 // n
	KeyboardButtonQuit      = 8 // esc
	KeyboardButtonPerpetual = 9 // p
)

// SlowAxisValue is the deflection produced by the precision keys (i/j/k/l).
const SlowAxisValue = 0.3

// DefaultKeyHold is how long a tapped key counts as held. Terminals deliver
// only key-down and auto-repeat, so a key is released when the repeats stop.
const DefaultKeyHold = 500 * time.Millisecond

type axisKey struct {
	axis  int
	value float64
}

// Throttle is reported gamepad style: pushing forward is negative.
var axisKeys = map[string]axisKey{
	"w": {KeyboardAxisThrottle, -1},
	"s": {KeyboardAxisThrottle, 1},
	"a": {KeyboardAxisTurn, -1},
	"d": {KeyboardAxisTurn, 1},
	"i": {KeyboardAxisThrottle, -SlowAxisValue},
	"k": {KeyboardAxisThrottle, SlowAxisValue},
	"j": {KeyboardAxisTurn, -SlowAxisValue},
	"l": {KeyboardAxisTurn, SlowAxisValue},
}

var buttonKeys = map[string]int{
	"z":     KeyboardButtonOpen,
	"x":     KeyboardButtonClose,
	"space": KeyboardButtonClose,
	"r":     KeyboardButtonStop,
	"m":     KeyboardButtonCloseSlow,
	"n":     KeyboardButtonOpenSlow,
	"esc":   KeyboardButtonQuit,
	"p":     KeyboardButtonPerpetual,
}

var keyAliases = map[string]string{
	"up":       "w",
	"down":     "s",
	"left":     "a",
	"right":    "d",
	" ":        "space",
	"spacebar": "space",
}

type keyState struct {
	down   bool
	tapped time.Time
}

// Keyboard turns key events into polled samples. It accepts explicit
// KeyDown/KeyUp pairs as well as bare Tap events from terminals.
type Keyboard struct {
	mu   sync.Mutex
	hold time.Duration
	now  func() time.Time
	keys map[string]keyState
}

// NewKeyboard creates a keyboard source. hold <= 0 selects DefaultKeyHold.
func NewKeyboard(hold time.Duration) *Keyboard {
	if hold <= 0 {
		hold = DefaultKeyHold
	}
	return &Keyboard{
		hold: hold,
		now:  time.Now,
		keys: make(map[string]keyState),
	}
}

// Handles reports whether key is bound to a control.
func (k *Keyboard) Handles(key string) bool {
	key = normalizeKey(key)
	_, isAxis := axisKeys[key]
	_, isButton := buttonKeys[key]
	return isAxis || isButton
}

// KeyDown marks key as held until KeyUp.
func (k *Keyboard) KeyDown(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	key = normalizeKey(key)
	st := k.keys[key]
	st.down = true
	k.keys[key] = st
}

// KeyUp releases a key pressed with KeyDown or Tap.
func (k *Keyboard) KeyUp(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.keys, normalizeKey(key))
}

// Tap records a key press without a matching release.
func (k *Keyboard) Tap(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	key = normalizeKey(key)
	st := k.keys[key]
	st.tapped = k.now()
	k.keys[key] = st
}

// Poll returns the current snapshot of all bound keys.
func (k *Keyboard) Poll() (Sample, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	s := NewSample()
	s.Axes[KeyboardAxisTurn] = 0
	s.Axes[KeyboardAxisThrottle] = 0
	for _, idx := range buttonKeys {
		s.Buttons[idx] = false
	}

	for key, st := range k.keys {
		if !st.down && now.Sub(st.tapped) >= k.hold {
			delete(k.keys, key)
			continue
		}
		if ak, ok := axisKeys[key]; ok {
			s.Axes[ak.axis] += ak.value
		}
		if idx, ok := buttonKeys[key]; ok {
			s.Buttons[idx] = true
		}
	}
	for i, v := range s.Axes {
		s.Axes[i] = clampUnit(v)
	}
	return s, nil
}

func (k *Keyboard) Name() string { return "keyboard" }

func (k *Keyboard) Close() error { return nil }

func normalizeKey(key string) string {
	if len(key) == 1 {
		key = strings.ToLower(key)
	}
	if alias, ok := keyAliases[key]; ok {
		return alias
	}
	return key
}
