package trading

import (
	"encoding/json"
	"strconv"
)

// Score is an optional percent value. The zero value means "not tradable"
// and never takes part in arithmetic.
type Score struct {
	value float64
	ok    bool
}

// NotTradable is the empty score.
var NotTradable = Score{}

func ScoreOf(v float64) Score {
	return Score{value: v, ok: true}
}

func (s Score) Value() (float64, bool) {
	return s.value, s.ok
}

func (s Score) Valid() bool {
	return s.ok
}

// AtLeast reports whether the score is present and >= threshold.
func (s Score) AtLeast(threshold float64) bool {
	return s.ok && s.value >= threshold
}

// AtMost reports whether the score is present and <= v.
func (s Score) AtMost(v float64) bool {
	return s.ok && s.value <= v
}

func (s Score) String() string {
	if !s.ok {
		return "n/a"
	}
	return strconv.FormatFloat(s.value, 'f', 2, 64)
}

func (s Score) MarshalJSON() ([]byte, error) {
	if !s.ok {
		return []byte("null"), nil
	}
	return json.Marshal(s.value)
}

func (s *Score) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = NotTradable
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = ScoreOf(v)
	return nil
}
