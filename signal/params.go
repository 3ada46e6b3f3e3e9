package signal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ParamSet maps a symbol to its tuned parameters. On disk it is the
// optimizer's output: {"SPY": {"params": {...}, "score": 1.2}}.
type ParamSet map[string]Tuned

type Tuned struct {
	Params Params  `json:"params"`
	Score  float64 `json:"score"`
}

// For returns the tuned params for symbol, or the defaults.
func (ps ParamSet) For(symbol string) Params {
	if t, ok := ps[strings.ToUpper(symbol)]; ok && t.Params.Validate() == nil {
		return t.Params.withDefaults()
	}
	return DefaultParams()
}

// LoadParams reads a ParamSet. A missing file is an empty set.
func LoadParams(path string) (ParamSet, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return ParamSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read params %s: %w", path, err)
	}

	var raw map[string]Tuned
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse params %s: %w", path, err)
	}

	ps := make(ParamSet, len(raw))
	for sym, t := range raw {
		ps[strings.ToUpper(sym)] = t
	}
	return ps, nil
}

func (ps ParamSet) Save(path string) error {
	data, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write params %s: %w", path, err)
	}
	return nil
}
