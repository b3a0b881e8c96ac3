package postgres

import (
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// Amounts and fixed-point vectors cross the SQL boundary as decimal strings
// so no precision is lost to numeric coercion.

func parseInt(s string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("postgres: malformed integer %q", s)
	}
	return v, nil
}

func encodeIntVec(vals []sdkmath.Int) ([]byte, error) {
	if vals == nil {
		return nil, nil
	}
	strs := make([]string, len(vals))
	for i, v := range vals {
		strs[i] = v.String()
	}
	return json.Marshal(strs)
}

func decodeIntVec(raw []byte) ([]sdkmath.Int, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var strs []string
	if err := json.Unmarshal(raw, &strs); err != nil {
		return nil, fmt.Errorf("postgres: decode integer vector: %w", err)
	}
	out := make([]sdkmath.Int, len(strs))
	for i, s := range strs {
		v, err := parseInt(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func encodeDecVec(vals []sdkmath.LegacyDec) ([]byte, error) {
	if vals == nil {
		return nil, nil
	}
	strs := make([]string, len(vals))
	for i, v := range vals {
		strs[i] = v.String()
	}
	return json.Marshal(strs)
}

func decodeDecVec(raw []byte) ([]sdkmath.LegacyDec, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var strs []string
	if err := json.Unmarshal(raw, &strs); err != nil {
		return nil, fmt.Errorf("postgres: decode decimal vector: %w", err)
	}
	out := make([]sdkmath.LegacyDec, len(strs))
	for i, s := range strs {
		v, err := sdkmath.LegacyNewDecFromStr(s)
		if err != nil {
			return nil, fmt.Errorf("postgres: malformed decimal %q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}
