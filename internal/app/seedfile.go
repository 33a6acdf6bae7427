package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// ReadSeed accepts either a bare JSON array of city records or an object
// holding them under "cities".
func ReadSeed(r io.Reader) ([]map[string]any, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, fmt.Errorf("seed file is empty")
	}

	if b[0] == '[' {
		var out []map[string]any
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, fmt.Errorf("decode seed array: %w", err)
		}
		return out, nil
	}
	var wrapped struct {
		Cities []map[string]any `json:"cities"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return nil, fmt.Errorf("decode seed object: %w", err)
	}
	return wrapped.Cities, nil
}

func LoadSeedFile(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	recs, err := ReadSeed(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}
