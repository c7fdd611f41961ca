// Package datafile reads render data from JSON, YAML or TOML documents.
package datafile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/benjaminschreck/go-xtpl/pkg/xtpl"
)

// Format names a supported data file encoding
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	TOML Format = "toml"
)

// FormatForPath picks the format from a file extension
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON, nil
	case ".yaml", ".yml":
		return YAML, nil
	case ".toml":
		return TOML, nil
	}
	return "", fmt.Errorf("unsupported data file extension %q", filepath.Ext(path))
}

// Load decodes the data file at path, choosing the format by extension
func Load(path string) (interface{}, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, xtpl.WithContext(err, "open data file", map[string]interface{}{"path": path})
	}
	defer f.Close()

	data, err := Decode(f, format)
	if err != nil {
		return nil, xtpl.WithContext(err, "decode data file", map[string]interface{}{"path": path})
	}
	return data, nil
}

// Decode reads one document in the given format. Objects decode to xtpl.Data
// and arrays to []interface{} so templates see the same shapes whatever the
// source encoding.
func Decode(r io.Reader, format Format) (interface{}, error) {
	var raw interface{}
	switch format {
	case JSON:
		dec := json.NewDecoder(r)
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
	case YAML:
		if err := yaml.NewDecoder(r).Decode(&raw); err != nil && err != io.EOF {
			return nil, err
		}
	case TOML:
		var doc map[string]interface{}
		if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
			return nil, err
		}
		raw = doc
	default:
		return nil, fmt.Errorf("unsupported data format %q", format)
	}
	return normalize(raw), nil
}

func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(xtpl.Data, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(xtpl.Data, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		f, _ := val.Float64()
		return f
	}
	return v
}
