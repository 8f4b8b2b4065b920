package app

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/magiconair/properties"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// propertiesFormats are the config file extensions read as Java-style
// properties files.
var propertiesFormats = []string{"properties", "props", "prop"}

// propertiesCodec reads and writes flat "a.b.c=value" files as nested maps.
type propertiesCodec struct{}

var _ viper.Codec = propertiesCodec{}

func (propertiesCodec) Decode(b []byte, v map[string]any) error {
	p, err := properties.Load(b, properties.UTF8)
	if err != nil {
		return err
	}

	for _, key := range p.Keys() {
		value, _ := p.Get(key)
		path := strings.Split(key, ".")
		node := v
		for _, part := range path[:len(path)-1] {
			next, ok := node[part]
			if !ok {
				child := map[string]any{}
				node[part] = child
				node = child
				continue
			}
			child, ok := next.(map[string]any)
			if !ok {
				return fmt.Errorf("properties key %q conflicts with value at %q", key, part)
			}
			node = child
		}
		leaf := path[len(path)-1]
		if _, ok := node[leaf].(map[string]any); ok {
			return fmt.Errorf("properties key %q conflicts with a nested key", key)
		}
		node[leaf] = value
	}
	return nil
}

func (propertiesCodec) Encode(v map[string]any) ([]byte, error) {
	flat := map[string]string{}
	flatten("", v, flat)

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := properties.NewProperties()
	for _, k := range keys {
		if _, _, err := p.Set(k, flat[k]); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := p.Write(&buf, properties.UTF8); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func flatten(prefix string, v map[string]any, out map[string]string) {
	for k, val := range v {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := val.(map[string]any); ok {
			flatten(key, child, out)
			continue
		}
		out[key] = cast.ToString(val)
	}
}

// newCodecRegistry returns viper's default codecs plus the properties format.
func newCodecRegistry() (*viper.DefaultCodecRegistry, error) {
	reg := viper.NewCodecRegistry()
	for _, format := range propertiesFormats {
		if err := reg.RegisterCodec(format, propertiesCodec{}); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
