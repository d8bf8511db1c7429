package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Limits bounds the resources spent parsing a configuration document
type Limits struct {
	MaxFileSize  int64 // Maximum document size in bytes (default: 1MiB)
	MaxDepth     int   // Maximum nesting depth (default: 20)
	MaxNodes     int   // Maximum number of nodes (default: 10000)
	MaxKeyLength int   // Maximum key length in bytes (default: 256)
}

// DefaultLimits returns the limits used by LoadConfig
func DefaultLimits() Limits {
	return Limits{
		MaxFileSize:  1 << 20,
		MaxDepth:     20,
		MaxNodes:     10000,
		MaxKeyLength: 256,
	}
}

// decoder parses YAML after checking the node tree against its limits.
// Unknown fields are rejected.
type decoder struct {
	limits Limits
}

func (d *decoder) decodeReader(r io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(r, d.limits.MaxFileSize+1))
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return d.decode(data, v)
}

func (d *decoder) decode(data []byte, v any) error {
	if int64(len(data)) > d.limits.MaxFileSize {
		return fmt.Errorf("config too large: more than %d bytes", d.limits.MaxFileSize)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	nodes := 0
	if err := d.check(&root, 0, &nodes); err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (d *decoder) check(node *yaml.Node, depth int, nodes *int) error {
	if depth > d.limits.MaxDepth {
		return fmt.Errorf("config nesting depth %d exceeds maximum %d", depth, d.limits.MaxDepth)
	}
	*nodes++
	if *nodes > d.limits.MaxNodes {
		return fmt.Errorf("config node count exceeds maximum %d", d.limits.MaxNodes)
	}

	switch node.Kind {
	case yaml.DocumentNode:
		for _, child := range node.Content {
			if err := d.check(child, depth, nodes); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i]
			if len(key.Value) > d.limits.MaxKeyLength {
				return fmt.Errorf("config key length %d exceeds maximum %d", len(key.Value), d.limits.MaxKeyLength)
			}
			if err := d.check(node.Content[i+1], depth+1, nodes); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		for _, child := range node.Content {
			if err := d.check(child, depth+1, nodes); err != nil {
				return err
			}
		}
	case yaml.AliasNode:
		// aliases are expanded by the decoder, so count the target again
		if node.Alias != nil {
			if err := d.check(node.Alias, depth+1, nodes); err != nil {
				return err
			}
		}
	}
	return nil
}
