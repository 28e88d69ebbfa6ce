package storage

import (
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// marshalDocument encodes v as YAML. String values that yaml.v3 would emit
// as block scalars or otherwise fail to reproduce byte for byte are forced
// into double-quoted style, which escapes every character it cannot print.
func marshalDocument(v any) ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(v); err != nil {
		return nil, err
	}
	quoteFragileScalars(&doc)
	return yaml.Marshal(&doc)
}

func quoteFragileScalars(n *yaml.Node) {
	switch n.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range n.Content {
			quoteFragileScalars(c)
		}
	case yaml.MappingNode:
		// Keys are field names; only values carry user text.
		for i := 1; i < len(n.Content); i += 2 {
			quoteFragileScalars(n.Content[i])
		}
	case yaml.ScalarNode:
		if n.Tag == "!!str" && fragile(n.Value) {
			n.Style = yaml.DoubleQuotedStyle
		}
	}
}

// fragile reports whether s holds line breaks, control characters, a byte
// order mark, or surrounding whitespace.
func fragile(s string) bool {
	if s == "" {
		return false
	}
	if strings.TrimSpace(s) != s {
		return true
	}
	for _, r := range s {
		switch {
		case unicode.IsControl(r):
			return true
		case r == '\u2028', r == '\u2029', r == '\ufeff':
			return true
		}
	}
	return false
}
