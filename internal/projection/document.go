package projection

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// document is the parsed form of a structured target file. JSON files
// are held as plain maps and re-encoded deterministically (sorted keys,
// two-space indent). YAML files are held as a yaml.Node tree and edited
// surgically so unrelated keys, their order, and comments survive a
// rewrite.
type document struct {
	format docFormat
	dirty  bool

	jsonRoot map[string]any
	yamlRoot *yaml.Node // document node wrapping a mapping
}

func parseDocument(format docFormat, raw []byte) (*document, error) {
	switch format {
	case formatJSON:
		root := map[string]any{}
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &root); err != nil {
				return nil, fmt.Errorf("parse json: %w", err)
			}
		}
		return &document{format: formatJSON, jsonRoot: root}, nil

	case formatYAML:
		var node yaml.Node
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := yaml.Unmarshal(raw, &node); err != nil {
				return nil, fmt.Errorf("parse yaml: %w", err)
			}
		}
		if node.Kind == 0 {
			node = yaml.Node{
				Kind:    yaml.DocumentNode,
				Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
			}
		}
		if node.Kind != yaml.DocumentNode || len(node.Content) != 1 ||
			node.Content[0].Kind != yaml.MappingNode {
			return nil, fmt.Errorf("parse yaml: document root is not a mapping")
		}
		return &document{format: formatYAML, yamlRoot: &node}, nil

	default:
		return nil, fmt.Errorf("unknown document format %d", format)
	}
}

func (d *document) encode() ([]byte, error) {
	switch d.format {
	case formatJSON:
		data, err := json.MarshalIndent(d.jsonRoot, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return append(data, '\n'), nil

	case formatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(d.yamlRoot); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("unknown document format %d", d.format)
	}
}

// get returns the value at the pointer tokens, decoded to plain Go
// values. found=false when any step of the path is absent (a non-object
// intermediate counts as absent, not as an error: the key the engine
// owns simply is not there).
func (d *document) get(tokens []string) (value any, found bool, err error) {
	if d.format == formatJSON {
		var cur any = d.jsonRoot
		for _, tok := range tokens {
			obj, ok := cur.(map[string]any)
			if !ok {
				return nil, false, nil
			}
			cur, ok = obj[tok]
			if !ok {
				return nil, false, nil
			}
		}
		return cur, true, nil
	}

	node := d.yamlRoot.Content[0]
	for _, tok := range tokens {
		if node.Kind != yaml.MappingNode {
			return nil, false, nil
		}
		_, val := yamlFind(node, tok)
		if val == nil {
			return nil, false, nil
		}
		node = val
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return nil, false, fmt.Errorf("decode value: %w", err)
	}
	return v, true, nil
}

// set writes value at the pointer tokens, creating intermediate objects
// as needed. An existing non-object intermediate cannot be owned
// through and is an error.
func (d *document) set(tokens []string, value any) error {
	if len(tokens) == 0 {
		return fmt.Errorf("empty pointer cannot own the document root")
	}

	if d.format == formatJSON {
		obj := d.jsonRoot
		for _, tok := range tokens[:len(tokens)-1] {
			next, ok := obj[tok]
			if !ok {
				child := map[string]any{}
				obj[tok] = child
				obj = child
				continue
			}
			childObj, ok := next.(map[string]any)
			if !ok {
				return fmt.Errorf("pointer step %q is not an object", tok)
			}
			obj = childObj
		}
		obj[tokens[len(tokens)-1]] = value
		d.dirty = true
		return nil
	}

	node := d.yamlRoot.Content[0]
	for _, tok := range tokens[:len(tokens)-1] {
		_, val := yamlFind(node, tok)
		if val == nil {
			child := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			yamlAppend(node, tok, child)
			node = child
			continue
		}
		if val.Kind != yaml.MappingNode {
			return fmt.Errorf("pointer step %q is not a mapping", tok)
		}
		node = val
	}

	last := tokens[len(tokens)-1]
	encoded := &yaml.Node{}
	if err := encoded.Encode(value); err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	if _, val := yamlFind(node, last); val != nil {
		*val = *encoded
	} else {
		yamlAppend(node, last, encoded)
	}
	d.dirty = true
	return nil
}

// delete removes the key at the pointer tokens and prunes intermediate
// objects it leaves empty. Deleting an absent key is a no-op. The
// document root always survives, even empty.
func (d *document) delete(tokens []string) error {
	if len(tokens) == 0 {
		return fmt.Errorf("empty pointer cannot own the document root")
	}

	if d.format == formatJSON {
		removed := jsonDelete(d.jsonRoot, tokens)
		if removed {
			d.dirty = true
		}
		return nil
	}

	removed := yamlDelete(d.yamlRoot.Content[0], tokens)
	if removed {
		d.dirty = true
	}
	return nil
}

func jsonDelete(obj map[string]any, tokens []string) bool {
	tok := tokens[0]
	if len(tokens) == 1 {
		if _, ok := obj[tok]; !ok {
			return false
		}
		delete(obj, tok)
		return true
	}
	child, ok := obj[tok].(map[string]any)
	if !ok {
		return false
	}
	removed := jsonDelete(child, tokens[1:])
	if removed && len(child) == 0 {
		delete(obj, tok)
	}
	return removed
}

func yamlDelete(node *yaml.Node, tokens []string) bool {
	if node.Kind != yaml.MappingNode {
		return false
	}
	tok := tokens[0]
	idx, val := yamlFind(node, tok)
	if val == nil {
		return false
	}
	if len(tokens) == 1 {
		node.Content = append(node.Content[:idx], node.Content[idx+2:]...)
		return true
	}
	removed := yamlDelete(val, tokens[1:])
	if removed && val.Kind == yaml.MappingNode && len(val.Content) == 0 {
		node.Content = append(node.Content[:idx], node.Content[idx+2:]...)
	}
	return removed
}

// yamlFind locates a key in a mapping node. Returns the index of the key
// node in Content and the value node, or (-1, nil).
func yamlFind(mapping *yaml.Node, key string) (int, *yaml.Node) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return i, mapping.Content[i+1]
		}
	}
	return -1, nil
}

func yamlAppend(mapping *yaml.Node, key string, value *yaml.Node) {
	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	mapping.Content = append(mapping.Content, keyNode, value)
}
