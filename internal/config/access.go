package config

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// GetPath retrieves a value from the configuration using a dot-notation path.
// Sequence elements are addressed by index (profiles.0.name) and profiles
// also by entity address (profile:default.hl_exe).
func (c *Config) GetPath(path string) (any, error) {
	if strings.HasPrefix(path, "profile:") {
		entity, rest, _ := strings.Cut(path, ".")
		p, err := c.GetEntity(entity)
		if err != nil || rest == "" {
			return p, err
		}
		idx, _, _ := c.FindProfile(strings.TrimPrefix(entity, "profile:"))
		path = "profiles." + strconv.Itoa(idx) + "." + rest
	} else if strings.Contains(path, ":") {
		return c.GetEntity(path)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return getValue(m, path)
}

// GetEntity retrieves a first-class entity by type:name. Only profiles are
// addressable; "profile:*" returns all of them.
func (c *Config) GetEntity(address string) (any, error) {
	entityType, name, ok := strings.Cut(address, ":")
	if !ok {
		return nil, fmt.Errorf("invalid entity address format %q (expected type:name)", address)
	}

	switch entityType {
	case "profile":
		if name == "*" {
			return c.Profiles, nil
		}
		_, p, err := c.FindProfile(name)
		if err != nil {
			return nil, err
		}
		return *p, nil
	default:
		return nil, fmt.Errorf("unsupported entity type %q", entityType)
	}
}

func getValue(m map[string]any, path string) (any, error) {
	var current any = m

	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}

		switch node := current.(type) {
		case map[string]any:
			val, exists := node[part]
			if !exists {
				return nil, fmt.Errorf("path %q: key %q not found", path, part)
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("path %q: index %q out of range", path, part)
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("path %q breaks at %q (not a map or list)", path, part)
		}
	}

	return current, nil
}

func findNode(node *yaml.Node, path string, create bool) (*yaml.Node, error) {
	current := node

	for _, part := range strings.Split(path, ".") {
		switch current.Kind {
		case yaml.SequenceNode:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(current.Content) {
				return nil, fmt.Errorf("index %q out of range", part)
			}
			current = current.Content[idx]
			continue
		case yaml.MappingNode:
		default:
			return nil, fmt.Errorf("not a mapping node")
		}

		found := false
		for i := 0; i < len(current.Content); i += 2 {
			if current.Content[i].Value == part {
				current = current.Content[i+1]
				found = true
				break
			}
		}

		if !found {
			if !create {
				return nil, fmt.Errorf("key %q not found", part)
			}
			keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: part}
			valueNode := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			current.Content = append(current.Content, keyNode, valueNode)
			current = valueNode
		}
	}

	return current, nil
}

// SetPath modifies a configuration value at the specified path. The edited
// document is decoded strictly, so unknown keys and mistyped values are
// rejected and leave c untouched. With persist the result is saved.
func (c *Config) SetPath(path, value string, persist bool) error {
	if strings.Contains(path, ":") {
		entityAddr, field, hasField := strings.Cut(path, ".")
		etype, ename, _ := strings.Cut(entityAddr, ":")

		if etype != "profile" {
			return fmt.Errorf("unsupported entity type for set: %q", etype)
		}
		if !hasField {
			return fmt.Errorf("must specify a field to set (e.g., %s.enable_bxt=false)", entityAddr)
		}
		idx, _, err := c.FindProfile(ename)
		if err != nil {
			return err
		}
		path = "profiles." + strconv.Itoa(idx) + "." + field
	}

	var root yaml.Node
	if err := root.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	target, err := findNode(&root, path, true)
	if err != nil {
		return fmt.Errorf("failed to navigate/create path %q: %w", path, err)
	}
	if err := checkProfileKeys(&root); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	if target.Kind != yaml.ScalarNode && len(target.Content) > 0 {
		return fmt.Errorf("path %q is not a scalar", path)
	}

	target.Kind = yaml.ScalarNode
	target.Value = value
	target.Tag = guessTag(value)
	target.Content = nil

	data, err := yaml.Marshal(&root)
	if err != nil {
		return err
	}

	next := Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&next); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	if err := validate(&next); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	next.Path, next.BackupPath = c.Path, c.BackupPath
	*c = next

	if !persist {
		return nil
	}
	return c.Save()
}

// checkProfileKeys rejects profile keys Profile does not declare. Profiles
// decode through their own UnmarshalYAML, which a strict decoder does not
// reach.
func checkProfileKeys(root *yaml.Node) error {
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil
	}
	var profiles *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "profiles" {
			profiles = root.Content[i+1]
		}
	}
	if profiles == nil || profiles.Kind != yaml.SequenceNode {
		return nil
	}
	for idx, p := range profiles.Content {
		if p.Kind != yaml.MappingNode {
			continue
		}
		for i := 0; i+1 < len(p.Content); i += 2 {
			if key := p.Content[i].Value; !profileKeys[key] {
				return fmt.Errorf("unknown profile field %q in profiles.%d", key, idx)
			}
		}
	}
	return nil
}

func guessTag(v string) string {
	if v == "true" || v == "false" {
		return "!!bool"
	}
	isDigit := true
	for i, c := range v {
		if i == 0 && c == '-' {
			continue
		}
		if c < '0' || c > '9' {
			isDigit = false
			break
		}
	}
	if isDigit && v != "" && v != "-" {
		return "!!int"
	}
	return "!!str"
}
