// Package security holds the versioned security configuration document and
// the command-routing core that mutates it. The document has two sections,
// authentication and authorization, each carrying an ordered list of scheme
// blocks; the authorization section additionally carries the permission list
// shared by all schemes.
package security

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Section identifies which half of the security document a command targets.
type Section string

const (
	// SectionAuthentication addresses the authentication half of the document.
	SectionAuthentication Section = "authentication"
	// SectionAuthorization addresses the authorization half of the document.
	SectionAuthorization Section = "authorization"
)

// Class identifiers for the multi-scheme dispatcher sections.
const (
	ClassMultiAuth  = "aegis.MultiSchemeAuthPlugin"
	ClassMultiAuthz = "aegis.MultiSchemeAuthorizationPlugin"
)

// SchemeBlock is the per-scheme slice of the security document. Credentials
// belong to authentication blocks, user-role assignments to authorization
// blocks. Scheme-specific tunables are flattened into the block itself when
// serialized, so a property named blockUnknown appears as a sibling of name.
type SchemeBlock struct {
	Name        string
	Credentials map[string]string
	UserRoles   map[string][]string
	Properties  map[string]any
}

// reservedBlockKeys are the structural keys of a scheme block; everything
// else round-trips through Properties.
var reservedBlockKeys = map[string]bool{
	"name":        true,
	"credentials": true,
	"user-role":   true,
}

// MarshalJSON flattens Properties into the block object.
func (b SchemeBlock) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(b.Properties)+3)
	for k, v := range b.Properties {
		if !reservedBlockKeys[k] {
			m[k] = v
		}
	}
	m["name"] = b.Name
	if b.Credentials != nil {
		m["credentials"] = b.Credentials
	}
	if b.UserRoles != nil {
		m["user-role"] = b.UserRoles
	}
	return json.Marshal(m)
}

// UnmarshalJSON splits the structural keys back out of the flattened object.
func (b *SchemeBlock) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	name, _ := m["name"].(string)
	if name == "" {
		return fmt.Errorf("scheme block is missing a name")
	}
	b.Name = name

	if creds, ok := m["credentials"].(map[string]any); ok {
		b.Credentials = make(map[string]string, len(creds))
		for user, v := range creds {
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("scheme %q: credential for %q must be a string", name, user)
			}
			b.Credentials[user] = s
		}
	}

	if roles, ok := m["user-role"].(map[string]any); ok {
		b.UserRoles = make(map[string][]string, len(roles))
		for user, v := range roles {
			list, err := ToStringList(v)
			if err != nil {
				return fmt.Errorf("scheme %q: user-role for %q: %w", name, user, err)
			}
			b.UserRoles[user] = list
		}
	}

	for k, v := range m {
		if reservedBlockKeys[k] {
			continue
		}
		if b.Properties == nil {
			b.Properties = make(map[string]any)
		}
		b.Properties[k] = v
	}
	return nil
}

// Clone returns a deep copy of the block.
func (b SchemeBlock) Clone() SchemeBlock {
	out := SchemeBlock{Name: b.Name}
	if b.Credentials != nil {
		out.Credentials = make(map[string]string, len(b.Credentials))
		for k, v := range b.Credentials {
			out.Credentials[k] = v
		}
	}
	if b.UserRoles != nil {
		out.UserRoles = make(map[string][]string, len(b.UserRoles))
		for k, v := range b.UserRoles {
			out.UserRoles[k] = append([]string(nil), v...)
		}
	}
	if b.Properties != nil {
		out.Properties = make(map[string]any, len(b.Properties))
		for k, v := range b.Properties {
			out.Properties[k] = v
		}
	}
	return out
}

// BoolProperty reads a boolean tunable from the block, with a default for
// absent or mistyped values.
func (b SchemeBlock) BoolProperty(key string, def bool) bool {
	if v, ok := b.Properties[key].(bool); ok {
		return v
	}
	return def
}

// StringProperty reads a string tunable from the block.
func (b SchemeBlock) StringProperty(key string) string {
	v, _ := b.Properties[key].(string)
	return v
}

// SectionConfig is one half of the security document.
type SectionConfig struct {
	Class       string        `json:"class"`
	Schemes     []SchemeBlock `json:"schemes"`
	Permissions []Permission  `json:"permissions,omitempty"`
}

// Clone returns a deep copy of the section.
func (s SectionConfig) Clone() SectionConfig {
	out := SectionConfig{Class: s.Class}
	if s.Schemes != nil {
		out.Schemes = make([]SchemeBlock, len(s.Schemes))
		for i, b := range s.Schemes {
			out.Schemes[i] = b.Clone()
		}
	}
	if s.Permissions != nil {
		out.Permissions = make([]Permission, len(s.Permissions))
		for i, p := range s.Permissions {
			out.Permissions[i] = p.Clone()
		}
	}
	return out
}

// SecurityConfig is the persisted security document. It is treated as an
// immutable value: every edit produces a new copy which is swapped in
// atomically by the store.
type SecurityConfig struct {
	Authentication SectionConfig `json:"authentication"`
	Authorization  SectionConfig `json:"authorization"`
}

// Clone returns a deep copy of the document.
func (c SecurityConfig) Clone() SecurityConfig {
	return SecurityConfig{
		Authentication: c.Authentication.Clone(),
		Authorization:  c.Authorization.Clone(),
	}
}

// IsZero reports whether the document has never been initialized.
func (c SecurityConfig) IsZero() bool {
	return c.Authentication.Class == "" && c.Authorization.Class == "" &&
		len(c.Authentication.Schemes) == 0 && len(c.Authorization.Schemes) == 0
}

// SchemeBlock returns the named block within a section. The returned pointer
// addresses the receiver's backing array, so callers mutating it must hold a
// private copy of the document.
func (c *SecurityConfig) SchemeBlock(section Section, name string) (*SchemeBlock, bool) {
	schemes := c.section(section).Schemes
	for i := range schemes {
		if schemes[i].Name == name {
			return &schemes[i], true
		}
	}
	return nil, false
}

// SetSchemeBlock replaces the block with the same name, or appends the block
// if the scheme is new. Scheme order is insertion order and is never
// reordered by edits.
func (c *SecurityConfig) SetSchemeBlock(section Section, block SchemeBlock) {
	sec := c.section(section)
	for i := range sec.Schemes {
		if sec.Schemes[i].Name == block.Name {
			sec.Schemes[i] = block
			return
		}
	}
	sec.Schemes = append(sec.Schemes, block)
}

// SchemeNames returns the scheme names of a section in document order.
func (c *SecurityConfig) SchemeNames(section Section) []string {
	schemes := c.section(section).Schemes
	names := make([]string, len(schemes))
	for i, b := range schemes {
		names[i] = b.Name
	}
	return names
}

func (c *SecurityConfig) section(section Section) *SectionConfig {
	if section == SectionAuthorization {
		return &c.Authorization
	}
	return &c.Authentication
}

// Lookup evaluates a path expression such as
// authentication/schemes[0]/credentials/harry against the serialized form of
// the document. List offsets in expressions are 0-based.
func (c SecurityConfig) Lookup(path string) (any, bool) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, false
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false
	}
	return ResolvePath(doc, path)
}

// ResolvePath walks a decoded JSON document by a slash-separated path where
// each segment may carry 0-based list offsets, e.g. permissions[5]/path.
func ResolvePath(doc any, path string) (any, bool) {
	path = strings.Trim(path, "/")
	if path == "" {
		return doc, true
	}
	for _, seg := range strings.Split(path, "/") {
		name, offsets, err := splitPathSegment(seg)
		if err != nil {
			return nil, false
		}
		if name != "" {
			m, ok := doc.(map[string]any)
			if !ok {
				return nil, false
			}
			doc, ok = m[name]
			if !ok {
				return nil, false
			}
		}
		for _, off := range offsets {
			list, ok := doc.([]any)
			if !ok || off < 0 || off >= len(list) {
				return nil, false
			}
			doc = list[off]
		}
	}
	return doc, true
}

func splitPathSegment(seg string) (name string, offsets []int, err error) {
	name = seg
	for {
		open := strings.IndexByte(name, '[')
		if open < 0 {
			return name, offsets, nil
		}
		rest := name[open:]
		name = name[:open]
		for rest != "" {
			if rest[0] != '[' {
				return "", nil, fmt.Errorf("malformed path segment %q", seg)
			}
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return "", nil, fmt.Errorf("malformed path segment %q", seg)
			}
			off, err := strconv.Atoi(rest[1:end])
			if err != nil {
				return "", nil, fmt.Errorf("malformed path segment %q", seg)
			}
			offsets = append(offsets, off)
			rest = rest[end+1:]
		}
		return name, offsets, nil
	}
}

// ToStringList accepts a JSON string or list of strings.
func ToStringList(v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("expected a string or list of strings")
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		return append([]string(nil), t...), nil
	default:
		return nil, fmt.Errorf("expected a string or list of strings")
	}
}
