package security

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Permission is one entry of the ordered permission list shared by all
// authorization schemes. Its index is its 1-based position in the list; the
// index is not a permanent identifier and is recomputed after every delete.
type Permission struct {
	Index      int            `json:"index"`
	Name       string         `json:"name,omitempty"`
	Role       RoleList       `json:"role,omitempty"`
	Collection *string        `json:"collection"`
	Path       string         `json:"path,omitempty"`
	Methods    RoleList       `json:"method,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
}

// Clone returns a deep copy of the permission.
func (p Permission) Clone() Permission {
	out := p
	out.Role = append(RoleList(nil), p.Role...)
	out.Methods = append(RoleList(nil), p.Methods...)
	if p.Collection != nil {
		c := *p.Collection
		out.Collection = &c
	}
	if p.Params != nil {
		out.Params = make(map[string]any, len(p.Params))
		for k, v := range p.Params {
			out.Params[k] = v
		}
	}
	return out
}

// RoleList is a list-valued permission field that also accepts a bare string
// in the document form, the common single-element case.
type RoleList []string

// MarshalJSON emits a bare string for single-element lists to keep the
// document shape stable under read-modify-write cycles.
func (r RoleList) MarshalJSON() ([]byte, error) {
	if len(r) == 1 {
		return json.Marshal(r[0])
	}
	return json.Marshal([]string(r))
}

// UnmarshalJSON accepts a string or a list of strings.
func (r *RoleList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = RoleList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("expected a string or list of strings")
	}
	*r = RoleList(list)
	return nil
}

// permissionFieldKeys are the recognized keys of a permission payload.
var permissionFieldKeys = map[string]bool{
	"index":      true,
	"name":       true,
	"role":       true,
	"collection": true,
	"path":       true,
	"method":     true,
	"params":     true,
}

// SetPermission validates the payload and appends a new permission with
// index len+1. The input slice is not modified.
func SetPermission(perms []Permission, op *CommandOperation) ([]Permission, error) {
	data, ok := op.DataMap()
	if !ok {
		return nil, CollectErrors([]*CommandOperation{op})
	}
	if _, hasIndex := data["index"]; hasIndex {
		op.AddError("set-permission does not accept an index; use update-permission")
	}

	perm := permissionFromMap(data, op)
	if err := CollectErrors([]*CommandOperation{op}); err != nil {
		return nil, err
	}

	out := clonePermissions(perms)
	perm.Index = len(out) + 1
	return append(out, perm), nil
}

// UpdatePermission replaces the permission at the payload's mandatory index,
// keeping its position. An index outside the list fails and leaves the list
// unchanged.
func UpdatePermission(perms []Permission, op *CommandOperation) ([]Permission, error) {
	data, ok := op.DataMap()
	if !ok {
		return nil, CollectErrors([]*CommandOperation{op})
	}

	idxVal, hasIndex := data["index"]
	if !hasIndex {
		op.AddError("update-permission requires an index")
	}
	var index int
	if hasIndex {
		var err error
		index, err = parseIndex(idxVal)
		if err != nil {
			op.AddError(err.Error())
		} else if index < 1 || index > len(perms) {
			op.AddError(fmt.Sprintf("no permission at index %d", index))
		}
	}

	perm := permissionFromMap(data, op)
	if err := CollectErrors([]*CommandOperation{op}); err != nil {
		return nil, err
	}

	out := clonePermissions(perms)
	perm.Index = index
	out[index-1] = perm
	return out, nil
}

// DeletePermission removes the permission at the given 1-based index and
// shifts every later entry down by one, decrementing its visible index.
func DeletePermission(perms []Permission, op *CommandOperation) ([]Permission, error) {
	index, err := parseIndex(op.Value)
	if err != nil {
		op.AddError(err.Error())
	} else if index < 1 || index > len(perms) {
		op.AddError(fmt.Sprintf("no permission at index %d", index))
	}
	if err := CollectErrors([]*CommandOperation{op}); err != nil {
		return nil, err
	}

	out := clonePermissions(perms)
	out = append(out[:index-1], out[index:]...)
	for i := range out {
		out[i].Index = i + 1
	}
	return out, nil
}

// permissionFromMap builds a permission from a payload, accumulating field
// errors on the operation. The required fields are name, role, and path;
// collection may be an explicit null meaning "all collections".
func permissionFromMap(data map[string]any, op *CommandOperation) Permission {
	var perm Permission

	for key := range data {
		if !permissionFieldKeys[key] {
			op.AddError(fmt.Sprintf("unknown key %q in permission", key))
		}
	}

	if name, ok := data["name"].(string); ok && name != "" {
		perm.Name = name
	} else {
		op.AddError("permission requires a name")
	}

	if roleVal, ok := data["role"]; ok && roleVal != nil {
		roles, err := ToStringList(roleVal)
		if err != nil {
			op.AddError("permission role must be a string or list of strings")
		}
		perm.Role = roles
	} else {
		op.AddError("permission requires a role")
	}

	if path, ok := data["path"].(string); ok && path != "" {
		perm.Path = path
	} else {
		op.AddError("permission requires a path")
	}

	if collVal, ok := data["collection"]; ok && collVal != nil {
		coll, ok := collVal.(string)
		if !ok {
			op.AddError("permission collection must be a string or null")
		} else {
			perm.Collection = &coll
		}
	}

	if methodVal, ok := data["method"]; ok && methodVal != nil {
		methods, err := ToStringList(methodVal)
		if err != nil {
			op.AddError("permission method must be a string or list of strings")
		}
		perm.Methods = methods
	}

	if paramsVal, ok := data["params"]; ok && paramsVal != nil {
		params, ok := paramsVal.(map[string]any)
		if !ok {
			op.AddError("permission params must be an object")
		}
		perm.Params = params
	}

	return perm
}

// parseIndex accepts the numeric and string spellings of a permission index.
func parseIndex(v any) (int, error) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("permission index must be an integer")
		}
		return int(t), nil
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, fmt.Errorf("invalid permission index %q", t)
		}
		return n, nil
	case int:
		return t, nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, fmt.Errorf("invalid permission index %q", t.String())
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("permission index must be an integer")
	}
}

func clonePermissions(perms []Permission) []Permission {
	out := make([]Permission, len(perms))
	for i, p := range perms {
		out[i] = p.Clone()
	}
	return out
}
