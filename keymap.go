package eventbus

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	// ErrCyclicKey is returned when a composite key references itself.
	ErrCyclicKey = errors.New("eventbus: cyclic key")

	// ErrUnhashableKey is returned when a key contains a value that has no
	// canonical form, such as a function, a channel or a NaN float.
	ErrUnhashableKey = errors.New("eventbus: unhashable key")
)

// Hash returns the canonical hash of key.
//
// Primitive keys hash to their fmt string form. Composite keys (maps, slices,
// arrays, structs, pointers) are canonicalized recursively, with map keys and
// struct field names sorted at every level, and then JSON encoded. Two keys
// that hold the same data in a different insertion order hash identically.
//
// Map keys are compared by their fmt string form. A map holding two keys with
// the same form, such as 1 and "1", is unhashable.
//
// Struct fields are named by their json tag when present. Unexported fields
// are ignored. Values implementing json.Marshaler or encoding.TextMarshaler
// are encoded by their own marshaler.
func Hash(key any) (string, error) {
	v := reflect.ValueOf(key)
	if !isComposite(v) {
		if err := checkLeaf(v); err != nil {
			return "", err
		}
		return fmt.Sprint(key), nil
	}

	c := canonicalizer{path: make(map[visit]struct{})}
	canon, err := c.value(v)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(canon)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnhashableKey, err)
	}
	return string(b), nil
}

func isComposite(v reflect.Value) bool {
	if !v.IsValid() {
		return false
	}
	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Pointer, reflect.Interface:
		return true
	}
	return false
}

func checkLeaf(v reflect.Value) error {
	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return fmt.Errorf("%w: %s", ErrUnhashableKey, v.Type())
	}
	return nil
}

// visit identifies a reference on the current canonicalization path.
type visit struct {
	ptr uintptr
	typ reflect.Type
}

type canonicalizer struct {
	path map[visit]struct{}
}

func (c *canonicalizer) value(v reflect.Value) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
	}

	if v.Kind() != reflect.Interface && v.CanInterface() {
		switch m := v.Interface().(type) {
		case json.Marshaler:
			return m, nil
		case encoding.TextMarshaler:
			return m, nil
		}
	}

	switch v.Kind() {
	case reflect.Interface:
		return c.value(v.Elem())

	case reflect.Pointer:
		leave, err := c.enter(v)
		if err != nil {
			return nil, err
		}
		defer leave()
		return c.value(v.Elem())

	case reflect.Map:
		leave, err := c.enter(v)
		if err != nil {
			return nil, err
		}
		defer leave()
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			elem, err := c.value(iter.Value())
			if err != nil {
				return nil, err
			}
			k := fmt.Sprint(iter.Key().Interface())
			if _, dup := out[k]; dup {
				return nil, fmt.Errorf("%w: map keys collide on %q", ErrUnhashableKey, k)
			}
			out[k] = elem
		}
		return out, nil

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.Len() > 0 {
			leave, err := c.enter(v)
			if err != nil {
				return nil, err
			}
			defer leave()
		}
		out := make([]any, v.Len())
		for i := range v.Len() {
			elem, err := c.value(v.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = elem
		}
		return out, nil

	case reflect.Struct:
		t := v.Type()
		out := make(map[string]any, t.NumField())
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name := fieldName(f)
			if name == "" {
				continue
			}
			elem, err := c.value(v.Field(i))
			if err != nil {
				return nil, err
			}
			out[name] = elem
		}
		return out, nil
	}

	if err := checkLeaf(v); err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// enter marks a reference as being on the current path. The returned func
// removes it again, so shared but acyclic references are allowed.
func (c *canonicalizer) enter(v reflect.Value) (func(), error) {
	key := visit{ptr: v.Pointer(), typ: v.Type()}
	if _, ok := c.path[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrCyclicKey, v.Type())
	}
	c.path[key] = struct{}{}
	return func() { delete(c.path, key) }, nil
}

func fieldName(f reflect.StructField) string {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return f.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

type keyEntry[V any] struct {
	key   any
	value V
}

// KeyMap is a map keyed by structural equality. Keys are canonicalized with
// Hash, so two independently built values holding the same data select the
// same entry regardless of property order or reference identity.
//
// KeyMap is not safe for concurrent mutation.
type KeyMap[V any] struct {
	entries map[string]keyEntry[V]
	order   []string
}

// NewKeyMap creates an empty KeyMap.
func NewKeyMap[V any]() *KeyMap[V] {
	return &KeyMap[V]{entries: make(map[string]keyEntry[V])}
}

// Set stores value under key, replacing any structurally equal key.
func (m *KeyMap[V]) Set(key any, value V) error {
	h, err := Hash(key)
	if err != nil {
		return err
	}
	if _, ok := m.entries[h]; !ok {
		m.order = append(m.order, h)
	}
	m.entries[h] = keyEntry[V]{key: key, value: value}
	return nil
}

// Lookup returns the value stored under key. The error is non-nil only when
// key cannot be hashed.
func (m *KeyMap[V]) Lookup(key any) (V, bool, error) {
	var zero V
	h, err := Hash(key)
	if err != nil {
		return zero, false, err
	}
	e, ok := m.entries[h]
	if !ok {
		return zero, false, nil
	}
	return e.value, true, nil
}

// Get returns the value stored under key. An unhashable key is never present.
func (m *KeyMap[V]) Get(key any) (V, bool) {
	v, ok, _ := m.Lookup(key)
	return v, ok
}

// Has reports whether a structurally equal key is present.
func (m *KeyMap[V]) Has(key any) bool {
	_, ok := m.Get(key)
	return ok
}

// Delete removes key and reports whether it was present.
func (m *KeyMap[V]) Delete(key any) bool {
	h, err := Hash(key)
	if err != nil {
		return false
	}
	if _, ok := m.entries[h]; !ok {
		return false
	}
	delete(m.entries, h)
	for i, o := range m.order {
		if o == h {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of entries.
func (m *KeyMap[V]) Len() int {
	return len(m.entries)
}

// Range calls fn for every entry in insertion order, passing the key most
// recently stored for it. Iteration stops when fn returns false.
func (m *KeyMap[V]) Range(fn func(key any, value V) bool) {
	for _, h := range m.order {
		e := m.entries[h]
		if !fn(e.key, e.value) {
			return
		}
	}
}
