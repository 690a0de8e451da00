package identity

import "encoding/json"

// Optional marks whether a patch field was supplied at all.
// The zero value is "omitted". Some(v) is "supplied", even when v is a zero value
// or a nil pointer, so omitted and explicitly cleared stay distinguishable.
type Optional[T any] struct {
	value T
	set   bool
}

// Some returns a supplied Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// IsSet reports whether the field was supplied.
func (o Optional[T]) IsSet() bool { return o.set }

// Get returns the value and whether it was supplied.
func (o Optional[T]) Get() (T, bool) { return o.value, o.set }

// UnmarshalJSON marks the field as supplied. A JSON null decodes to the zero value
// of T (nil for pointer types), which is how a caller clears an optional attribute.
func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.value = v
	o.set = true
	return nil
}
