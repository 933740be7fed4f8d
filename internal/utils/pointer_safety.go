package utils

// Value dereferences v, returning the zero value for a nil pointer.
func Value[T any](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}

// Ptr is used for optional JSON fields.
func Ptr[T any](v T) *T {
	return &v
}
