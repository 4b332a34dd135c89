package utilities

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// DerefOr returns *p, or def when p is nil.
func DerefOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
