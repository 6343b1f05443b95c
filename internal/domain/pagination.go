package domain

// DefaultPageSize is the page size used when none is specified.
const DefaultPageSize = 50

// MaxPageSize caps a requested page size.
const MaxPageSize = 500

// Page holds offset pagination parameters for list operations.
type Page struct {
	Size   int
	Offset int
}

// Limit returns the effective page size, clamped to [1, MaxPageSize].
func (p Page) Limit() int {
	if p.Size <= 0 {
		return DefaultPageSize
	}
	if p.Size > MaxPageSize {
		return MaxPageSize
	}
	return p.Size
}

// Start returns the offset, never negative.
func (p Page) Start() int {
	if p.Offset < 0 {
		return 0
	}
	return p.Offset
}

// NextOffset returns the offset of the following page, or -1 when the
// current page reaches total.
func (p Page) NextOffset(total int64) int {
	next := p.Start() + p.Limit()
	if int64(next) >= total {
		return -1
	}
	return next
}
