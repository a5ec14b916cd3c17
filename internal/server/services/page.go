package services

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page selects a 1-based page of a list.
type Page struct {
	Number int
	Size   int
}

// Normalize fills in defaults and clamps the size.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// PageOf is one page of items plus the size of the whole list.
type PageOf[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
}

// Paginate slices items according to p. Pages past the end are empty.
func Paginate[T any](items []T, p Page) PageOf[T] {
	p = p.Normalize()
	out := PageOf[T]{Items: []T{}, Total: len(items), Page: p.Number, Size: p.Size}

	pages := (len(items) + p.Size - 1) / p.Size
	if p.Number > pages {
		return out
	}
	start := (p.Number - 1) * p.Size
	end := min(start+p.Size, len(items))
	out.Items = items[start:end]
	return out
}
