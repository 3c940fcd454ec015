package pages

// Data is what a page template is rendered with.
type Data struct {
	Host   string
	Method string
	Path   string
	Query  map[string]string
}

// Result is the outcome of a page lookup. The zero value means not found.
type Result struct {
	Found       bool
	Content     []byte
	ContentType string
}

func NotFound() Result {
	return Result{}
}

// Provider resolves a hostname to optional rendered content.
type Provider interface {
	Lookup(host string, data Data) Result
}
