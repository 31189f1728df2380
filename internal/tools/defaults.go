package tools

import "time"

// Tool sets offered to each agent.
var (
	ResearcherTools = []string{"web_search", "fetch_url", "read_file"}
	ExpertTools     = []string{"calculator", "unit_convert", "read_file"}
)

// Options configures the built-in tools.
type Options struct {
	TavilyAPIKey string
	FilesRoot    string
	HTTPTimeout  time.Duration
}

// NewDefault registers every built-in tool. web_search is registered even
// without a key; it then fails at call time and the model sees the error.
func NewDefault(opts Options) (*Registry, error) {
	calc, err := NewCalculator()
	if err != nil {
		return nil, err
	}
	return NewRegistry(
		calc,
		UnitConverter{},
		FileReader{Root: opts.FilesRoot},
		NewWebSearch(opts.TavilyAPIKey, opts.HTTPTimeout),
		NewURLFetcher(opts.HTTPTimeout),
	)
}

// Available filters names down to those registered in r.
func (r *Registry) Available(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, err := r.Get(n); err == nil {
			out = append(out, n)
		}
	}
	return out
}
