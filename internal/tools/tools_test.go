package tools

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rogers-f/deliberate/internal/domain"
)

func TestCalculator(t *testing.T) {
	calc, err := NewCalculator()
	require.NoError(t, err)

	cases := []struct {
		expr string
		want string
	}{
		{"2 + 2", "4"},
		{"7 / 2", "3.5"},
		{"(3 + 4) * 2", "14"},
		{"1.5 * 4", "6"},
		{"math.sqrt(81)", "9"},
		{"math.greatest(3, 9, 4)", "9"},
		{"10 > 3", "true"},
		{"1e3 + 1", "1001"},
	}
	for _, tc := range cases {
		got, err := calc.Eval(tc.expr)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}
}

func TestCalculatorErrors(t *testing.T) {
	calc, err := NewCalculator()
	require.NoError(t, err)

	for _, expr := range []string{"", "2 +", "1 / 0", "foo(1)"} {
		_, err := calc.Eval(expr)
		assert.Error(t, err, expr)
	}
	_, err = calc.Call(context.Background(), map[string]any{"expression": 4})
	assert.Error(t, err)
}

func TestWidenIntegers(t *testing.T) {
	assert.Equal(t, "2.0 + 2.0", widenIntegers("2 + 2"))
	assert.Equal(t, "1.5 * 4.0", widenIntegers("1.5 * 4"))
	assert.Equal(t, "math.sqrt(81.0)", widenIntegers("math.sqrt(81)"))
	assert.Equal(t, "1e3", widenIntegers("1e3"))
	assert.Equal(t, "x1 + 0x1F", widenIntegers("x1 + 0x1F"))
}

func TestConvert(t *testing.T) {
	cases := []struct {
		value    float64
		from, to string
		want     float64
	}{
		{5, "mi", "km", 8.04672},
		{1, "kg", "lb", 2.204622622},
		{100, "celsius", "fahrenheit", 212},
		{32, "F", "C", 0},
		{0, "c", "k", 273.15},
		{2, "hours", "min", 120},
		{1, "gal", "l", 3.785411784},
	}
	for _, tc := range cases {
		got, err := Convert(tc.value, tc.from, tc.to)
		require.NoError(t, err)
		assert.InDelta(t, tc.want, got, 1e-6, "%v %s -> %s", tc.value, tc.from, tc.to)
	}

	_, err := Convert(1, "kg", "km")
	assert.ErrorContains(t, err, "cannot convert")
	_, err = Convert(1, "parsec", "km")
	assert.ErrorContains(t, err, "unknown unit")
}

func TestUnitConverterCall(t *testing.T) {
	out, err := UnitConverter{}.Call(context.Background(), map[string]any{"value": 5.0, "from": "mi", "to": "km"})
	require.NoError(t, err)
	assert.Equal(t, "5 mi = 8.04672 km", out)

	_, err = UnitConverter{}.Call(context.Background(), map[string]any{"from": "mi", "to": "km"})
	assert.ErrorContains(t, err, "value")
}

func TestFileReader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.txt"), []byte(strings.Repeat("x", maxReadBytes+10)), 0o644))

	r := FileReader{Root: dir}
	out, err := r.Call(context.Background(), map[string]any{"path": "notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	out, err = r.Call(context.Background(), map[string]any{"path": "big.txt"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "[TRUNCATED]"))
	assert.Len(t, out, maxReadBytes+len("\n[TRUNCATED]"))

	_, err = r.Call(context.Background(), map[string]any{"path": "../etc/passwd"})
	assert.ErrorContains(t, err, "outside")

	_, err = r.Call(context.Background(), map[string]any{"path": "missing.txt"})
	assert.Error(t, err)
}

func TestWebSearch(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"query":"go generics"`)
		io.WriteString(w, `{"results":[
			{"title":"A","url":"https://a","content":"first"},
			{"title":"B","url":"https://b","content":"second"},
			{"title":"C","url":"https://c","content":"c"},
			{"title":"D","url":"https://d","content":"d"},
			{"title":"E","url":"https://e","content":"e"},
			{"title":"F","url":"https://f","content":"f"}]}`)
	}))
	defer srv.Close()

	ws := NewWebSearch("key", time.Second)
	ws.Endpoint = srv.URL
	results, err := ws.Search(context.Background(), "go generics")
	require.NoError(t, err)
	assert.Len(t, results, maxSearchResults)
	assert.Equal(t, int32(2), hits.Load(), "429 is retried")

	out, err := ws.Call(context.Background(), map[string]any{"query": "go generics"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "1. A\n   https://a\n   first"))
}

func TestWebSearchNeedsKey(t *testing.T) {
	_, err := NewWebSearch("", 0).Search(context.Background(), "q")
	assert.ErrorContains(t, err, "API key")
}

func TestURLFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><head><style>p{}</style><script>var x=1;</script></head>
			<body><nav>menu</nav><p>Fish &amp; chips</p><p>are   tasty</p></body></html>`)
	}))
	defer srv.Close()

	f := NewURLFetcher(time.Second)
	out, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Fish & chips")
	assert.Contains(t, out, "are tasty")
	assert.NotContains(t, out, "var x")
	assert.NotContains(t, out, "menu")

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "404")
}

type echoTool struct{ fail bool }

func (echoTool) Name() string           { return "echo" }
func (echoTool) Description() string    { return "echo" }
func (echoTool) Schema() map[string]any { return objectSchema(nil, map[string]any{}) }
func (e echoTool) Call(_ context.Context, args map[string]any) (string, error) {
	if e.fail {
		return "", errors.New("broken")
	}
	return args["text"].(string), nil
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(echoTool{})
	require.NoError(t, err)
	assert.Error(t, r.Register(echoTool{}), "duplicate names are rejected")

	out, err := r.Call(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	_, err = r.Call(context.Background(), "nope", nil)
	assert.True(t, errors.Is(err, domain.ErrToolNotFound))

	_, err = r.Specs("echo", "nope")
	assert.True(t, errors.Is(err, domain.ErrToolNotFound))

	broken, err := NewRegistry(echoTool{fail: true})
	require.NoError(t, err)
	_, err = broken.Call(context.Background(), "echo", nil)
	assert.True(t, errors.Is(err, domain.ErrToolFailure))
	assert.ErrorContains(t, err, "broken")
}

func TestNewDefault(t *testing.T) {
	r, err := NewDefault(Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"calculator", "fetch_url", "read_file", "unit_convert", "web_search"}, r.List())
	assert.Equal(t, ResearcherTools, r.Available(ResearcherTools))

	specs, err := r.Specs(ExpertTools...)
	require.NoError(t, err)
	require.Len(t, specs, 3)
	assert.Equal(t, "calculator", specs[0].Name)
	assert.Equal(t, []string{"expression"}, specs[0].Parameters["required"])
}
