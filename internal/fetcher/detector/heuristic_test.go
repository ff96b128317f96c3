package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/tour-ingest/internal/tour"
)

func TestShouldPromote(t *testing.T) {
	t.Parallel()

	filler := strings.Repeat("<p>Snorkel the outer reef with our crew.</p>", 20)
	cases := []struct {
		name string
		doc  string
		want bool
	}{
		{name: "empty", doc: "  ", want: true},
		{name: "no price", doc: "<html><body>" + filler + "</body></html>", want: true},
		{name: "spa shell", doc: `<html><body><div id="__next"></div><p>From $99</p></body></html>`, want: true},
		{
			name: "mostly script",
			doc:  "<html><script>" + strings.Repeat("var a=1;", 200) + "</script><p>From $99</p></html>",
			want: true,
		},
		{
			name: "price only inside script",
			doc:  "<html><body>" + filler + `<script>s = s.replace(/(\d+)/g, "$1");</script></body></html>`,
			want: true,
		},
		{name: "static with price", doc: "<html><body>" + filler + "<p>Adults $239</p></body></html>", want: false},
	}
	h := NewHeuristic(0)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, h.ShouldPromote(tour.RawPage{Document: tc.doc}))
		})
	}
}

func TestScriptShare(t *testing.T) {
	t.Parallel()

	assert.Zero(t, scriptShare(""))
	assert.Zero(t, scriptShare("<p>plain</p>"))
	assert.Equal(t, 100, scriptShare("<script>x</script>"))
	assert.Equal(t, 100, scriptShare("<script src=a.js"))
}
