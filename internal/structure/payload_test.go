package structure

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tour-ingest/internal/tour"
)

func TestExtractPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		resp       string
		want       string
		candidates int
		err        error
	}{
		{
			name:       "prose and fences",
			resp:       "Sure! Here it is:\n```json\n{\"name\":\"Reef\",\"x\":{\"y\":1}}\n```\nThanks",
			want:       `{"name":"Reef","x":{"y":1}}`,
			candidates: 1,
		},
		{
			name:       "brace inside string",
			resp:       `{"name":"a } b \" {"}`,
			want:       `{"name":"a } b \" {"}`,
			candidates: 1,
		},
		{
			name:       "two objects",
			resp:       `{"a":1} and later {"b":2}`,
			want:       `{"a":1}`,
			candidates: 2,
		},
		{
			name:       "invalid span before valid",
			resp:       `{not json} {"a":1}`,
			want:       `{"a":1}`,
			candidates: 1,
		},
		{name: "no payload", resp: "I cannot help with that.", err: tour.ErrNoPayload},
		{name: "not json", resp: "{name: Reef}", err: tour.ErrMalformedPayload},
		{name: "unterminated", resp: `{"name": "Reef"`, err: tour.ErrMalformedPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ExtractPayload(tt.resp)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, string(got.Raw))
			require.Equal(t, tt.candidates, got.Candidates)
			require.Equal(t, tt.candidates > 1, got.Ambiguous())
		})
	}
}
