package dropbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"  / ", ""},
		{"docs", "/docs"},
		{"/docs/", "/docs"},
		{"//docs///a.txt", "/docs/a.txt"},
		{"id:a4ayc_80_OEAAAAAAAAAXw", "id:a4ayc_80_OEAAAAAAAAAXw"},
		{"rev:a1c10ce0dd78", "rev:a1c10ce0dd78"},
		// Decomposed e + combining acute becomes the precomposed form.
		{"/cafe\u0301", "/caf\u00e9"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePath(tt.in))
		})
	}
}
