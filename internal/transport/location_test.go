package transport_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/transport"
)

func TestParseLocation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		wantAddr string
		wantPath string
	}{
		{
			name:     "bare host",
			input:    "nas",
			wantAddr: "nas:9876",
		},
		{
			name:     "host and port",
			input:    "nas:4000",
			wantAddr: "nas:4000",
		},
		{
			name:     "host port path",
			input:    "nas:4000:backup/data",
			wantAddr: "nas:4000",
			wantPath: "backup/data",
		},
		{
			name:     "ipv6",
			input:    "[::1]:4000:out",
			wantAddr: "[::1]:4000",
			wantPath: "out",
		},
		{
			name:     "url",
			input:    "ferry://10.0.0.2:5000/dst/file",
			wantAddr: "10.0.0.2:5000",
			wantPath: "/dst/file",
		},
		{
			name:     "url default port",
			input:    "ferry://nas",
			wantAddr: "nas:9876",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			loc, err := transport.ParseLocation(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, loc.Addr())
			assert.Equal(t, tt.wantPath, loc.Path)
		})
	}
}

func TestParseLocationErrors(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", ":4000", "nas:notaport", "nas:70000:x", "[::1", "ferry://:80/x"} {
		t.Run(in, func(t *testing.T) {
			t.Parallel()

			_, err := transport.ParseLocation(in)
			require.Error(t, err)
		})
	}
}

func TestLocationString(t *testing.T) {
	t.Parallel()

	loc := transport.Location{Host: "nas", Path: "/x"}
	assert.Equal(t, "ferry://nas:9876/x", loc.String())
}
