package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "products/1/a.png", want: "products/1/a.png"},
		{in: "products//1/./a.png", want: "products/1/a.png"},
		{in: "", wantErr: true},
		{in: "/etc/passwd", wantErr: true},
		{in: "../secret", wantErr: true},
		{in: "products/../../x", wantErr: true},
		{in: ".", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CleanPath(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJoinAndTrimURL(t *testing.T) {
	url := JoinURL("http://cdn.local/media/", "products/1/a.png")
	assert.Equal(t, "http://cdn.local/media/products/1/a.png", url)

	p, ok := TrimURL("http://cdn.local/media", url)
	require.True(t, ok)
	assert.Equal(t, "products/1/a.png", p)

	_, ok = TrimURL("http://cdn.local/media", "http://elsewhere/products/1/a.png")
	assert.False(t, ok)

	_, ok = TrimURL("http://cdn.local/media", "http://cdn.local/media/../x")
	assert.False(t, ok)
}
