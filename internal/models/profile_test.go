package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		in      string
		want    Platform
		wantErr bool
	}{
		{in: "instagram", want: PlatformInstagram},
		{in: " TikTok ", want: PlatformTikTok},
		{in: "YOUTUBE", want: PlatformYouTube},
		{in: "myspace", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePlatform(tt.in)
			if tt.wantErr {
				assert.ErrorContains(t, err, "unsupported platform")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProfileKeepsNullFields(t *testing.T) {
	raw, err := json.Marshal(Profile{ContactPoints: []ContactPoint{}})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"followingCount", "averageLikes", "averageViews", "contentCount"} {
		v, ok := fields[key]
		assert.True(t, ok, key)
		assert.Nil(t, v, key)
	}
	assert.Equal(t, []any{}, fields["contactPoints"])
}
