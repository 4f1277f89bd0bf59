package boundary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geostore/internal/geoerr"
)

func TestDefaultThreshold(t *testing.T) {
	tests := []struct {
		iso   string
		level int
		want  float64
	}{
		{"USA", 0, 0.1},
		{"idn", 0, 0.1},
		{"ESP", 0, 0.005},
		{"CAN", 1, 0.1 / 10},
		{"ESP", 1, 0.005 / 10},
		{"RUS", 2, 0.1 / 100},
		{"ESP", 2, 0.005 / 100},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, DefaultThreshold(tt.iso, tt.level), 1e-12, "%s level %d", tt.iso, tt.level)
	}
}

func TestParseThreshold(t *testing.T) {
	tests := []struct {
		in      string
		want    *float64
		wantErr bool
	}{
		{in: ""},
		{in: "true"},
		{in: "TRUE"},
		{in: "0.5", want: ptr(0.5)},
		{in: "1", want: ptr(1)},
		{in: "0", wantErr: true},
		{in: "1.5", wantErr: true},
		{in: "-0.1", wantErr: true},
		{in: "false", wantErr: true},
		{in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseThreshold(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, geoerr.CodeInvalidArgument, geoerr.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseUseThreshold(t *testing.T) {
	got, err := ParseUseThreshold("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseUseThreshold("2.5")
	require.NoError(t, err)
	assert.Equal(t, ptr(2.5), got)

	_, err = ParseUseThreshold("true")
	assert.True(t, geoerr.IsBadInput(err))

	_, err = ParseUseThreshold("-1")
	assert.True(t, geoerr.IsBadInput(err))
}

func TestAdminKeyGID(t *testing.T) {
	one, two := 3, 12
	assert.Equal(t, "ESP", adminKey{level: 0, iso: "ESP"}.gid())
	assert.Equal(t, "ESP.3_1", adminKey{level: 1, iso: "ESP", id1: &one}.gid())
	assert.Equal(t, "ESP.3.12_1", adminKey{level: 2, iso: "ESP", id1: &one, id2: &two}.gid())
}

func ptr(v float64) *float64 { return &v }
