package frontend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/rtmp-auth/internal/common"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/models"
)

func TestParseExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	base := now.Unix()

	tests := []struct {
		in   string
		want int64
	}{
		{"", models.NeverExpires},
		{"  ", models.NeverExpires},
		{"P2DT10H", base + 2*86400 + 10*3600},
		{"PT30M", base + 1800},
		{"PT1.5H", base + 5400},
		{"P1M", base + 30*86400},
		{"P1Y", base + 365*86400},
		{"P1W3D", 0},
		{"PT45S", base + 45},
		{"P1DT1M", base + 86400 + 60},
		{"P300Y", base + 300*365*86400},
		{"2030-01-02T03:04:05Z", time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC).Unix()},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseExpiry(tt.in, now)
			if tt.want == 0 {
				assert.ErrorIs(t, err, common.ErrInvalidExpiry)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseExpiry_Invalid(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	for _, in := range []string{"P", "PT", "P0D", "tomorrow", "P1..2D", "2030-01-02"} {
		_, err := ParseExpiry(in, now)
		assert.ErrorIs(t, err, common.ErrInvalidExpiry, in)
	}
}

func TestParseExpiry_TooFar(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	got, err := ParseExpiry("P10000Y", now)
	require.NoError(t, err)
	assert.Equal(t, now.Unix()+10000*365*86400, got)

	_, err = ParseExpiry("P20000Y", now)
	require.ErrorIs(t, err, common.ErrInvalidExpiry)
	assert.Contains(t, err.Error(), "too far in the future")
}

func TestParseExpiry_FractionalNow(t *testing.T) {
	now := time.Unix(1_700_000_000, 600_000_000)

	got, err := ParseExpiry("PT0.5S", now)
	require.NoError(t, err)
	assert.Equal(t, now.Unix()+1, got)
}
