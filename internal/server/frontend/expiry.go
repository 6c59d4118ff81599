package frontend

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/rtmp-auth/internal/common"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/models"
)

// durationPattern matches ISO8601 durations such as P2DT10H or PT1.5H. Years
// count as 365 days and months as 30 days.
var durationPattern = regexp.MustCompile(`^P(?:([\d.]+)Y)?(?:([\d.]+)M)?(?:([\d.]+)D)?(?:T(?:([\d.]+)H)?(?:([\d.]+)M)?(?:([\d.]+)S)?)?$`)

// durationUnits are the seconds per designator, in pattern order.
var durationUnits = [...]float64{365 * 86400, 30 * 86400, 86400, 3600, 60, 1}

// maxDuration bounds ISO8601 durations to 10000 years.
const maxDuration = 10000 * 365 * 86400

// ParseExpiry converts the auth expiry form value into a Unix timestamp.
// An empty value never expires. Otherwise str is an ISO8601 duration added to
// now, or an RFC3339 timestamp.
func ParseExpiry(str string, now time.Time) (int64, error) {
	str = strings.TrimSpace(str)
	if str == "" {
		return models.NeverExpires, nil
	}

	if m := durationPattern.FindStringSubmatch(str); m != nil {
		var secs float64
		for i, part := range m[1:] {
			if part == "" {
				continue
			}
			v, err := strconv.ParseFloat(part, 64)
			if err != nil {
				return 0, fmt.Errorf("%w: '%s'", common.ErrInvalidExpiry, str)
			}
			secs += v * durationUnits[i]
		}
		if secs <= 0 {
			return 0, fmt.Errorf("%w: '%s'", common.ErrInvalidExpiry, str)
		}
		if secs > maxDuration {
			return 0, fmt.Errorf("%w: '%s' is too far in the future", common.ErrInvalidExpiry, str)
		}
		return now.Unix() + int64(math.Floor(secs+float64(now.Nanosecond())/1e9)), nil
	}

	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return 0, fmt.Errorf("%w: '%s'", common.ErrInvalidExpiry, str)
	}
	return t.Unix(), nil
}
