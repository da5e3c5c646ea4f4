package sale

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPhaseAt_Boundaries(t *testing.T) {
	cfg := testConfig().withDefaults()
	whitelistStart := startTime.Add(time.Minute)

	cases := []struct {
		name string
		at   time.Time
		want Phase
	}{
		{"before presale", presaleStart.Add(-time.Second), Inactive},
		{"presale opens", presaleStart, Presale},
		{"last presale second", startTime.Add(-time.Second), Presale},
		{"start gap", startTime, Inactive},
		{"day one opens", whitelistStart, WhitelistDayOne},
		{"last day one second", whitelistStart.Add(day - time.Second), WhitelistDayOne},
		{"day two opens", whitelistStart.Add(day), WhitelistDayTwo},
		{"open sale", whitelistStart.Add(2 * day), OpenSale},
		{"last open second", endTime.Add(-time.Second), OpenSale},
		{"sale ended", endTime, PostSale},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, cfg.PhaseAt(tc.at))
		})
	}
}

func TestPhaseAt_PresaleWithoutStart(t *testing.T) {
	cfg := testConfig()
	cfg.PresaleStart = time.Time{}
	cfg = cfg.withDefaults()
	assert.Equal(t, Presale, cfg.PhaseAt(time.Unix(0, 0)))
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "whitelist_day_one", WhitelistDayOne.String())
	assert.Equal(t, "post_sale", PostSale.String())
	assert.Equal(t, "inactive", Inactive.String())
}
