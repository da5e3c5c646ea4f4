package sale

import "time"

type Phase int

const (
	Inactive Phase = iota
	Presale
	WhitelistDayOne
	WhitelistDayTwo
	OpenSale
	PostSale
)

func (p Phase) String() string {
	switch p {
	case Presale:
		return "presale"
	case WhitelistDayOne:
		return "whitelist_day_one"
	case WhitelistDayTwo:
		return "whitelist_day_two"
	case OpenSale:
		return "open_sale"
	case PostSale:
		return "post_sale"
	default:
		return "inactive"
	}
}

// Clock is the external time source. It must never go backwards.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (c *Config) WhitelistStart() time.Time { return c.StartTime.Add(c.WhitelistOffset) }

func (c *Config) DayTwoStart() time.Time { return c.WhitelistStart().Add(c.WhitelistDayLength) }

func (c *Config) WhitelistEnd() time.Time { return c.DayTwoStart().Add(c.WhitelistDayLength) }

func (c *Config) OpenBonusEnd() time.Time { return c.WhitelistEnd().Add(c.OpenBonusLength) }

// PhaseAt resolves the phase active at now. Every window is half-open.
func (c *Config) PhaseAt(now time.Time) Phase {
	switch {
	case !now.Before(c.EndTime):
		return PostSale
	case now.Before(c.StartTime):
		if !c.PresaleStart.IsZero() && now.Before(c.PresaleStart) {
			return Inactive
		}
		return Presale
	case now.Before(c.WhitelistStart()):
		return Inactive
	case now.Before(c.DayTwoStart()):
		return WhitelistDayOne
	case now.Before(c.WhitelistEnd()):
		return WhitelistDayTwo
	default:
		return OpenSale
	}
}

func inOpenBonusWindow(c *Config, now time.Time) bool {
	return !now.Before(c.WhitelistEnd()) && now.Before(c.OpenBonusEnd())
}
