package schedules

import (
	"math"
	"net/url"
	"time"

	"github.com/robfig/cron/v3"
)

// MinInterval is the smallest firing gap a schedule may have. Expressions
// that can fire more often than this are rejected outright.
const MinInterval = 5 * time.Minute

// cronParser accepts the standard 5 fields (minute, hour, day-of-month,
// month, day-of-week). Descriptors like "@every 30s" are deliberately not
// accepted: they bypass the interval check below.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ParseCron validates a 5-field cron expression, including the minimum
// firing interval, and returns its schedule.
func ParseCron(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, newValidationError("cron_expression", "is required")
	}

	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, newValidationError("cron_expression", "%v", err)
	}

	if gap := minimumGap(sched); gap < MinInterval {
		return nil, newValidationError("cron_expression",
			"fires every %s; the minimum interval is %s", gap, MinInterval)
	}

	return sched, nil
}

// minimumGap walks successive firings and returns the smallest observed
// gap. The walk is bounded: a few hundred firings inside a five-week
// window are enough to expose any minute-level pattern, while sparse
// schedules (daily, monthly) terminate early with a large gap.
func minimumGap(sched cron.Schedule) time.Duration {
	ref := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	horizon := ref.AddDate(0, 0, 35)

	smallest := time.Duration(math.MaxInt64)
	prev := sched.Next(ref)

	for i := 0; i < 300; i++ {
		if prev.IsZero() || prev.After(horizon) {
			break
		}
		next := sched.Next(prev)
		if next.IsZero() {
			break
		}
		if gap := next.Sub(prev); gap < smallest {
			smallest = gap
		}
		if smallest < MinInterval {
			break
		}
		prev = next
	}

	return smallest
}

// ParseTimezone validates an IANA zone name.
func ParseTimezone(name string) (*time.Location, error) {
	if name == "" {
		return nil, newValidationError("timezone", "is required")
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, newValidationError("timezone", "unknown IANA zone %q", name)
	}

	return loc, nil
}

// ValidateWebhookURL checks that raw is an absolute URL with an explicit
// scheme. Production restricts the scheme to https; other environments
// also permit http.
func ValidateWebhookURL(raw, environment string) error {
	if raw == "" {
		return newValidationError("webhook_url", "is required")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return newValidationError("webhook_url", "%v", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return newValidationError("webhook_url", "must be absolute with an explicit scheme")
	}

	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		if environment == "production" {
			return newValidationError("webhook_url", "scheme http is not allowed in production")
		}
		return nil
	default:
		return newValidationError("webhook_url", "unsupported scheme %q", parsed.Scheme)
	}
}

// NextRun computes the next firing instant after the given time,
// evaluated in the schedule's timezone. The cron library resolves the
// nominal local time to the correct absolute instant across DST
// transitions.
func NextRun(expr, timezone string, after time.Time) (time.Time, error) {
	sched, err := ParseCron(expr)
	if err != nil {
		return time.Time{}, err
	}

	loc, err := ParseTimezone(timezone)
	if err != nil {
		return time.Time{}, err
	}

	return sched.Next(after.In(loc)), nil
}
