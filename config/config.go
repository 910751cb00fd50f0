/*
Package config loads the service configuration from the environment.

PURPOSE:
  The deployment target configures everything through environment
  variables (optionally seeded from a .env file in development). This
  package parses them into typed values; no parsing logic leaks into the
  engine.

VARIABLES:
  TZ_OFFSET_HOURS   Local timezone as a fixed UTC offset (default: 7)
  CHECKIN_DEADLINE  Late threshold time-of-day, HH:MM:SS (default: 15:00:00)
  STALE_AFTER       Stale-session threshold, Go duration (default: 16h)
  SWEEP_INTERVAL    Overdue sweep interval, Go duration (default: 60s)
  REPORT_KEYWORDS   Leave keywords as "keyword=minutes,..." pairs
                    (default: the built-in map below)

SEE ALSO:
  - cmd/server: Combines this with -port / -db flags
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultReportKeywords is the built-in keyword→minutes mapping.
var DefaultReportKeywords = map[string]int{
	"wc大": 10, "厕所大": 10, "大": 10,
	"wc小": 5, "厕所小": 5, "小": 5,
	"厕所": 5, "wc": 5, "抽烟": 5,
	"吃饭": 30,
}

// DefaultCheckInWords, DefaultCheckOutWords and DefaultReturnWords are the
// built-in action word lists.
var (
	DefaultCheckInWords  = []string{"上班", "打卡", "到岗"}
	DefaultCheckOutWords = []string{"下班"}
	DefaultReturnWords   = []string{"1", "回", "回来了"}
)

// DayTime is a time-of-day expressed as seconds since local midnight.
type DayTime int

// ParseDayTime parses "HH:MM:SS".
func ParseDayTime(s string) (DayTime, error) {
	t, err := time.Parse("15:04:05", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return DayTime(t.Hour()*3600 + t.Minute()*60 + t.Second()), nil
}

// SecondsInto returns how many seconds into its local day the instant is.
func SecondsInto(at time.Time) DayTime {
	return DayTime(at.Hour()*3600 + at.Minute()*60 + at.Second())
}

func (d DayTime) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", int(d)/3600, int(d)%3600/60, int(d)%60)
}

// Config holds every tunable the engine consumes.
type Config struct {
	Location       *time.Location
	LateDeadline   DayTime
	StaleAfter     time.Duration
	SweepInterval  time.Duration
	ReportKeywords map[string]int
	CheckInWords   []string
	CheckOutWords  []string
	ReturnWords    []string
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first if present; real environment variables
// win over it.
func Load() (*Config, error) {
	_ = godotenv.Load() // best effort, absence is fine

	cfg := &Config{
		StaleAfter:     16 * time.Hour,
		SweepInterval:  60 * time.Second,
		ReportKeywords: DefaultReportKeywords,
		CheckInWords:   DefaultCheckInWords,
		CheckOutWords:  DefaultCheckOutWords,
		ReturnWords:    DefaultReturnWords,
	}

	offset := 7
	if v := os.Getenv("TZ_OFFSET_HOURS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("TZ_OFFSET_HOURS: %w", err)
		}
		offset = n
	}
	cfg.Location = FixedZone(offset)

	deadline := "15:00:00"
	if v := os.Getenv("CHECKIN_DEADLINE"); v != "" {
		deadline = v
	}
	d, err := ParseDayTime(deadline)
	if err != nil {
		return nil, fmt.Errorf("CHECKIN_DEADLINE: %w", err)
	}
	cfg.LateDeadline = d

	if v := os.Getenv("STALE_AFTER"); v != "" {
		dur, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("STALE_AFTER: %w", err)
		}
		cfg.StaleAfter = dur
	}

	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		dur, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("SWEEP_INTERVAL: %w", err)
		}
		cfg.SweepInterval = dur
	}

	if v := os.Getenv("REPORT_KEYWORDS"); v != "" {
		kw, err := ParseKeywords(v)
		if err != nil {
			return nil, fmt.Errorf("REPORT_KEYWORDS: %w", err)
		}
		cfg.ReportKeywords = kw
	}

	return cfg, nil
}

// FixedZone returns a fixed-offset location like UTC+7.
func FixedZone(offsetHours int) *time.Location {
	name := fmt.Sprintf("UTC%+d", offsetHours)
	return time.FixedZone(name, offsetHours*3600)
}

// ParseKeywords parses "keyword=minutes,keyword=minutes" pairs.
func ParseKeywords(s string) (map[string]int, error) {
	out := make(map[string]int)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("malformed pair %q (want keyword=minutes)", pair)
		}
		minutes, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || minutes <= 0 {
			return nil, fmt.Errorf("invalid minutes in %q", pair)
		}
		out[strings.TrimSpace(k)] = minutes
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no keyword pairs in %q", s)
	}
	return out, nil
}
