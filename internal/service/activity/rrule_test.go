package activity

import (
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"karrot_server/pkg/errorx"

	"github.com/teambition/rrule-go"
)

func TestValidateRule(t *testing.T) {
	valid := []string{
		"FREQ=WEEKLY",
		"FREQ=WEEKLY;BYDAY=MO,WE",
		"RRULE:FREQ=DAILY;INTERVAL=2",
		"FREQ=MONTHLY;BYMONTHDAY=1;COUNT=5",
		"rrule:FREQ=WEEKLY",
		"Rrule:freq=weekly;byday=mo,we",
	}
	for _, rule := range valid {
		if err := ValidateRule(rule); err != nil {
			t.Errorf("ValidateRule(%q) = %v", rule, err)
		}
	}

	invalid := []string{
		"",
		"   ",
		"not a rule",
		"FREQ=SOMETIMES",
		"FREQ=WEEKLY\nFREQ=DAILY",
		"FREQ=WEEKLY,FREQ=DAILY",
		"FREQ=WEEKLY;BYDAY=XX",
		"RDATE:20240101T100000Z",
	}
	for _, rule := range invalid {
		err := ValidateRule(rule)
		if !errorx.IsValidation(err) {
			t.Errorf("ValidateRule(%q) = %v, want validation error", rule, err)
		}
	}
}

func TestComputeTargetDatesWindow(t *testing.T) {
	start := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC) // 周一
	windowStart := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	dates, err := ComputeTargetDates("FREQ=WEEKLY", start, time.UTC, windowStart, 21*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	want := []time.Time{
		time.Date(2024, 3, 11, 15, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 18, 15, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 25, 15, 0, 0, 0, time.UTC),
	}
	if len(dates) != len(want) {
		t.Fatalf("got %v", dates)
	}
	for i := range want {
		if !dates[i].Equal(want[i]) {
			t.Fatalf("date %d = %v, want %v", i, dates[i], want[i])
		}
	}
}

func TestComputeTargetDatesKeepsLocalHourAcrossDST(t *testing.T) {
	tests := []struct {
		name  string
		zone  string
		start time.Time
	}{
		{"spring forward", "Europe/Berlin", time.Date(2024, 3, 14, 15, 0, 0, 0, time.UTC)},
		{"fall back", "America/New_York", time.Date(2024, 10, 21, 19, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tz, err := time.LoadLocation(tt.zone)
			if err != nil {
				t.Fatal(err)
			}
			start := time.Date(tt.start.Year(), tt.start.Month(), tt.start.Day(), 15, 0, 0, 0, tz)
			dates, err := ComputeTargetDates("FREQ=WEEKLY", start, tz, start.Add(-time.Hour), 41*24*time.Hour)
			if err != nil {
				t.Fatal(err)
			}
			if len(dates) != 6 {
				t.Fatalf("got %d dates", len(dates))
			}
			offsets := map[int]bool{}
			for _, d := range dates {
				local := d.In(tz)
				if local.Hour() != 15 || local.Minute() != 0 {
					t.Fatalf("local time drifted: %v", local)
				}
				_, off := local.Zone()
				offsets[off] = true
			}
			if len(offsets) != 2 {
				t.Fatalf("series should cross a DST transition, offsets %v", offsets)
			}
		})
	}
}

func TestComputeTargetDatesHonoursUntil(t *testing.T) {
	tz, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatal(err)
	}
	start := time.Date(2024, 3, 4, 15, 0, 0, 0, tz)
	// UNTIL 为 UTC 14:00，即本地 15:00，包含当天
	dates, err := ComputeTargetDates("FREQ=DAILY;UNTIL=20240306T140000Z", start, tz, start.Add(-time.Hour), 30*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(dates) != 3 {
		t.Fatalf("got %v", dates)
	}
}

func TestParseRuleIgnoresCase(t *testing.T) {
	for _, rule := range []string{"rrule:FREQ=WEEKLY;BYDAY=TU", "RRULE:freq=weekly;byday=tu"} {
		opt, err := ParseRule(rule)
		if err != nil {
			t.Fatalf("ParseRule(%q) = %v", rule, err)
		}
		if opt.Freq != rrule.WEEKLY || len(opt.Byweekday) != 1 || opt.Byweekday[0] != rrule.TU {
			t.Fatalf("ParseRule(%q) = %+v", rule, opt)
		}
		frozen, err := RuleWithUntil(rule, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("RuleWithUntil(%q) = %v", rule, err)
		}
		if err := ValidateRule(frozen); err != nil {
			t.Fatalf("frozen %q invalid: %v", frozen, err)
		}
	}
}

func TestRuleWithUntil(t *testing.T) {
	until := time.Date(2024, 5, 1, 12, 30, 0, 0, time.FixedZone("X", 2*3600))
	rule, err := RuleWithUntil("FREQ=WEEKLY;BYDAY=MO;COUNT=10", until)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rule, "UNTIL=20240501T103000Z") {
		t.Fatalf("rule = %q", rule)
	}
	if strings.Contains(rule, "COUNT") {
		t.Fatalf("COUNT should be dropped: %q", rule)
	}
	if err := ValidateRule(rule); err != nil {
		t.Fatalf("rewritten rule invalid: %v", err)
	}

	start := time.Date(2024, 4, 1, 15, 0, 0, 0, time.UTC)
	dates, err := ComputeTargetDates(rule, start, time.UTC, until, 30*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(dates) != 0 {
		t.Fatalf("frozen rule produced %v", dates)
	}
}
