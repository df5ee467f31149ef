package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestAlignFromTo(t *testing.T) {
	from := time.Date(2024, 10, 10, 10, 7, 13, 0, time.UTC)
	to := time.Date(2024, 10, 10, 12, 52, 1, 0, time.UTC)
	gf, gt := AlignFromTo(from, to, 15*time.Minute)
	if gf.Minute() != 0 || gt.Minute() != 45 {
		t.Fatalf("unexpected alignment %v %v", gf, gt)
	}
}

func TestParseDuration(t *testing.T) {
	if d := ParseDuration("90s", time.Minute); d != 90*time.Second {
		t.Fatalf("unexpected %v", d)
	}
	if d := ParseDuration("junk", time.Minute); d != time.Minute {
		t.Fatalf("expected default, got %v", d)
	}
}
