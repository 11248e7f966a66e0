package core

import (
	"errors"
	"time"
)

// ErrBadTZ is returned for a timezone spec that doesn't parse.
var ErrBadTZ = errors.New("tz: invalid POSIX timezone spec")

const defaultRuleTime = 2 * 3600 // 02:00:00 local

// TZRule is one DST transition in M-notation: the Day-th weekday of
// Week in Month, at Time seconds after local midnight. Week 5 means
// the last occurrence of that weekday in the month.
type TZRule struct {
	Month uint8 // 1..12
	Week  uint8 // 1..5
	Day   uint8 // 0=Sunday .. 6=Saturday
	Time  int32 // seconds after 00:00 local, may exceed 24h per POSIX
}

// Timezone is a parsed POSIX TZ string such as "EST5EDT,M3.2.0,M11.1.0".
// Offsets are stored in seconds east of UTC (the opposite sign of the
// POSIX notation). There is no tzdata on the MCU targets, so this is
// the whole timezone story: fixed offsets plus at most one DST rule
// pair per year.
type Timezone struct {
	Spec      string
	StdName   string
	DstName   string
	StdOffset int32
	DstOffset int32
	HasDST    bool
	Start     TZRule // DST begins (time in standard offset)
	End       TZRule // DST ends (time in DST offset)
}

// ParseTZ parses a POSIX TZ spec:
//
//	std offset [dst [offset] [,start[/time],end[/time]]]
//
// Designations are letter runs of three or more, or <quoted>. Only
// M-form rules are accepted. A DST designation without rules gets the
// United States defaults (M3.2.0,M11.1.0), matching libc behavior.
func ParseTZ(spec string) (Timezone, error) {
	tz := Timezone{Spec: spec}
	var ok bool
	i := 0
	tz.StdName, i, ok = tzName(spec, i)
	if !ok {
		return Timezone{}, ErrBadTZ
	}
	var off int32
	off, i, ok = tzOffset(spec, i, 24)
	if !ok {
		return Timezone{}, ErrBadTZ
	}
	// POSIX offsets are west-positive
	tz.StdOffset = -off
	if i >= len(spec) {
		return tz, nil
	}

	tz.DstName, i, ok = tzName(spec, i)
	if !ok {
		return Timezone{}, ErrBadTZ
	}
	tz.HasDST = true
	tz.DstOffset = tz.StdOffset + 3600
	if i < len(spec) && spec[i] != ',' {
		off, i, ok = tzOffset(spec, i, 24)
		if !ok {
			return Timezone{}, ErrBadTZ
		}
		tz.DstOffset = -off
	}

	if i >= len(spec) {
		tz.Start = TZRule{Month: 3, Week: 2, Day: 0, Time: defaultRuleTime}
		tz.End = TZRule{Month: 11, Week: 1, Day: 0, Time: defaultRuleTime}
		return tz, nil
	}
	tz.Start, i, ok = tzRule(spec, i)
	if !ok {
		return Timezone{}, ErrBadTZ
	}
	tz.End, i, ok = tzRule(spec, i)
	if !ok || i != len(spec) {
		return Timezone{}, ErrBadTZ
	}
	return tz, nil
}

// OffsetAt returns the offset from UTC, in seconds east, in effect at
// the given UTC instant.
func (tz *Timezone) OffsetAt(utc time.Time) int32 {
	if !tz.HasDST {
		return tz.StdOffset
	}
	year := utc.Year()
	start := tz.Start.utcInstant(year, tz.StdOffset)
	end := tz.End.utcInstant(year, tz.DstOffset)
	var dst bool
	if start.Before(end) {
		dst = !utc.Before(start) && utc.Before(end)
	} else {
		// southern hemisphere: DST spans the new year
		dst = !utc.Before(start) || utc.Before(end)
	}
	if dst {
		return tz.DstOffset
	}
	return tz.StdOffset
}

// ToLocal converts a UTC instant to local civil time. The result still
// carries the UTC location; only the clock fields are shifted.
func (tz *Timezone) ToLocal(utc time.Time) time.Time {
	return utc.Add(time.Duration(tz.OffsetAt(utc)) * time.Second)
}

// IsDST reports whether DST is in effect at the given UTC instant.
func (tz *Timezone) IsDST(utc time.Time) bool {
	return tz.HasDST && tz.OffsetAt(utc) == tz.DstOffset
}

// utcInstant computes the UTC instant of this transition in the given
// year. offset is the offset in effect before the transition.
func (r TZRule) utcInstant(year int, offset int32) time.Time {
	day := r.dayOfMonth(year)
	local := time.Date(year, time.Month(r.Month), day, 0, 0, 0, 0, time.UTC)
	return local.Add(time.Duration(int64(r.Time)-int64(offset)) * time.Second)
}

func (r TZRule) dayOfMonth(year int) int {
	first := time.Date(year, time.Month(r.Month), 1, 0, 0, 0, 0, time.UTC)
	day := 1 + (int(r.Day)-int(first.Weekday())+7)%7
	day += 7 * (int(r.Week) - 1)
	// week 5 means last occurrence, walk back into the month
	last := time.Date(year, time.Month(r.Month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	for day > last {
		day -= 7
	}
	return day
}

func tzName(s string, i int) (string, int, bool) {
	if i < len(s) && s[i] == '<' {
		j := i + 1
		for j < len(s) && s[j] != '>' {
			j++
		}
		if j >= len(s) || j == i+1 {
			return "", i, false
		}
		return s[i+1 : j], j + 1, true
	}
	j := i
	for j < len(s) && isAlpha(s[j]) {
		j++
	}
	if j-i < 3 {
		return "", i, false
	}
	return s[i:j], j, true
}

// tzOffset parses [+-]hh[:mm[:ss]] and returns seconds with the POSIX
// sign (west positive). maxHours is 24 for zone offsets and 167 for
// rule times.
func tzOffset(s string, i int, maxHours int) (int32, int, bool) {
	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}
	h, i, ok := tzNumber(s, i, 3)
	if !ok || h > maxHours {
		return 0, i, false
	}
	secs := int32(h) * 3600
	for _, scale := range []int32{60, 1} {
		if i >= len(s) || s[i] != ':' {
			break
		}
		var v int
		v, i, ok = tzNumber(s, i+1, 2)
		if !ok || v > 59 {
			return 0, i, false
		}
		secs += int32(v) * scale
	}
	if neg {
		secs = -secs
	}
	return secs, i, true
}

func tzRule(s string, i int) (TZRule, int, bool) {
	var r TZRule
	if i >= len(s) || s[i] != ',' {
		return r, i, false
	}
	i++
	if i >= len(s) || s[i] != 'M' {
		return r, i, false
	}
	m, i, ok := tzNumber(s, i+1, 2)
	if !ok || m < 1 || m > 12 {
		return r, i, false
	}
	if i >= len(s) || s[i] != '.' {
		return r, i, false
	}
	w, i, ok := tzNumber(s, i+1, 1)
	if !ok || w < 1 || w > 5 {
		return r, i, false
	}
	if i >= len(s) || s[i] != '.' {
		return r, i, false
	}
	d, i, ok := tzNumber(s, i+1, 1)
	if !ok || d > 6 {
		return r, i, false
	}
	r.Month = uint8(m)
	r.Week = uint8(w)
	r.Day = uint8(d)
	r.Time = defaultRuleTime
	if i < len(s) && s[i] == '/' {
		t, j, ok := tzOffset(s, i+1, 167)
		if !ok {
			return r, i, false
		}
		r.Time = t
		i = j
	}
	return r, i, true
}

func tzNumber(s string, i int, maxDigits int) (int, int, bool) {
	j := i
	v := 0
	for j < len(s) && j-i < maxDigits && s[j] >= '0' && s[j] <= '9' {
		v = v*10 + int(s[j]-'0')
		j++
	}
	if j == i {
		return 0, i, false
	}
	return v, j, true
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
