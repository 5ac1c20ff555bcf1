package core

import (
	"strconv"
	"time"
)

const dateLayout = "2006-01-02"

// DaysToDate renders a LitDate literal (days since epoch) as YYYY-MM-DD.
func DaysToDate(days int64) string {
	t := time.Unix(0, 0).UTC().AddDate(0, 0, int(days))
	return t.Format(dateLayout)
}

// DateToDays parses a YYYY-MM-DD string into days since epoch.
func DateToDays(s string) (int64, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return 0, err
	}
	return int64(t.Sub(time.Unix(0, 0).UTC()).Hours() / 24), nil
}

// NanosToTimestamp renders a LitTimestamp literal (nanoseconds since epoch)
// as RFC3339Nano in UTC.
func NanosToTimestamp(ns int64) string {
	return time.Unix(0, ns).UTC().Format(time.RFC3339Nano)
}

// TimestampToNanos parses an RFC3339-ish timestamp string into nanoseconds
// since epoch, trying a couple of common layouts.
func TimestampToNanos(s string) (int64, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", dateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixNano(), nil
		}
	}
	return 0, &Error{Kind: ErrParse, Message: "unrecognized timestamp: " + s}
}

// CoerceString attempts to parse s as the same Kind as target, returning a
// new Literal of that Kind. Used by the pruner to compare a partition's
// textual directory value against a predicate's typed literal.
func CoerceString(s string, kind LiteralKind) (Literal, bool) {
	switch kind {
	case LitInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Literal{}, false
		}
		return Literal{Kind: LitInt, Int: n}, true
	case LitFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Literal{}, false
		}
		return Literal{Kind: LitFloat, Flt: f}, true
	case LitBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Literal{}, false
		}
		return Literal{Kind: LitBool, Bool: b}, true
	case LitString:
		return Literal{Kind: LitString, Str: s}, true
	case LitDate:
		days, err := DateToDays(s)
		if err != nil {
			return Literal{}, false
		}
		return Literal{Kind: LitDate, Int: days}, true
	case LitTimestamp:
		ns, err := TimestampToNanos(s)
		if err != nil {
			return Literal{}, false
		}
		return Literal{Kind: LitTimestamp, Int: ns}, true
	}
	return Literal{}, false
}

// CompareLiterals compares two literals of matching Kind, returning
// (-1, 0, 1, true) or (0, false) when the kinds differ.
func CompareLiterals(a, b Literal) (int, bool) {
	if a.Kind != b.Kind {
		return 0, false
	}
	switch a.Kind {
	case LitInt, LitDate, LitTimestamp:
		switch {
		case a.Int < b.Int:
			return -1, true
		case a.Int > b.Int:
			return 1, true
		default:
			return 0, true
		}
	case LitFloat:
		switch {
		case a.Flt < b.Flt:
			return -1, true
		case a.Flt > b.Flt:
			return 1, true
		default:
			return 0, true
		}
	case LitString:
		switch {
		case a.Str < b.Str:
			return -1, true
		case a.Str > b.Str:
			return 1, true
		default:
			return 0, true
		}
	case LitBool:
		if a.Bool == b.Bool {
			return 0, true
		}
		if !a.Bool && b.Bool {
			return -1, true
		}
		return 1, true
	}
	return 0, false
}
