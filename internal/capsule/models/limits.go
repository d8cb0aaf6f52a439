package models

import (
	"fmt"
	"time"
)

const (
	MaxTitleLength          = 100
	DefaultMaxContentLength = 300
	// MaxContentLengthCeiling is the largest content bound a deployment may configure.
	MaxContentLengthCeiling = 500
	MaxURLLength            = 500
)

// Limits are the byte-length bounds applied to capsule text fields.
type Limits struct {
	Title   int
	Content int
	URL     int
}

func DefaultLimits() Limits {
	return Limits{
		Title:   MaxTitleLength,
		Content: DefaultMaxContentLength,
		URL:     MaxURLLength,
	}
}

// WithContent returns l with a different content bound.
func (l Limits) WithContent(n int) Limits {
	l.Content = n
	return l
}

func (l Limits) Validate() error {
	if l.Title < 1 || l.Title > MaxTitleLength {
		return fmt.Errorf("title limit must be between 1 and %d", MaxTitleLength)
	}
	if l.Content < 1 || l.Content > MaxContentLengthCeiling {
		return fmt.Errorf("content limit must be between 1 and %d", MaxContentLengthCeiling)
	}
	if l.URL < 1 || l.URL > MaxURLLength {
		return fmt.Errorf("url limit must be between 1 and %d", MaxURLLength)
	}
	return nil
}

func (l Limits) checkTitle(title string) error {
	if len(title) > l.Title {
		return Fail(ErrTitleTooLong, fmt.Sprintf("title must be at most %d bytes", l.Title))
	}
	return nil
}

func (l Limits) checkContent(content string) error {
	if len(content) > l.Content {
		return Fail(ErrContentTooLong, fmt.Sprintf("content must be at most %d bytes", l.Content))
	}
	return nil
}

func (l Limits) checkURL(url string) error {
	if len(url) > l.URL {
		return Fail(ErrURLTooLong, fmt.Sprintf("encrypted url must be at most %d bytes", l.URL))
	}
	return nil
}

// Unlock dates are accepted between 0001-01-01T00:00:00Z and
// 9999-12-31T23:59:59Z, as unix seconds. Both bounds fit time.Unix and a
// PostgreSQL TIMESTAMPTZ column.
const (
	MinUnixDate int64 = -62135596800
	MaxUnixDate int64 = 253402300799
)

// UnixDate converts wire seconds to a UTC time, rejecting values outside
// [MinUnixDate, MaxUnixDate] before they can wrap.
func UnixDate(sec int64) (time.Time, error) {
	if sec < MinUnixDate || sec > MaxUnixDate {
		return time.Time{}, Fail(ErrUnlockDateOutOfRange, fmt.Sprintf("unlock date must be between %d and %d", MinUnixDate, MaxUnixDate))
	}
	return time.Unix(sec, 0).UTC(), nil
}

func checkDateRange(t time.Time) error {
	if sec := t.Unix(); sec < MinUnixDate || sec > MaxUnixDate {
		return Fail(ErrUnlockDateOutOfRange, fmt.Sprintf("unlock date must be between %d and %d", MinUnixDate, MaxUnixDate))
	}
	return nil
}
