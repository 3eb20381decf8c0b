package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	kilobyte = 1000
	megabyte = 1000 * kilobyte
	gigabyte = 1000 * megabyte
	terabyte = 1000 * gigabyte

	kibibyte = 1024
	mebibyte = 1024 * kibibyte
	gibibyte = 1024 * mebibyte
	tebibyte = 1024 * gibibyte
)

// sizeUnits is ordered so that longer suffixes are tried before "B".
var sizeUnits = []struct {
	suffix string
	bytes  int64
}{
	{"TIB", tebibyte}, {"GIB", gibibyte}, {"MIB", mebibyte}, {"KIB", kibibyte},
	{"TB", terabyte}, {"GB", gigabyte}, {"MB", megabyte}, {"KB", kilobyte},
	{"B", 1},
}

// ByteSize is a transfer size as written in config: "10MiB", "5GB", or a
// bare byte count. It decodes straight from TOML strings and integers.
type ByteSize int64

// UnmarshalText parses text with ParseSize.
func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := ParseSize(string(text))
	if err != nil {
		return err
	}

	*b = ByteSize(n)

	return nil
}

// String renders b in the largest IEC unit that divides it evenly, so a
// configured "10MiB" reads back the same in error messages.
func (b ByteSize) String() string {
	n := int64(b)

	for _, u := range []struct {
		suffix string
		bytes  int64
	}{{"TiB", tebibyte}, {"GiB", gibibyte}, {"MiB", mebibyte}, {"KiB", kibibyte}} {
		if n != 0 && n%u.bytes == 0 {
			return strconv.FormatInt(n/u.bytes, 10) + u.suffix
		}
	}

	return strconv.FormatInt(n, 10) + "B"
}

// ParseSize converts a size with an optional SI (KB..TB) or IEC (KiB..TiB)
// suffix to bytes. A bare number is bytes; "" is zero.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	num, unit := s, int64(1)
	upper := strings.ToUpper(s)

	for _, u := range sizeUnits {
		if strings.HasSuffix(upper, u.suffix) {
			num, unit = strings.TrimSpace(s[:len(s)-len(u.suffix)]), u.bytes
			break
		}
	}

	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	if f < 0 {
		return 0, fmt.Errorf("invalid size %q: must be non-negative", s)
	}

	total := f * float64(unit)
	if total >= math.MaxInt64 {
		return 0, fmt.Errorf("invalid size %q: too large", s)
	}

	return int64(total), nil
}
