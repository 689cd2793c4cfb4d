// Package password generates random passwords from selectable character sets.
package password

import (
	"crypto/rand"
	"errors"
	"io"
	"math/big"
)

const (
	Lower   = "abcdefghijklmnopqrstuvwxyz"
	Upper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	Digits  = "0123456789"
	Symbols = "!@#$%^&*()-_=+[]{};:,.?/<>~"
)

const (
	MinLength     = 6
	MaxLength     = 64
	DefaultLength = 16
)

// ErrNoCharset is returned when no character set is selected.
var ErrNoCharset = errors.New("select at least one character set")

// Options selects the character sets and the length. Length 0 means DefaultLength;
// any other value is clamped to [MinLength, MaxLength].
type Options struct {
	Length  int  `json:"length"`
	Lower   bool `json:"lower"`
	Upper   bool `json:"upper"`
	Digits  bool `json:"digits"`
	Symbols bool `json:"symbols"`
}

// DefaultOptions selects every set at the default length.
func DefaultOptions() Options {
	return Options{Length: DefaultLength, Lower: true, Upper: true, Digits: true, Symbols: true}
}

// Generator draws from an entropy source; the zero value uses crypto/rand.
type Generator struct {
	Rand io.Reader
}

// Generate returns a password using crypto/rand.
func Generate(opts Options) (string, error) {
	return Generator{}.Generate(opts)
}

// Generate builds a password holding at least one character of each
// selected set, then shuffles it.
func (g Generator) Generate(opts Options) (string, error) {
	var sets []string
	if opts.Lower {
		sets = append(sets, Lower)
	}
	if opts.Upper {
		sets = append(sets, Upper)
	}
	if opts.Digits {
		sets = append(sets, Digits)
	}
	if opts.Symbols {
		sets = append(sets, Symbols)
	}
	if len(sets) == 0 {
		return "", ErrNoCharset
	}

	n := ClampLength(opts.Length)
	var all string
	for _, s := range sets {
		all += s
	}

	out := make([]byte, 0, n)
	for _, s := range sets {
		c, err := g.pick(s)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < n {
		c, err := g.pick(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	// Fisher-Yates
	for i := len(out) - 1; i > 0; i-- {
		j, err := g.intn(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}
	return string(out), nil
}

// ClampLength applies the default and the allowed bounds.
func ClampLength(n int) int {
	if n == 0 {
		return DefaultLength
	}
	return max(MinLength, min(MaxLength, n))
}

func (g Generator) pick(set string) (byte, error) {
	i, err := g.intn(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

func (g Generator) intn(n int) (int, error) {
	r := g.Rand
	if r == nil {
		r = rand.Reader
	}
	v, err := rand.Int(r, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
