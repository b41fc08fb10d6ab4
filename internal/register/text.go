package register

import (
	"context"
	"strconv"
)

// Show formats the register as decimal digits followed by a newline.
// The result never exceeds PageSize bytes.
func (s *Store) Show(ctx context.Context) (string, error) {
	v, err := s.Value(ctx)
	if err != nil {
		return "", err
	}

	text := strconv.FormatInt(int64(v), 10) + "\n"
	if len(text) > PageSize {
		text = text[:PageSize]
	}
	return text, nil
}

// StoreText parses the leading decimal integer of text and assigns it to the
// register. Parsing happens before the semaphore is taken.
//
// The whole input counts as consumed, trailing garbage included.
func (s *Store) StoreText(ctx context.Context, text []byte) (int, error) {
	n, _, err := s.StoreTextCommit(ctx, text)
	return n, err
}

// StoreTextCommit is StoreText that also reports the value it assigned.
func (s *Store) StoreTextCommit(ctx context.Context, text []byte) (int, Commit, error) {
	v := ParseLeading(text)

	if err := s.lock(ctx); err != nil {
		return 0, Commit{}, err
	}
	c := s.assign(v)
	s.unlock()

	return len(text), c, nil
}

// ParseLeading converts an optional '-' followed by base-10 digits at the
// start of text. It stops at the first non-digit; with no digits it yields
// zero. Overflow is not reported: the accumulator wraps at 64 bits and the
// result is truncated to 32.
func ParseLeading(text []byte) int32 {
	neg := false
	i := 0
	if i < len(text) && text[i] == '-' {
		neg = true
		i++
	}

	var acc uint64
	for ; i < len(text); i++ {
		c := text[i]
		if c < '0' || c > '9' {
			break
		}
		acc = acc*10 + uint64(c-'0')
	}

	if neg {
		acc = -acc
	}
	return int32(acc)
}
