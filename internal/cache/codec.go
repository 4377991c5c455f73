package cache

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrCorruptSnapshot is returned when the stored snapshot lacks its version prefix.
var ErrCorruptSnapshot = errors.New("corrupt snapshot value")

// maxVersionDigits bounds the prefix scan: an int64 has at most 19 digits.
const maxVersionDigits = 20

// encodeSnapshot prefixes payload with its version: "<version>|<payload>".
func encodeSnapshot(version int64, payload []byte) string {
	var b strings.Builder
	b.Grow(maxVersionDigits + 1 + len(payload))
	b.WriteString(strconv.FormatInt(version, 10))
	b.WriteByte('|')
	b.Write(payload)
	return b.String()
}

// decodeSnapshot splits a stored value at the first '|'. Only the first
// maxVersionDigits bytes are searched, payloads may contain pipes.
func decodeSnapshot(raw string) (int64, []byte, error) {
	limit := min(len(raw), maxVersionDigits+1)
	idx := strings.IndexByte(raw[:limit], '|')
	if idx < 0 {
		return 0, nil, ErrCorruptSnapshot
	}

	version, err := strconv.ParseInt(raw[:idx], 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: bad version %q", ErrCorruptSnapshot, raw[:idx])
	}
	return version, []byte(raw[idx+1:]), nil
}

// encodeChange formats a flag change notification as "<key>:<version>".
func encodeChange(flagKey string, version int64) string {
	return flagKey + ":" + strconv.FormatInt(version, 10)
}

// decodeChange parses a change notification. Messages without a parseable
// version yield the whole message as key and version 0.
func decodeChange(msg string) (string, int64) {
	idx := strings.LastIndexByte(msg, ':')
	if idx < 0 {
		return msg, 0
	}
	version, err := strconv.ParseInt(msg[idx+1:], 10, 64)
	if err != nil {
		return msg, 0
	}
	return msg[:idx], version
}
