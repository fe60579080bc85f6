package probe

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/blktag/internal/blkid"
)

// lsblkColumns is the column list requested from lsblk. NAME and TYPE are
// consumed by the prober (TYPE is the device kind); the rest become tags.
var lsblkColumns = []string{"NAME", "TYPE", "FSTYPE", "LABEL", "UUID", "PARTUUID", "PARTLABEL", "PTUUID"}

// tagColumns maps lsblk columns onto blkid tag names.
var tagColumns = map[string]string{
	"FSTYPE":    "TYPE",
	"LABEL":     "LABEL",
	"UUID":      "UUID",
	"PARTUUID":  "PARTUUID",
	"PARTLABEL": "PARTLABEL",
	"PTUUID":    "PTUUID",
}

// Priorities given to stacked devices, so that a lookup prefers the
// device-mapper or RAID node over the member disks that share its tags.
const (
	PriorityDM   = 40
	PriorityLVM  = 20
	PriorityRAID = 10
)

// entry is one line of lsblk output.
type entry struct {
	name string
	kind string
	tags map[string]string
}

func lsblkArgs(devnames ...string) []string {
	args := []string{"--pairs", "--paths", "--output", strings.Join(lsblkColumns, ",")}
	if len(devnames) > 0 {
		args = append(args, "--nodeps")
		args = append(args, devnames...)
	}
	return args
}

// parseLsblk parses `lsblk --pairs` output. Each line holds KEY="value"
// pairs separated by single spaces.
func parseLsblk(out []byte) ([]entry, error) {
	var entries []entry
	sc := bufio.NewScanner(bytes.NewReader(out))
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading lsblk output: %w", err)
	}
	return entries, nil
}

func parseLine(line string) (entry, error) {
	e := entry{tags: make(map[string]string)}
	for rest := line; rest != ""; {
		token, tail, err := nextPair(rest)
		if err != nil {
			return entry{}, err
		}
		rest = tail

		key, raw, err := blkid.ParseTagString(token)
		if err != nil {
			return entry{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
		value, err := unescape(raw)
		if err != nil {
			return entry{}, err
		}

		switch key {
		case "NAME":
			e.name = value
		case "TYPE":
			e.kind = value
		default:
			if tag, ok := tagColumns[key]; ok && value != "" {
				e.tags[tag] = value
			}
		}
	}
	if e.name == "" {
		return entry{}, fmt.Errorf("%w: no NAME column in %q", ErrMalformedOutput, line)
	}
	return e, nil
}

// nextPair splits off the first KEY="value" token. lsblk hex-escapes
// quotes inside values, so the first closing quote ends the token.
func nextPair(s string) (token, rest string, err error) {
	eq := strings.IndexByte(s, '=')
	if eq <= 0 || eq+1 >= len(s) || s[eq+1] != '"' {
		return "", "", fmt.Errorf("%w: expected KEY=\"value\" at %q", ErrMalformedOutput, s)
	}
	end := strings.IndexByte(s[eq+2:], '"')
	if end < 0 {
		return "", "", fmt.Errorf("%w: unterminated value at %q", ErrMalformedOutput, s)
	}
	end += eq + 3
	return s[:end], strings.TrimLeft(s[end:], " "), nil
}

// unescape decodes the \xHH sequences lsblk uses for unsafe bytes.
func unescape(s string) (string, error) {
	if !strings.Contains(s, `\x`) {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+4 <= len(s) && s[i+1] == 'x' {
			n, err := strconv.ParseUint(s[i+2:i+4], 16, 8)
			if err != nil {
				return "", fmt.Errorf("%w: bad escape in %q", ErrMalformedOutput, s)
			}
			b.WriteByte(byte(n))
			i += 3
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String(), nil
}

// priorityFor maps an lsblk device kind to a lookup priority.
func priorityFor(kind string) int {
	switch {
	case kind == "crypt" || kind == "dm" || kind == "mpath":
		return PriorityDM
	case kind == "lvm":
		return PriorityLVM
	case kind == "md" || strings.HasPrefix(kind, "raid"):
		return PriorityRAID
	default:
		return 0
	}
}
