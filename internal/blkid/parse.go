package blkid

import (
	"fmt"
	"strings"
)

// ParseTagString splits a "NAME=value" token into its name and value.
//
// The split happens at the first '='. A value starting with a single or
// double quote runs up to the last occurrence of that same quote in the
// rest of the token; anything after it is dropped. An unquoted value is
// taken verbatim, spaces included, so a string that was already quoted on
// a command line does not need another level of quoting.
//
// Examples:
//
//	ParseTagString(`LABEL="my disk"`) // "LABEL", "my disk"
//	ParseTagString(`UUID=1234-ABCD`)  // "UUID", "1234-ABCD"
//	ParseTagString(`LABEL="oops`)     // ErrInvalidTagString
//
// Returns:
//   - name, value: The parsed pair
//   - err: ErrInvalidTagString if there is no '=', the name is empty or a
//     quote is not terminated
func ParseTagString(token string) (name, value string, err error) {
	name, value, ok := strings.Cut(token, "=")
	if !ok {
		return "", "", fmt.Errorf("%w: %q has no '='", ErrInvalidTagString, token)
	}
	if name == "" {
		return "", "", fmt.Errorf("%w: %q has an empty name", ErrInvalidTagString, token)
	}

	if value != "" && (value[0] == '"' || value[0] == '\'') {
		quote := value[0]
		rest := value[1:]
		end := strings.LastIndexByte(rest, quote)
		if end < 0 {
			return "", "", fmt.Errorf("%w: %q has an unterminated quote", ErrInvalidTagString, token)
		}
		value = rest[:end]
	}

	return name, value, nil
}

// FormatTagString renders name and value as NAME="value".
func FormatTagString(name, value string) string {
	return name + `="` + value + `"`
}
