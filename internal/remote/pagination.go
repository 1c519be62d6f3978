package remote

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// cursorVersion prefixes encoded cursors so the format can change without
// breaking callers holding old ones.
const cursorVersion = "v1"

// EncodeCursor converts an offset into an opaque cursor. Callers never see
// raw offsets.
func EncodeCursor(offset int) string {
	raw := fmt.Sprintf("%s:%d", cursorVersion, offset)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor converts a cursor back to an offset. An empty cursor means
// the start of the listing.
func DecodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, NewError(ErrValidation, "malformed pagination cursor")
	}

	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 || parts[0] != cursorVersion {
		return 0, NewError(ErrValidation, "unsupported pagination cursor")
	}

	offset, err := strconv.Atoi(parts[1])
	if err != nil || offset < 0 {
		return 0, NewError(ErrValidation, "malformed pagination cursor")
	}
	return offset, nil
}
