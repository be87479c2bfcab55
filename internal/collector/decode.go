package collector

import (
	"fmt"
	"mime"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
)

// decodeText returns body as a UTF-8 string. A charset parameter on the
// content type selects the source encoding; without one the body must
// already be valid UTF-8.
func decodeText(body []byte, contentType string) (string, error) {
	charset := ""
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			charset = params["charset"]
		}
	}

	if charset != "" {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return "", fmt.Errorf("%w: unknown charset %q", ErrDecode, charset)
		}
		if name, _ := htmlindex.Name(enc); name != "utf-8" {
			out, err := enc.NewDecoder().Bytes(body)
			if err != nil {
				return "", fmt.Errorf("%w: %s: %w", ErrDecode, charset, err)
			}
			return string(out), nil
		}
	}

	if !utf8.Valid(body) {
		return "", fmt.Errorf("%w: invalid UTF-8 in %d byte body", ErrDecode, len(body))
	}
	return string(body), nil
}
