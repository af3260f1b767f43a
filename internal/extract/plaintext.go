package extract

import (
	"bytes"
	"context"
	"fmt"
	"unicode/utf8"

	"docqa/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Plaintext decodes UTF-8 text.
type Plaintext struct{}

// Extract returns data as a string. Invalid UTF-8 yields domain.ErrDecode.
func (Plaintext) Extract(_ context.Context, filename, _ string, data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrDecode, filename)
	}
	return string(data), nil
}
