package ecoguard

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDataURL is returned for payloads that are not base64 image data URLs.
var ErrInvalidDataURL = errors.New("ecoguard: invalid image data URL")

// EncodeDataURL creates a data: URI from bytes and MIME type.
func EncodeDataURL(data []byte, mimeType string) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

// DecodeDataURL decodes a "data:image/<type>;base64,<payload>" URI and returns
// the raw bytes and MIME type. A bare base64 payload without the data: prefix
// is accepted with an empty MIME type.
func DecodeDataURL(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	payload, mimeType := s, ""

	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		header, body, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", fmt.Errorf("%w: missing payload separator", ErrInvalidDataURL)
		}
		params, isBase64 := strings.CutSuffix(header, ";base64")
		if !isBase64 {
			return nil, "", fmt.Errorf("%w: payload is not base64", ErrInvalidDataURL)
		}
		if !strings.HasPrefix(params, "image/") {
			return nil, "", fmt.Errorf("%w: unsupported media type %q", ErrInvalidDataURL, params)
		}
		payload, mimeType = body, params
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return data, mimeType, nil
}
