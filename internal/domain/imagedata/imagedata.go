// Package imagedata decodes base64 image payloads as sent by clients, with or without a
// data-URI prefix.
package imagedata

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// MaxEncodedSize bounds the accepted base64 payload (about 15 MiB of image data).
const MaxEncodedSize = 20 << 20

// StripDataURI removes a leading "data:<mime>;base64," marker if present.
func StripDataURI(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if _, rest, ok := strings.Cut(s, ","); ok {
		return rest
	}
	return s
}

// Decode strips the data-URI marker and decodes the base64 body.
// An empty input returns (nil, nil): the caller did not supply an image.
func Decode(s string) ([]byte, error) {
	body := StripDataURI(s)
	if body == "" {
		return nil, nil
	}
	if len(body) > MaxEncodedSize {
		return nil, fmt.Errorf("image payload too large (%d bytes encoded)", len(body))
	}

	// Clients send both padded and unpadded, standard and URL-safe alphabets.
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding,
	} {
		if data, err := enc.DecodeString(body); err == nil {
			if len(data) == 0 {
				return nil, fmt.Errorf("image payload decodes to zero bytes")
			}
			return data, nil
		}
	}
	return nil, fmt.Errorf("image payload is not valid base64")
}
