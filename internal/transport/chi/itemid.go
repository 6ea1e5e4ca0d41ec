package chi

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/retreivo/itemmatch/internal/domain/item"
)

var errItemIDType = errors.New("item_id must be a string or a number")

// itemID is an opaque item identity that arrives as a JSON string or number. A number keeps
// its literal text as the canonical value and is written back as a number.
type itemID struct {
	value string
	form  item.IDForm
}

func newItemID(value string, form item.IDForm) itemID {
	return itemID{value: value, form: form}
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *itemID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*id = itemID{}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("item_id: %w", err)
		}
		*id = itemID{value: s, form: item.IDText}
		return nil
	case isNumberLiteral(data):
		*id = itemID{value: string(data), form: item.IDNumber}
		return nil
	default:
		return errItemIDType
	}
}

// MarshalJSON implements json.Marshaler.
func (id itemID) MarshalJSON() ([]byte, error) {
	if id.form == item.IDNumber && isNumberLiteral([]byte(id.value)) {
		return []byte(id.value), nil
	}
	return json.Marshal(id.value)
}

// isNumberLiteral reports whether b is a single JSON number.
func isNumberLiteral(b []byte) bool {
	if len(b) == 0 || (b[0] != '-' && (b[0] < '0' || b[0] > '9')) {
		return false
	}
	var n json.Number
	return json.Unmarshal(b, &n) == nil
}
