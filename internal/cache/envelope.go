package cache

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Payloads are stored behind a one-byte format tag so reads dispatch
// directly instead of parsing speculatively. Entries written before the tag
// existed fall back to msgpack, then JSON, then raw text.
const (
	formatMsgpack byte = 'M'
	formatJSON    byte = 'J'
	formatRaw     byte = 'R'
)

func encode(value interface{}, format byte) ([]byte, error) {
	var payload []byte
	var err error
	switch format {
	case formatMsgpack:
		payload, err = msgpack.Marshal(value)
	case formatJSON:
		payload, err = json.Marshal(value)
	case formatRaw:
		switch v := value.(type) {
		case string:
			payload = []byte(v)
		case []byte:
			payload = v
		default:
			payload = []byte(fmt.Sprint(value))
		}
	default:
		return nil, fmt.Errorf("unknown cache format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return append([]byte{format}, payload...), nil
}

func decode(payload []byte, dest interface{}) error {
	if len(payload) == 0 {
		return fmt.Errorf("empty cache payload")
	}

	switch payload[0] {
	case formatMsgpack:
		return msgpack.Unmarshal(payload[1:], dest)
	case formatJSON:
		return json.Unmarshal(payload[1:], dest)
	case formatRaw:
		return decodeRaw(payload[1:], dest)
	}

	// legacy untagged payload
	if err := msgpack.Unmarshal(payload, dest); err == nil {
		return nil
	}
	if err := json.Unmarshal(payload, dest); err == nil {
		return nil
	}
	return decodeRaw(payload, dest)
}

func decodeRaw(payload []byte, dest interface{}) error {
	switch d := dest.(type) {
	case *string:
		*d = string(payload)
		return nil
	case *[]byte:
		*d = append((*d)[:0], payload...)
		return nil
	}
	return fmt.Errorf("raw cache payload needs a string destination, got %T", dest)
}
