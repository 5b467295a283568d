package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// stampPayload writes the reserved id and timestamp fields into an object payload.
func stampPayload(payload json.RawMessage, id string, createdAt, updatedAt time.Time) (json.RawMessage, error) {
	doc, err := objectPayload(payload)
	if err != nil {
		return nil, err
	}

	if doc, err = sjson.SetBytes(doc, FieldID, id); err != nil {
		return nil, err
	}

	if doc, err = sjson.SetBytes(doc, FieldCreatedAt, createdAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, err
	}

	if doc, err = sjson.SetBytes(doc, FieldUpdatedAt, updatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, err
	}

	return doc, nil
}

// mergePayload overwrites the top-level fields of current with those of patch.
// Reserved fields in the patch are ignored.
func mergePayload(current, patch json.RawMessage) (json.RawMessage, error) {
	doc, err := objectPayload(current)
	if err != nil {
		return nil, err
	}

	p, err := objectPayload(patch)
	if err != nil {
		return nil, err
	}

	var setErr error

	gjson.ParseBytes(p).ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case FieldID, FieldCreatedAt, FieldUpdatedAt:
			return true
		}

		doc, setErr = sjson.SetRawBytes(doc, escapePath(key.String()), []byte(value.Raw))

		return setErr == nil
	})

	if setErr != nil {
		return nil, setErr
	}

	return doc, nil
}

func objectPayload(payload json.RawMessage) ([]byte, error) {
	if len(strings.TrimSpace(string(payload))) == 0 {
		return []byte("{}"), nil
	}

	if !gjson.ValidBytes(payload) || !gjson.ParseBytes(payload).IsObject() {
		return nil, fmt.Errorf("%w: payload must be a JSON object", ErrInvalidMutation)
	}

	out := make([]byte, len(payload))
	copy(out, payload)

	return out, nil
}

// escapePath makes a single object key safe to use as a gjson/sjson path.
func escapePath(key string) string {
	const special = `\.*?|#@!=<>%:`

	if !strings.ContainsAny(key, special) {
		return key
	}

	var b strings.Builder

	for _, r := range key {
		if strings.ContainsRune(special, r) {
			b.WriteByte('\\')
		}

		b.WriteRune(r)
	}

	return b.String()
}
