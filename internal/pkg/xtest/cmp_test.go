package xtest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type row struct {
	ID      string
	Note    *string
	Payload json.RawMessage
	At      time.Time
}

func TestEqual(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	empty := ""

	a := row{ID: "1", Payload: json.RawMessage(`{"a":1,"b":[1,2]}`), At: at}
	b := row{ID: "1", Note: &empty, Payload: json.RawMessage(`{ "b": [1, 2], "a": 1 }`), At: at.In(time.FixedZone("x", 3600))}

	assert.True(t, Equal(a, b))
	assert.Empty(t, Diff(a, b))

	b.Payload = json.RawMessage(`{"a":2,"b":[1,2]}`)
	assert.False(t, Equal(a, b))
	assert.NotEmpty(t, Diff(a, b))
}

func TestEqual_RawMessageEdges(t *testing.T) {
	assert.True(t, Equal(json.RawMessage(nil), json.RawMessage{}))
	assert.False(t, Equal(json.RawMessage(`{}`), json.RawMessage(nil)))
	assert.False(t, Equal(json.RawMessage(`{`), json.RawMessage(`{`)))
}
