package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONContent(t *testing.T) {
	t.Run("bare object", func(t *testing.T) {
		assert.Equal(t, `{"a":1}`, ExtractJSONContent(`{"a":1}`))
	})

	t.Run("json fence", func(t *testing.T) {
		raw := "Here is the room:\n```json\n{\"room_id\": \"r1\"}\n```\nEnjoy!"
		assert.Equal(t, `{"room_id": "r1"}`, ExtractJSONContent(raw))
	})

	t.Run("plain fence", func(t *testing.T) {
		raw := "```\n{\"a\": true}\n```"
		assert.Equal(t, `{"a": true}`, ExtractJSONContent(raw))
	})

	t.Run("prose around first balanced object", func(t *testing.T) {
		raw := `The dragon speaks. {"narrative": "It roars {loudly}", "score": 5} And then silence.`
		assert.Equal(t, `{"narrative": "It roars {loudly}", "score": 5}`, ExtractJSONContent(raw))
	})

	t.Run("braces inside strings are ignored", func(t *testing.T) {
		raw := `{"text": "use } carefully"}`
		assert.Equal(t, raw, ExtractJSONContent(raw))
	})

	t.Run("no json at all", func(t *testing.T) {
		assert.Equal(t, "", ExtractJSONContent("You see nothing special."))
	})

	t.Run("unbalanced object is rejected", func(t *testing.T) {
		assert.Equal(t, "", ExtractJSONContent(`{"a": 1`))
	})
}

func TestDecodeStrict(t *testing.T) {
	type room struct {
		RoomID string `json:"room_id"`
	}

	var r room
	require.NoError(t, DecodeStrict([]byte(`{"room_id":"r1"}`), &r))
	assert.Equal(t, "r1", r.RoomID)

	assert.Error(t, DecodeStrict([]byte(`{"room_id":"r1","bogus":1}`), &room{}))
}

func TestDecodeFirstMatch(t *testing.T) {
	type v2 struct {
		Narrative string `json:"narrative"`
	}
	type v1 struct {
		Message string `json:"message"`
	}

	versions := []SchemaVersion{
		{Name: "v2", Decode: func(data []byte) (interface{}, error) {
			var out v2
			if err := DecodeStrict(data, &out); err != nil {
				return nil, err
			}
			return &out, nil
		}},
		{Name: "v1", Decode: func(data []byte) (interface{}, error) {
			var out v1
			if err := DecodeStrict(data, &out); err != nil {
				return nil, err
			}
			return &out, nil
		}},
	}

	t.Run("first matching version wins", func(t *testing.T) {
		name, decoded, err := DecodeFirstMatch([]byte(`{"narrative":"hello"}`), versions)
		require.NoError(t, err)
		assert.Equal(t, "v2", name)
		assert.Equal(t, "hello", decoded.(*v2).Narrative)
	})

	t.Run("older version still decodes", func(t *testing.T) {
		name, decoded, err := DecodeFirstMatch([]byte(`{"message":"hi"}`), versions)
		require.NoError(t, err)
		assert.Equal(t, "v1", name)
		assert.Equal(t, "hi", decoded.(*v1).Message)
	})

	t.Run("unknown shape returns typed error", func(t *testing.T) {
		_, _, err := DecodeFirstMatch([]byte(`{"something":"else"}`), versions)
		assert.ErrorIs(t, err, ErrUnrecognizedFormat)
	})
}

func TestRequireFields(t *testing.T) {
	obj := map[string]interface{}{
		"room_id":     "r1",
		"description": "A room.",
		"exits":       []interface{}{},
		"score":       float64(3),
	}

	t.Run("all present", func(t *testing.T) {
		err := RequireFields(obj, map[string]string{
			"room_id":     "string",
			"description": "string",
			"exits":       "array",
			"score":       "number",
		})
		assert.NoError(t, err)
	})

	t.Run("missing field names the field", func(t *testing.T) {
		err := RequireFields(obj, map[string]string{"npcs": "array"})
		require.Error(t, err)
		var schemaErr *SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, "npcs", schemaErr.Field)
	})

	t.Run("wrong type names the field", func(t *testing.T) {
		err := RequireFields(obj, map[string]string{"room_id": "array"})
		var schemaErr *SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, "room_id", schemaErr.Field)
		assert.Contains(t, schemaErr.Reason, "array")
	})
}
