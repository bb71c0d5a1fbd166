package docstore

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueEncoding(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 500, time.UTC)

	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{"null", Null(), `{"nullValue":null}`},
		{"string", String("hi"), `{"stringValue":"hi"}`},
		{"integer is a decimal string", Int(42), `{"integerValue":"42"}`},
		{"timestamp", Timestamp(ts), `{"timestampValue":"2024-03-01T12:30:00.0000005Z"}`},
		{"empty array", Array(), `{"arrayValue":{"values":[]}}`},
		{"strings", Strings([]string{"a", "b"}), `{"arrayValue":{"values":[{"stringValue":"a"},{"stringValue":"b"}]}}`},
		{"map", Map(Fields{"k": Bool(true)}), `{"mapValue":{"fields":{"k":{"booleanValue":true}}}}`},
		{"infinity", Double(math.Inf(1)), `{"doubleValue":"Infinity"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.value)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestValueDecoding(t *testing.T) {
	t.Run("comment map inside an array", func(t *testing.T) {
		raw := `{"arrayValue":{"values":[{"mapValue":{"fields":{
			"content":{"stringValue":"hello"},
			"createdAt":{"timestampValue":"2024-01-02T03:04:05.123Z"}}}}]}}`
		var v Value
		require.NoError(t, json.Unmarshal([]byte(raw), &v))

		require.Len(t, v.ArrayValue(), 1)
		comment := v.ArrayValue()[0].MapValue()
		assert.Equal(t, "hello", comment.String("content"))
		created, ok := comment.Time("createdAt")
		require.True(t, ok)
		assert.Equal(t, 123*time.Millisecond, time.Duration(created.Nanosecond()))
	})

	t.Run("array without values is empty", func(t *testing.T) {
		var v Value
		require.NoError(t, json.Unmarshal([]byte(`{"arrayValue":{}}`), &v))
		assert.Equal(t, KindArray, v.Kind())
		assert.Empty(t, v.StringsValue())
		assert.NotNil(t, v.StringsValue())
	})

	t.Run("integer accepts string and number", func(t *testing.T) {
		var a, b Value
		require.NoError(t, json.Unmarshal([]byte(`{"integerValue":"9007199254740993"}`), &a))
		require.NoError(t, json.Unmarshal([]byte(`{"integerValue":7}`), &b))
		assert.Equal(t, int64(9007199254740993), a.IntValue())
		assert.Equal(t, int64(7), b.IntValue())
	})

	t.Run("unknown tag fails", func(t *testing.T) {
		var v Value
		assert.Error(t, json.Unmarshal([]byte(`{"fancyValue":1}`), &v))
	})

	t.Run("more than one tag fails", func(t *testing.T) {
		var v Value
		assert.Error(t, json.Unmarshal([]byte(`{"stringValue":"a","integerValue":"1"}`), &v))
	})

	t.Run("wrong payload type fails", func(t *testing.T) {
		var v Value
		assert.Error(t, json.Unmarshal([]byte(`{"timestampValue":"yesterday"}`), &v))
	})
}

func TestFieldsDefaults(t *testing.T) {
	f := Fields{"title": String("t"), "count": Int(3)}

	assert.Equal(t, "t", f.String("title"))
	assert.Equal(t, "", f.String("count"), "wrong kind reads as zero")
	assert.Equal(t, "Anonymous", f.StringOr("authorName", "Anonymous"))
	assert.Equal(t, []string{}, f.Strings("likes"))
	_, ok := f.Time("createdAt")
	assert.False(t, ok)
	assert.Nil(t, f.Map("missing"))
}

func TestValueEqual(t *testing.T) {
	a := Map(Fields{"content": String("x"), "at": Timestamp(time.Unix(10, 0))})
	b := Map(Fields{"content": String("x"), "at": Timestamp(time.Unix(10, 0).In(time.FixedZone("X", 3600)))})
	c := Map(Fields{"content": String("y"), "at": Timestamp(time.Unix(10, 0))})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, String("1").Equal(Int(1)))
	assert.True(t, Strings([]string{"a"}).Equal(Array(String("a"))))
}

func TestDocumentID(t *testing.T) {
	doc := Document{Name: "projects/p/databases/(default)/documents/posts/abc123"}
	assert.Equal(t, "abc123", doc.ID())
	assert.Equal(t, "plain", DocumentID("plain"))
}
