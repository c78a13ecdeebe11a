package traffic

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalize_ProducesValidHARDocument(t *testing.T) {
	c := New(10, nil)
	c.Publish(Event{
		Method:          "POST",
		URL:             "https://api.example.com/v1/chat",
		RequestHeaders:  map[string]string{"Content-Type": "application/json"},
		RequestBody:     []byte(`{"prompt":"hi"}`),
		StatusCode:      200,
		StatusText:      "OK",
		ResponseHeaders: map[string]string{"Content-Type": "application/json"},
		ResponseBody:    []byte(`{"text":"hello"}`),
		StartedAt:       time.Now(),
		Duration:        120 * time.Millisecond,
	})

	data, err := c.Finalize("0.1.0")
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	log := doc["log"].(map[string]interface{})
	assert.Equal(t, "1.2", log["version"])

	entries := log["entries"].([]interface{})
	require.Len(t, entries, 1)
}

func TestPublish_DropsOldestWhenAtCapacity(t *testing.T) {
	c := New(2, nil)
	c.Publish(Event{URL: "1"})
	c.Publish(Event{URL: "2"})
	c.Publish(Event{URL: "3"})

	data, err := c.Finalize("0.1.0")
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	entries := doc["log"].(map[string]interface{})["entries"].([]interface{})
	require.Len(t, entries, 2)

	first := entries[0].(map[string]interface{})["request"].(map[string]interface{})
	assert.Equal(t, "2", first["url"])
	assert.Equal(t, 1, c.Dropped())
}

func TestEncodeBody_Base64EncodesNonUTF8(t *testing.T) {
	binary := []byte{0xff, 0xfe, 0x00, 0x01}
	content, _ := encodeBody(binary, nil)
	assert.Equal(t, "base64", content.Encoding)
}

func TestEncodeBody_LeavesTextPlain(t *testing.T) {
	content, _ := encodeBody([]byte(`{"a":1}`), map[string]string{"Content-Type": "application/json"})
	assert.Empty(t, content.Encoding)
	assert.Equal(t, `{"a":1}`, content.Text)
}
