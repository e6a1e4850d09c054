package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHistories = `{
  "histories": [{
    "external_id": "h-1",
    "msgs": [
      {"id": 1, "text": "Hello there", "display_name": "Aria",
       "src": {"name": "Aria", "is_human": false, "user": {"username": "aria_bot", "first_name": "Aria", "name": "Aria", "account": null}},
       "tgt": {"name": "Bob", "is_human": true, "user": {"username": "bob42", "first_name": "Bob", "name": "Bob", "account": {"name": "Bobby", "avatar": "a.png"}}}},
      {"id": 2, "text": "hi", "display_name": "Bob",
       "src": {"name": "Bob", "is_human": true, "user": {"username": "bob42", "first_name": "Bob", "name": "Bob", "account": {"name": "Bobby"}}},
       "tgt": {"name": "Aria", "is_human": false}}
    ]
  }],
  "has_more": false
}`

func TestDecodeCharacterHistories(t *testing.T) {
	h, err := DecodeCharacterHistories([]byte(sampleHistories))
	require.NoError(t, err)

	assert.Equal(t, "Aria", h.EntityID())
	assert.Equal(t, 2, h.MessageCount())

	first := h.Histories[0].Msgs[0]
	assert.False(t, first.IsHuman())
	assert.Equal(t, "Bob", first.HumanParticipant().Name)
	assert.Equal(t, "Bobby", first.Tgt.User.Account.Name)
	assert.Nil(t, first.Src.User.Account)

	second := h.Histories[0].Msgs[1]
	assert.True(t, second.IsHuman())
	assert.Same(t, second.Src, second.HumanParticipant())
}

func TestHistories_PreservesUnknownFields(t *testing.T) {
	h, err := DecodeCharacterHistories([]byte(sampleHistories))
	require.NoError(t, err)

	out, err := json.Marshal(h)
	require.NoError(t, err)

	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &generic))
	assert.Equal(t, false, generic["has_more"])

	history := generic["histories"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "h-1", history["external_id"])

	msg := history["msgs"].([]interface{})[0].(map[string]interface{})
	assert.EqualValues(t, 1, msg["id"])
	account := msg["tgt"].(map[string]interface{})["user"].(map[string]interface{})["account"].(map[string]interface{})
	assert.Equal(t, "a.png", account["avatar"])
}

func TestDecodeCharacterHistories_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"histories": [`},
		{"wrong type", `{"histories": "nope"}`},
		{"no histories", `{}`},
		{"empty histories", `{"histories": []}`},
		{"first history empty", `{"histories": [{"msgs": []}]}`},
		{"null message", `{"histories": [{"msgs": [null]}]}`},
		{"missing src", `{"histories": [{"msgs": [{"text": "x"}]}]}`},
		{"bot message without tgt", `{"histories": [{"msgs": [{"text": "x", "src": {"name": "Aria", "is_human": false}}]}]}`},
		{"no entity name", `{"histories": [{"msgs": [{"text": "x", "src": {"name": "", "is_human": true}}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCharacterHistories([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedPayload), "got %v", err)
		})
	}
}

func TestDecodeCharacterInfo(t *testing.T) {
	info, err := DecodeCharacterInfo([]byte(`{"character": {"name": "Aria", "title": "a bot", "external_id": "x1"}, "status": "OK"}`))
	require.NoError(t, err)
	assert.Equal(t, "Aria", info.EntityID())

	out, err := json.Marshal(info)
	require.NoError(t, err)
	assert.JSONEq(t, `{"character": {"name": "Aria", "title": "a bot", "external_id": "x1"}, "status": "OK"}`, string(out))

	for _, body := range []string{`{}`, `{"character": null}`, `{"character": {"title": "t"}}`, `[1,2]`} {
		_, err := DecodeCharacterInfo([]byte(body))
		assert.ErrorIs(t, err, ErrMalformedPayload, body)
	}
}

func TestInterceptedResponse_Body(t *testing.T) {
	asText := InterceptedResponse{FinalURL: "u", Data: json.RawMessage(`"{\"character\":{\"name\":\"Aria\"}}"`)}
	body, err := asText.Body()
	require.NoError(t, err)
	assert.JSONEq(t, `{"character":{"name":"Aria"}}`, string(body))

	asObject := InterceptedResponse{FinalURL: "u", Data: json.RawMessage(` {"character":{"name":"Aria"}}`)}
	body, err = asObject.Body()
	require.NoError(t, err)
	assert.JSONEq(t, `{"character":{"name":"Aria"}}`, string(body))

	for _, data := range []string{``, `null`, `"not json"`, `"{"`} {
		_, err := InterceptedResponse{FinalURL: "u", Data: json.RawMessage(data)}.Body()
		assert.ErrorIs(t, err, ErrMalformedPayload, data)
	}
}

func TestCacheEntry(t *testing.T) {
	e := &CacheEntry{Entity: "Aria"}
	assert.False(t, e.IsComplete())
	_, err := e.Document()
	assert.ErrorIs(t, err, ErrIncomplete)

	e.Set(SlotInfo, json.RawMessage(`{"character":{"name":"Aria"}}`))
	assert.False(t, e.IsComplete())
	e.Set(SlotHistories, json.RawMessage(`{"histories":[]}`))
	assert.True(t, e.IsComplete())

	doc, err := e.Document()
	require.NoError(t, err)
	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"info":{"character":{"name":"Aria"}},"histories":{"histories":[]}}`, string(out))

	var nilEntry *CacheEntry
	assert.False(t, nilEntry.IsComplete())
}

func TestParseSlot(t *testing.T) {
	s, err := ParseSlot("info")
	require.NoError(t, err)
	assert.Equal(t, SlotInfo, s)
	_, err = ParseSlot("avatar")
	assert.Error(t, err)
}

func TestLocalTime_RoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 6, 0, time.Local)
	data, err := json.Marshal(LocalTime(ts))
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-09 14:05:06"`, string(data))

	var back LocalTime
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, ts.Equal(time.Time(back)))
}
