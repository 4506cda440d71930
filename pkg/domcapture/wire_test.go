package domcapture

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_ApplyJSONMessages(t *testing.T) {
	s := newTestSession(t)

	frames := []string{
		`{"type":"mutations","payload":{"frameUrl":"https://example.com/","count":6}}`,
		`{"type":"event","payload":{"kind":"click","ts":1700000000250,"frameUrl":"https://example.com/","button":0,
		  "target":{"tag":"A","id":"home","dataTest":"nav-home","classes":["nav","link"],"text":"Home"},
		  "ancestry":[{"tag":"a","id":"home"},{"tag":"nav"}],"css":"nav > a#home"}}`,
		`{"type":"event","payload":{"kind":"change","ts":"1700000000900","frameUrl":"https://example.com/",
		  "target":{"tag":"select","name":"size"},"value":"M"}}`,
	}
	for _, f := range frames {
		var msg Message
		require.NoError(t, json.Unmarshal([]byte(f), &msg))
		require.NoError(t, s.Apply(msg))
	}

	tl := s.Stop()
	require.Len(t, tl.Events, 2)

	first := tl.Events[0]
	assert.Equal(t, KindClick, first.Kind)
	assert.Equal(t, int64(250), first.OffsetMs)
	assert.Equal(t, 6, first.MutationCount)
	assert.Equal(t, "nav-home", first.Target.TestID)
	assert.Equal(t, []string{"nav", "link"}, first.Target.Classes)
	assert.Equal(t, "nav > a#home", first.CSSPath)
	require.NotNil(t, first.Button)

	second := tl.Events[1]
	assert.Equal(t, int64(900), second.OffsetMs)
	assert.Equal(t, "M", second.ValuePreview)
}

func TestSession_ApplyRejectsUnknown(t *testing.T) {
	s := newTestSession(t)
	assert.Error(t, s.Apply(Message{Type: "scroll"}))
	assert.Error(t, s.Apply(Message{Type: MessageEvent, Payload: map[string]any{"kind": "hover"}}))
	assert.Error(t, s.Apply(Message{Type: MessageEvent, Payload: map[string]any{"ts": []int{1}}}))
}

func TestDecodeMessage(t *testing.T) {
	msg, err := DecodeMessage(map[string]any{
		"type":    "mutations",
		"payload": map[string]any{"frameUrl": "https://example.com/", "count": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, MessageMutations, msg.Type)
	assert.Equal(t, 3, msg.Payload["count"])

	_, err = DecodeMessage(map[string]any{"payload": map[string]any{}})
	assert.Error(t, err)

	_, err = DecodeMessage("not a message")
	assert.Error(t, err)
}
