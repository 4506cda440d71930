package domcapture

import (
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Message types accepted by Apply.
const (
	MessageEvent     = "event"
	MessageMutations = "mutations"
)

// Message is one frame of the capture stream.
type Message struct {
	Type    string         `json:"type" mapstructure:"type"`
	Payload map[string]any `json:"payload" mapstructure:"payload"`
}

// MutationReport is the payload of a mutations message.
type MutationReport struct {
	FrameURL string `mapstructure:"frameUrl"`
	Count    int    `mapstructure:"count"`
}

func decode(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	return dec.Decode(input)
}

// DecodeEvent converts a generic payload into a RawEvent.
func DecodeEvent(payload map[string]any) (RawEvent, error) {
	var raw RawEvent
	if err := decode(payload, &raw); err != nil {
		return RawEvent{}, errors.Wrap(err, "invalid event payload")
	}
	return raw, nil
}

// Apply routes a stream message into the session.
func (s *Session) Apply(msg Message) error {
	switch msg.Type {
	case MessageEvent:
		raw, err := DecodeEvent(msg.Payload)
		if err != nil {
			return err
		}
		_, err = s.Record(raw)
		return err
	case MessageMutations:
		var report MutationReport
		if err := decode(msg.Payload, &report); err != nil {
			return errors.Wrap(err, "invalid mutations payload")
		}
		s.NotifyMutations(report.FrameURL, report.Count)
		return nil
	default:
		return errors.Errorf("unknown message type %q", msg.Type)
	}
}

// DecodeMessage converts a loosely typed message, as delivered by a page
// binding, into a Message.
func DecodeMessage(raw any) (Message, error) {
	var msg Message
	if err := decode(raw, &msg); err != nil {
		return Message{}, errors.Wrap(err, "invalid capture message")
	}
	if msg.Type == "" {
		return Message{}, errors.New("capture message has no type")
	}
	return msg, nil
}
