package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/antoinenguyen27/siren/pkg/logger"
)

// NotHeard is returned in place of a transcript when audio is unusable.
const NotHeard = "I didn't catch that."

const defaultAudioMimeType = "audio/webm"

// Transcribe converts base64 audio, optionally a data URL, into text. Missing
// or undecodable audio and API failures yield NotHeard rather than an error.
func (c *Client) Transcribe(ctx context.Context, audioBase64, mimeType string) string {
	audio, err := DecodeAudio(audioBase64)
	if err != nil || len(audio) == 0 {
		return NotHeard
	}
	if mimeType == "" {
		mimeType = defaultAudioMimeType
	}

	var resp openai.AudioResponse
	err = c.withRetry(ctx, "transcription", func() error {
		var err error
		resp, err = c.api.CreateTranscription(ctx, openai.AudioRequest{
			Model:    c.config.TranscribeModel,
			FilePath: "audio." + extensionForMimeType(mimeType),
			Reader:   bytes.NewReader(audio),
		})
		return err
	})
	if err != nil {
		logger.G(ctx).WithError(err).Error("transcription failed")
		return NotHeard
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return NotHeard
	}
	return text
}

// DecodeAudio strips an optional data URL prefix and decodes the payload.
func DecodeAudio(input string) ([]byte, error) {
	const marker = "base64,"
	if i := strings.Index(input, marker); i >= 0 {
		input = input[i+len(marker):]
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, errors.New("no audio")
	}
	data, err := base64.StdEncoding.DecodeString(input)
	if err != nil {
		return nil, errors.Wrap(err, "invalid base64 audio")
	}
	return data, nil
}

func extensionForMimeType(mimeType string) string {
	v := strings.ToLower(mimeType)
	switch {
	case strings.Contains(v, "mp4"), strings.Contains(v, "aac"):
		return "m4a"
	case strings.Contains(v, "mpeg"), strings.Contains(v, "mp3"):
		return "mp3"
	case strings.Contains(v, "wav"):
		return "wav"
	case strings.Contains(v, "ogg"):
		return "ogg"
	default:
		return "webm"
	}
}
