package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/lifelongcx/voiceagent/domain/repositories"
)

var testUpgrader = websocket.Upgrader{}

// newFakeElevenLabs starts a stream-input endpoint that validates the
// outbound half of the protocol and then plays the scripted frames.
func newFakeElevenLabs(t *testing.T, frames []elevenLabsAudioFrame) string {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/text-to-speech/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/stream-input") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("model_id") == "" {
			http.Error(w, "missing model_id", http.StatusBadRequest)
			return
		}

		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		var init elevenLabsInitFrame
		if err := conn.ReadJSON(&init); err != nil {
			t.Errorf("failed to read init frame: %v", err)
			return
		}
		if init.Text != " " {
			t.Errorf("init frame text = %q, want a single space", init.Text)
		}
		if init.XiAPIKey == "" {
			t.Error("init frame missing api key")
		}
		if len(init.GenerationConfig.ChunkLengthSchedule) == 0 {
			t.Error("init frame missing chunk length schedule")
		}

		var text elevenLabsTextFrame
		if err := conn.ReadJSON(&text); err != nil {
			t.Errorf("failed to read text frame: %v", err)
			return
		}
		if text.Text == "" || !text.Flush {
			t.Errorf("expected a flushed text frame, got %+v", text)
		}

		var terminator elevenLabsTextFrame
		if err := conn.ReadJSON(&terminator); err != nil {
			t.Errorf("failed to read terminator frame: %v", err)
			return
		}
		if terminator.Text != "" {
			t.Errorf("terminator frame text = %q, want empty", terminator.Text)
		}

		for _, frame := range frames {
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func newTestRelay(t *testing.T, wsBaseURL string) *ElevenLabsRelay {
	t.Helper()
	relay, err := NewElevenLabsRelay(ElevenLabsConfig{
		APIKey:      "test-key",
		WSBaseURL:   wsBaseURL,
		ReadTimeout: time.Second,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewElevenLabsRelay failed: %v", err)
	}
	return relay
}

func encodeChunk(data string) string {
	return base64.StdEncoding.EncodeToString([]byte(data))
}

func TestSynthesizeStreamRelaysChunksInOrder(t *testing.T) {
	wsBaseURL := newFakeElevenLabs(t, []elevenLabsAudioFrame{
		{Audio: encodeChunk("chunk-one")},
		{Audio: encodeChunk("chunk-two")},
		{Audio: encodeChunk("chunk-three"), IsFinal: true},
	})
	relay := newTestRelay(t, wsBaseURL)

	chunks, err := relay.SynthesizeStream(context.Background(), "Hello there!")
	if err != nil {
		t.Fatalf("SynthesizeStream failed: %v", err)
	}

	var got []string
	for chunk := range chunks {
		got = append(got, string(chunk))
	}

	want := []string{"chunk-one", "chunk-two", "chunk-three"}
	if len(got) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSynthesizeStreamEndsOnServiceError(t *testing.T) {
	wsBaseURL := newFakeElevenLabs(t, []elevenLabsAudioFrame{
		{Audio: encodeChunk("chunk-one")},
		{Error: "quota exceeded"},
		{Audio: encodeChunk("never-delivered")},
	})
	relay := newTestRelay(t, wsBaseURL)

	chunks, err := relay.SynthesizeStream(context.Background(), "Hello there!")
	if err != nil {
		t.Fatalf("SynthesizeStream failed: %v", err)
	}

	var got []string
	for chunk := range chunks {
		got = append(got, string(chunk))
	}

	// The channel closes at the error frame instead of blocking forever.
	if len(got) != 1 || got[0] != "chunk-one" {
		t.Errorf("expected only the first chunk, got %v", got)
	}
}

func TestSynthesizeStreamClosesWhenServiceHangsUp(t *testing.T) {
	wsBaseURL := newFakeElevenLabs(t, []elevenLabsAudioFrame{
		{Audio: encodeChunk("chunk-one")},
	})
	relay := newTestRelay(t, wsBaseURL)

	chunks, err := relay.SynthesizeStream(context.Background(), "Hello there!")
	if err != nil {
		t.Fatalf("SynthesizeStream failed: %v", err)
	}

	var got int
	for range chunks {
		got++
	}
	if got != 1 {
		t.Errorf("expected 1 chunk before the hang-up, got %d", got)
	}
}

func TestSynthesizeStreamRejectsEmptyText(t *testing.T) {
	relay := newTestRelay(t, "ws://localhost:0")

	_, err := relay.SynthesizeStream(context.Background(), "   ")
	var synthesisErr *repositories.SynthesisError
	if !errors.As(err, &synthesisErr) {
		t.Fatalf("expected a *SynthesisError, got %v", err)
	}
}

func TestSynthesizeStreamDialFailure(t *testing.T) {
	relay := newTestRelay(t, "ws://127.0.0.1:1")

	_, err := relay.SynthesizeStream(context.Background(), "Hello there!")
	var synthesisErr *repositories.SynthesisError
	if !errors.As(err, &synthesisErr) {
		t.Fatalf("expected a *SynthesisError, got %v", err)
	}
}

func TestValidateElevenLabsConfig(t *testing.T) {
	if err := ValidateElevenLabsConfig(ElevenLabsConfig{}); err == nil {
		t.Error("expected error for missing API key")
	}
	if err := ValidateElevenLabsConfig(ElevenLabsConfig{APIKey: "k", Stability: 1.5}); err == nil {
		t.Error("expected error for out-of-range stability")
	}
	if err := ValidateElevenLabsConfig(ElevenLabsConfig{APIKey: "k", Clarity: -0.1}); err == nil {
		t.Error("expected error for out-of-range clarity")
	}
	if err := ValidateElevenLabsConfig(ElevenLabsConfig{APIKey: "k"}); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestNewElevenLabsConfigFromEnv(t *testing.T) {
	t.Setenv("ELEVEN_LABS_API_KEY", "env-key")
	t.Setenv("ELEVEN_LABS_VOICE_ID", "voice-123")
	t.Setenv("ELEVEN_LABS_STABILITY", "0.5")
	t.Setenv("ELEVEN_LABS_CLARITY", "0.9")

	config := NewElevenLabsConfigFromEnv()
	if config.APIKey != "env-key" {
		t.Errorf("unexpected API key: %q", config.APIKey)
	}
	if config.VoiceID != "voice-123" {
		t.Errorf("unexpected voice ID: %q", config.VoiceID)
	}
	if config.Stability != 0.5 {
		t.Errorf("unexpected stability: %f", config.Stability)
	}
	if config.Clarity != 0.9 {
		t.Errorf("unexpected clarity: %f", config.Clarity)
	}
}
