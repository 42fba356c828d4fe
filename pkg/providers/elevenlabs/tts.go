package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sorenkast/voxen/pkg/adapters/tts"
	"github.com/sorenkast/voxen/pkg/errorsx"
	"github.com/sorenkast/voxen/pkg/frames"
	"github.com/sorenkast/voxen/pkg/resilience"
)

type Config struct {
	APIKey       string
	VoiceID      string
	ModelID      string
	OutputFormat string
	SampleRate   int
	StreamID     string
}

// ElevenLabsTTS streams text to the ElevenLabs websocket API and emits
// PCM frames as they arrive. One Start/Close cycle per spoken reply.
type ElevenLabsTTS struct {
	cfg       Config
	conn      *websocket.Conn
	out       chan frames.Frame
	writeCh   chan ttsMessage
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	outOnce   sync.Once
	dialRetry resilience.RetryPolicy
}

type ttsMessage struct {
	text string
	eos  bool
}

func New(cfg Config) *ElevenLabsTTS {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "pcm_16000"
	}
	return &ElevenLabsTTS{
		cfg:       cfg,
		out:       make(chan frames.Frame, 256),
		writeCh:   make(chan ttsMessage, 256),
		dialRetry: resilience.NewRetryPolicy(2, 200*time.Millisecond),
	}
}

func (s *ElevenLabsTTS) Name() string { return "elevenlabs_tts" }

func (s *ElevenLabsTTS) Start(ctx context.Context) error {
	if s.cfg.APIKey == "" || s.cfg.VoiceID == "" {
		return errorsx.Wrap(errors.New("missing elevenlabs config"), errorsx.ReasonTTSConnect)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	// Start begins a fresh synthesis session; the previous Close tore
	// down the output stream.
	s.mu.Lock()
	s.out = make(chan frames.Frame, 256)
	s.writeCh = make(chan ttsMessage, 256)
	s.outOnce = sync.Once{}
	s.mu.Unlock()

	slog.Debug("connecting to ElevenLabs",
		slog.String("stream_id", s.cfg.StreamID),
		slog.String("output_format", s.cfg.OutputFormat))

	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment}
	var conn *websocket.Conn
	var rateLimited error
	dialErr := s.dialRetry.Do(func() error {
		c, resp, err := dialer.Dial(s.buildURL(), http.Header{
			"xi-api-key": []string{s.cfg.APIKey},
		})
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
				// Not worth retrying on a short backoff.
				rateLimited = resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}
				return nil
			}
			return err
		}
		conn = c
		return nil
	})
	if rateLimited != nil {
		slog.Error("ElevenLabs rate limit exceeded",
			slog.String("stream_id", s.cfg.StreamID))
		return rateLimited
	}
	if dialErr != nil {
		slog.Error("failed to connect to ElevenLabs",
			slog.String("stream_id", s.cfg.StreamID),
			slog.String("error", dialErr.Error()))
		return errorsx.Wrap(dialErr, errorsx.ReasonTTSConnect)
	}
	s.conn = conn

	_ = s.send(map[string]any{
		"text": " ",
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.8,
		},
		"generation_config": map[string]any{
			"chunk_length_schedule": []int{120, 160, 250, 290},
		},
	})
	go s.readLoop()
	go s.writeLoop()
	return nil
}

func (s *ElevenLabsTTS) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	var err error
	if s.conn != nil {
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = s.conn.Close()
		s.conn = nil
	}
	s.outOnce.Do(func() { close(s.out) })
	return err
}

func (s *ElevenLabsTTS) SendText(_ context.Context, text string) error {
	if s.conn == nil {
		return errors.New("not connected")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if !strings.HasSuffix(text, " ") {
		text += " "
	}
	select {
	case s.writeCh <- ttsMessage{text: text}:
	default:
		return errorsx.Wrap(errors.New("write queue full"), errorsx.ReasonTTSSend)
	}
	return nil
}

// Flush closes the input side. The server finishes synthesizing and
// reports isFinal, which surfaces as a synthesis-complete control frame.
func (s *ElevenLabsTTS) Flush(context.Context) error {
	if s.conn == nil {
		return errors.New("not connected")
	}
	select {
	case s.writeCh <- ttsMessage{eos: true}:
	default:
		return errorsx.Wrap(errors.New("write queue full"), errorsx.ReasonTTSSend)
	}
	return nil
}

func (s *ElevenLabsTTS) Results() <-chan frames.Frame { return s.out }

func (s *ElevenLabsTTS) buildURL() string {
	base := "wss://api.elevenlabs.io/v1/text-to-speech/" + s.cfg.VoiceID + "/stream-input"
	q := url.Values{}
	if s.cfg.ModelID != "" {
		q.Set("model_id", s.cfg.ModelID)
	}
	q.Set("output_format", s.cfg.OutputFormat)
	q.Set("optimize_streaming_latency", "4")
	return base + "?" + q.Encode()
}

func (s *ElevenLabsTTS) writeLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.writeCh:
			if msg.eos {
				// Empty text ends the input stream.
				_ = s.send(map[string]any{"text": ""})
				continue
			}
			_ = s.send(map[string]any{"text": msg.text, "try_trigger_generation": true})
		case <-ticker.C:
			// Keep-alive: the server drops idle connections after 20s.
			_ = s.send(map[string]any{"text": " "})
		}
	}
}

func (s *ElevenLabsTTS) readLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			_, data, err := s.conn.ReadMessage()
			if err != nil {
				slog.Debug("tts read loop closed",
					slog.String("stream_id", s.cfg.StreamID),
					slog.String("error", err.Error()))
				return
			}
			s.handleMessage(data)
		}
	}
}

func (s *ElevenLabsTTS) handleMessage(data []byte) {
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("tts websocket raw data", "data", string(data))
		return
	}
	if final, _ := msg["isFinal"].(bool); final {
		s.emit(frames.NewControlFrame(s.cfg.StreamID, time.Now(), frames.ControlSynthesisComplete, nil))
		return
	}
	audio, ok := msg["audio"].(string)
	if !ok || audio == "" {
		if _, isAlign := msg["alignment"]; !isAlign {
			slog.Debug("tts websocket message", "payload", msg)
		}
		return
	}
	raw, err := base64.StdEncoding.DecodeString(audio)
	if err != nil {
		slog.Error("tts audio decode error", "error", err)
		return
	}
	meta := map[string]string{
		frames.MetaStreamID: s.cfg.StreamID,
		frames.MetaSource:   "elevenlabs",
	}
	// Pooled buffer: the player releases the frame after playback.
	s.emit(frames.NewAudioFrameFromPool(s.cfg.StreamID, time.Now(), raw, s.cfg.SampleRate, 1, meta))
}

func (s *ElevenLabsTTS) emit(f frames.Frame) {
	select {
	case s.out <- f:
	default:
		slog.Warn("tts output buffer full",
			slog.String("stream_id", s.cfg.StreamID))
	}
}

func (s *ElevenLabsTTS) send(payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errors.New("not connected")
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

var _ tts.StreamingTTS = (*ElevenLabsTTS)(nil)
