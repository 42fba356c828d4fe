package deepgram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/sorenkast/voxen/pkg/adapters/stt"
	"github.com/sorenkast/voxen/pkg/errorsx"
	"github.com/sorenkast/voxen/pkg/logging"
	"github.com/sorenkast/voxen/pkg/utterance"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

const writeChunkBytes = 8192

type Config struct {
	APIKey   string
	Model    string
	Language string
	StreamID string
}

// Transcriber converts finished utterances to text over Deepgram's
// live websocket API. Each Transcribe call opens its own connection,
// streams the buffered PCM, and waits for the final results.
type Transcriber struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Transcriber {
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	return &Transcriber{
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "deepgram_stt"),
	}
}

func (t *Transcriber) Name() string { return "deepgram" }

func (t *Transcriber) Close() error { return nil }

func (t *Transcriber) Transcribe(ctx context.Context, u *utterance.Utterance) (string, error) {
	if t.cfg.APIKey == "" {
		return "", errorsx.Wrap(errors.New("deepgram api key not configured"), errorsx.ReasonSTTConnect)
	}
	pcm := u.PCM()
	if len(pcm) == 0 {
		return "", stt.ErrNoSpeech
	}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pipeReader, pipeWriter := io.Pipe()
	col := &collector{
		logger:   t.logger,
		streamID: t.cfg.StreamID,
		done:     make(chan struct{}),
	}

	clientOptions := &interfaces.ClientOptions{}
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:       t.cfg.Model,
		Language:    t.cfg.Language,
		Encoding:    "linear16",
		SampleRate:  u.SampleRate(),
		SmartFormat: true,
	}

	dgClient, err := client.NewWSUsingCallback(cctx, t.cfg.APIKey, clientOptions, transcriptOptions, col)
	if err != nil {
		t.logger.Error("deepgram client create failed",
			slog.String("error", err.Error()),
			slog.String("stream_id", t.cfg.StreamID))
		return "", errorsx.Wrap(err, errorsx.ReasonSTTConnect)
	}
	defer dgClient.Stop()

	if connected := dgClient.Connect(); !connected {
		return "", errorsx.Wrap(fmt.Errorf("deepgram connection failed"), errorsx.ReasonSTTConnect)
	}
	t.logger.Debug("deepgram connected",
		slog.String("stream_id", t.cfg.StreamID),
		slog.String("model", t.cfg.Model),
		slog.Duration("utterance", u.Duration()))

	go func() {
		if err := dgClient.Stream(pipeReader); err != nil && cctx.Err() == nil {
			t.logger.Error("deepgram stream error",
				slog.String("error", err.Error()),
				slog.String("stream_id", t.cfg.StreamID))
		}
	}()

	writeErr := make(chan error, 1)
	go func() {
		defer pipeWriter.Close()
		for off := 0; off < len(pcm); off += writeChunkBytes {
			end := off + writeChunkBytes
			if end > len(pcm) {
				end = len(pcm)
			}
			if _, err := pipeWriter.Write(pcm[off:end]); err != nil {
				writeErr <- errorsx.Wrap(err, errorsx.ReasonSTTSend)
				return
			}
		}
		writeErr <- nil
	}()

	select {
	case <-col.done:
	case <-ctx.Done():
		return "", errorsx.Wrap(ctx.Err(), errorsx.ReasonSTTTimeout)
	}
	if err := <-writeErr; err != nil {
		return "", err
	}
	if err := col.err(); err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonSTTEngine)
	}

	text := col.text()
	if text == "" {
		return "", stt.ErrNoSpeech
	}
	return text, nil
}

// collector accumulates final transcript segments until the server
// closes the stream.
type collector struct {
	logger   *slog.Logger
	streamID string

	mu       sync.Mutex
	parts    []string
	errValue error

	done     chan struct{}
	doneOnce sync.Once
}

func (c *collector) text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.TrimSpace(strings.Join(c.parts, " "))
}

func (c *collector) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errValue
}

func (c *collector) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *collector) Open(or *msginterfaces.OpenResponse) error {
	c.logger.Debug("deepgram connection opened", slog.String("stream_id", c.streamID))
	return nil
}

func (c *collector) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	transcript := mr.Channel.Alternatives[0].Transcript
	if transcript == "" {
		return nil
	}
	if mr.IsFinal || mr.SpeechFinal {
		c.mu.Lock()
		c.parts = append(c.parts, transcript)
		c.mu.Unlock()
		c.logger.Debug("transcript segment",
			slog.String("stream_id", c.streamID),
			slog.String("transcript", transcript))
	}
	return nil
}

func (c *collector) Metadata(md *msginterfaces.MetadataResponse) error {
	c.logger.Debug("deepgram metadata",
		slog.String("stream_id", c.streamID),
		slog.String("request_id", md.RequestID))
	return nil
}

func (c *collector) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	return nil
}

func (c *collector) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	return nil
}

func (c *collector) Close(cr *msginterfaces.CloseResponse) error {
	c.logger.Debug("deepgram connection closed", slog.String("stream_id", c.streamID))
	c.finish()
	return nil
}

func (c *collector) Error(er *msginterfaces.ErrorResponse) error {
	c.logger.Error("deepgram error",
		slog.String("stream_id", c.streamID),
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	c.mu.Lock()
	c.errValue = fmt.Errorf("deepgram: %s: %s", er.ErrCode, er.ErrMsg)
	c.mu.Unlock()
	c.finish()
	return nil
}

func (c *collector) UnhandledEvent(byData []byte) error {
	c.logger.Debug("deepgram unhandled event",
		slog.String("stream_id", c.streamID),
		slog.String("data", string(byData)))
	return nil
}

var _ stt.Transcriber = (*Transcriber)(nil)
