package speech

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Synthesizer is the part of *openai.Client used for text-to-speech.
type Synthesizer interface {
	CreateSpeech(ctx context.Context, request openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// Player plays synthesized audio. Play must return when ctx is cancelled.
type Player interface {
	Play(ctx context.Context, audio io.Reader, volume float64) error
}

// OpenAIConfig configures the OpenAI speaker.
type OpenAIConfig struct {
	APIKey string
	Model  string
	Voice  string
	Speed  float64
	Volume float64
}

// OpenAISpeaker synthesizes announcements with the OpenAI speech API. Speak
// returns immediately; a newer utterance or Stop cancels the one in flight.
type OpenAISpeaker struct {
	client Synthesizer
	player Player
	logger *zap.SugaredLogger
	model  openai.SpeechModel
	voice  openai.SpeechVoice
	speed  float64

	mu     sync.Mutex
	volume float64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOpenAISpeaker creates a speaker backed by the OpenAI API.
func NewOpenAISpeaker(cfg OpenAIConfig, player Player, logger *zap.SugaredLogger) *OpenAISpeaker {
	return NewOpenAISpeakerWithClient(openai.NewClient(cfg.APIKey), cfg, player, logger)
}

// NewOpenAISpeakerWithClient creates a speaker with a custom synthesizer.
func NewOpenAISpeakerWithClient(client Synthesizer, cfg OpenAIConfig, player Player, logger *zap.SugaredLogger) *OpenAISpeaker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	model := openai.SpeechModel(cfg.Model)
	if model == "" {
		model = openai.TTSModel1
	}
	voice := openai.SpeechVoice(cfg.Voice)
	if voice == "" {
		voice = openai.VoiceAlloy
	}
	speed := cfg.Speed
	if speed <= 0 {
		speed = 1.0
	}
	return &OpenAISpeaker{
		client: client,
		player: player,
		logger: logger,
		model:  model,
		voice:  voice,
		speed:  speed,
		volume: clampVolume(cfg.Volume),
	}
}

func (s *OpenAISpeaker) Speak(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("empty utterance")
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	volume := s.volume
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.say(ctx, text, volume)
	}()
	return nil
}

func (s *OpenAISpeaker) say(ctx context.Context, text string, volume float64) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          s.speed,
	})
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warnw("Speech synthesis failed", "error", err)
		}
		return
	}
	defer resp.Close()

	if err := s.player.Play(ctx, resp, volume); err != nil && ctx.Err() == nil {
		s.logger.Warnw("Audio playback failed", "error", err)
	}
}

// Stop cancels any utterance being synthesized or played.
func (s *OpenAISpeaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}

// Wait blocks until every started utterance has finished or been cancelled.
func (s *OpenAISpeaker) Wait() {
	s.wg.Wait()
}

func (s *OpenAISpeaker) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *OpenAISpeaker) SetVolume(volume float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = clampVolume(volume)
	return nil
}

// CommandPlayer pipes audio into an external player such as
// "ffplay -nodisp -autoexit -volume {volume} -". The {volume} placeholder is
// replaced with the volume scaled to 0-100.
type CommandPlayer struct {
	Command []string
}

func (p CommandPlayer) Play(ctx context.Context, audio io.Reader, volume float64) error {
	if len(p.Command) == 0 {
		_, err := io.Copy(io.Discard, audio)
		return err
	}

	args := make([]string, 0, len(p.Command)-1)
	for _, arg := range p.Command[1:] {
		args = append(args, strings.ReplaceAll(arg, "{volume}", strconv.Itoa(int(volume*100+0.5))))
	}

	cmd := exec.CommandContext(ctx, p.Command[0], args...)
	cmd.Stdin = audio
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", p.Command[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
