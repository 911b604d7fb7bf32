package speech

import (
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Engines accepted by New.
const (
	EngineConsole = "console"
	EngineOpenAI  = "openai"
)

// Speaker is implemented by every engine in this package.
type Speaker interface {
	Speak(text string) error
	Stop() error
	Volume() float64
	SetVolume(volume float64) error
}

// New builds the speaker for engine. Console output goes to out; the OpenAI
// engine plays through player.
func New(engine string, out io.Writer, cfg OpenAIConfig, player Player, logger *zap.SugaredLogger) (Speaker, error) {
	switch engine {
	case "", EngineConsole:
		return NewConsoleSpeaker(out, cfg.Volume), nil
	case EngineOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai speech requires an API key")
		}
		if player == nil {
			player = CommandPlayer{}
		}
		return NewOpenAISpeaker(cfg, player, logger), nil
	default:
		return nil, fmt.Errorf("unknown speech engine %q", engine)
	}
}
