package meeting

import (
	"sync"

	"agentbridge/config"
)

// SpeechConfig is the text-to-speech setup for a meeting's agent.
type SpeechConfig struct {
	VoiceName string
}

// SpeechConfigurer receives voice changes. Calls are fire-and-forget.
type SpeechConfigurer interface {
	SetSpeechConfig(meetingID string, cfg SpeechConfig)
}

// SpeechStore keeps the latest speech config per meeting in memory.
type SpeechStore struct {
	mu           sync.RWMutex
	configs      map[string]SpeechConfig
	defaultVoice string
}

// NewSpeechStore returns a store that reports defaultVoice for meetings
// that never had a voice set.
func NewSpeechStore(defaultVoice string) *SpeechStore {
	return &SpeechStore{
		configs:      make(map[string]SpeechConfig),
		defaultVoice: defaultVoice,
	}
}

func (s *SpeechStore) SetSpeechConfig(meetingID string, cfg SpeechConfig) {
	s.mu.Lock()
	s.configs[meetingID] = cfg
	s.mu.Unlock()

	if config.Debug {
		config.DebugLog.Printf("[Speech] %s voice=%s", meetingID, cfg.VoiceName)
	}
}

func (s *SpeechStore) Get(meetingID string) SpeechConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cfg, ok := s.configs[meetingID]; ok {
		return cfg
	}
	return SpeechConfig{VoiceName: s.defaultVoice}
}

// Forget drops a closed meeting's config.
func (s *SpeechStore) Forget(meetingID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.configs, meetingID)
}
