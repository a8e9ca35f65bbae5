// Package fillersource loads filler-clip audio from disk. Clips are stored
// as 24 kHz mono PCM16 (raw or inside a WAV container); the bytes returned
// by Load are raw PCM16 little-endian frames ready for the media bridge's
// resample-on-play path. Clip audio is never cached per output rate, only
// verbatim as stored.
package fillersource

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/voicecore/callcore/pkg/model"
)

// Store resolves and reads clip audio under a base directory. Pre-warmed
// clips are held in memory; everything else is read on demand.
type Store struct {
	baseDir string

	mu    sync.RWMutex
	cache map[string][]byte
}

// New creates a Store rooted at baseDir. Relative clip AudioPaths resolve
// against it; absolute paths are used as-is.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, cache: make(map[string][]byte)}
}

// Preload reads the given clips into the in-memory cache. Unreadable clips
// are skipped and the first such failure is returned; the rest stay cached.
func (s *Store) Preload(clips []model.FillerClip) error {
	var firstErr error
	for _, clip := range clips {
		audio, err := s.read(clip)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.mu.Lock()
		s.cache[clip.ID] = audio
		s.mu.Unlock()
	}
	return firstErr
}

// Load implements callfsm.FillerSource.
func (s *Store) Load(clip model.FillerClip) ([]byte, error) {
	s.mu.RLock()
	audio, ok := s.cache[clip.ID]
	s.mu.RUnlock()
	if ok {
		return audio, nil
	}
	return s.read(clip)
}

func (s *Store) read(clip model.FillerClip) ([]byte, error) {
	if clip.AudioPath == "" {
		return nil, fmt.Errorf("fillersource: clip %q has no audio path", clip.ID)
	}
	path := clip.AudioPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fillersource: read clip %q: %w", clip.ID, err)
	}
	return stripWAVHeader(data)
}

// stripWAVHeader returns the PCM payload of data: the data chunk of a RIFF
// WAV container, or data unchanged when it is already raw PCM.
func stripWAVHeader(data []byte) ([]byte, error) {
	if len(data) < 12 || !bytes.Equal(data[:4], []byte("RIFF")) {
		return data, nil
	}
	// Walk the RIFF chunks looking for "data".
	off := 12
	for off+8 <= len(data) {
		id := data[off : off+4]
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if bytes.Equal(id, []byte("data")) {
			if body+size > len(data) {
				return nil, fmt.Errorf("fillersource: truncated WAV data chunk")
			}
			return data[body : body+size], nil
		}
		off = body + size
		if size%2 == 1 {
			off++ // RIFF chunks are word-aligned
		}
	}
	return nil, fmt.Errorf("fillersource: WAV container has no data chunk")
}
