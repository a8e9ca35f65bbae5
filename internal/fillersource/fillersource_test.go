package fillersource

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/voicecore/callcore/pkg/model"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// buildWAV wraps pcm in a minimal RIFF/WAVE container with a fmt and data
// chunk, the layout every common WAV writer produces.
func buildWAV(pcm []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(4+8+16+8+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))     // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1))     // mono
	binary.Write(&buf, binary.LittleEndian, uint32(24000)) // sample rate
	binary.Write(&buf, binary.LittleEndian, uint32(48000)) // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(2))     // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))    // bits
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

func TestLoadRawPCM(t *testing.T) {
	dir := t.TempDir()
	pcm := []byte{1, 2, 3, 4, 5, 6}
	writeFile(t, dir, "clip.pcm", pcm)

	s := New(dir)
	got, err := s.Load(model.FillerClip{ID: "c1", AudioPath: "clip.pcm"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("got %v, want %v", got, pcm)
	}
}

func TestLoadWAVStripsHeader(t *testing.T) {
	dir := t.TempDir()
	pcm := []byte{10, 20, 30, 40}
	writeFile(t, dir, "clip.wav", buildWAV(pcm))

	s := New(dir)
	got, err := s.Load(model.FillerClip{ID: "c1", AudioPath: "clip.wav"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("got %v, want %v", got, pcm)
	}
}

func TestLoadMissingPathFails(t *testing.T) {
	s := New(t.TempDir())
	if _, err := s.Load(model.FillerClip{ID: "c1"}); err == nil {
		t.Fatal("expected error for clip with no audio path")
	}
	if _, err := s.Load(model.FillerClip{ID: "c2", AudioPath: "nope.pcm"}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestPreloadCaches(t *testing.T) {
	dir := t.TempDir()
	pcm := []byte{9, 9, 9, 9}
	path := writeFile(t, dir, "clip.pcm", pcm)

	s := New(dir)
	clip := model.FillerClip{ID: "c1", AudioPath: "clip.pcm"}
	if err := s.Preload([]model.FillerClip{clip}); err != nil {
		t.Fatalf("Preload: %v", err)
	}

	// Remove the backing file: a cached clip must still load.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(clip)
	if err != nil {
		t.Fatalf("Load after Preload: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("got %v, want %v", got, pcm)
	}
}

func TestPreloadReportsFirstErrorAndContinues(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.pcm", []byte{1, 2})

	s := New(dir)
	err := s.Preload([]model.FillerClip{
		{ID: "bad", AudioPath: "missing.pcm"},
		{ID: "ok", AudioPath: "ok.pcm"},
	})
	if err == nil {
		t.Fatal("expected error for missing clip")
	}
	if _, err := s.Load(model.FillerClip{ID: "ok", AudioPath: "missing-now.pcm"}); err != nil {
		t.Errorf("good clip should be cached despite sibling failure: %v", err)
	}
}
