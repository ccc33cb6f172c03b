package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/elparko/CaseTracker/internal/apperr"
	"github.com/google/uuid"
)

// formats maps accepted file extensions to MIME types.
var formats = map[string]string{
	".wav":  FormatWAV,
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".webm": "audio/webm",
	".flac": "audio/flac",
}

// FormatForFile returns the MIME type for an audio file name.
func FormatForFile(name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if f, ok := formats[ext]; ok {
		return f, nil
	}
	return "", apperr.New(apperr.KindUnsupportedFormat, fmt.Sprintf("unsupported audio file type %q", ext))
}

// Extension returns the file extension for a MIME type.
func Extension(format string) string {
	for ext, f := range formats {
		if f == format {
			return ext
		}
	}
	return ".bin"
}

// FileStore keeps audio payloads referenced by case records.
type FileStore struct {
	Dir string
}

// DefaultAudioDir returns the default directory for stored recordings.
func DefaultAudioDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "casebook", "audio")
}

// Save writes p under a fresh name and returns its path.
func (s FileStore) Save(p Payload) (string, error) {
	if p.Empty() {
		return "", apperr.Validation("audio payload is empty")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create audio directory: %w", err)
	}
	path := filepath.Join(s.Dir, uuid.NewString()+Extension(p.Format))
	if err := os.WriteFile(path, p.Data, 0o600); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	return path, nil
}

// Remove deletes a stored recording. Missing files and empty references are
// not errors; references outside Dir are refused.
func (s FileStore) Remove(ref string) error {
	if ref == "" {
		return nil
	}
	if !s.Holds(ref) {
		return apperr.Validation(fmt.Sprintf("audio reference %q is outside %s", ref, s.Dir))
	}
	if err := os.Remove(ref); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove audio: %w", err)
	}
	return nil
}

// Holds reports whether ref names a file inside the store directory.
func (s FileStore) Holds(ref string) bool {
	if s.Dir == "" || ref == "" {
		return false
	}
	dir, err := filepath.Abs(s.Dir)
	if err != nil {
		return false
	}
	path, err := filepath.Abs(ref)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Load reads an audio file from disk as a payload.
func Load(path string) (Payload, error) {
	format, err := FormatForFile(path)
	if err != nil {
		return Payload{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Payload{}, apperr.New(apperr.KindNotFound, "audio file not found: "+path)
		}
		return Payload{}, fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		return Payload{}, apperr.Validation("audio file is empty")
	}
	p := Payload{Data: data, Format: format}
	if format == FormatWAV {
		if dur, ok := WAVDuration(data); ok {
			p.Duration = dur
		}
	}
	return p, nil
}
