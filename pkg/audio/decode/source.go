// ABOUTME: File source selection by extension
// ABOUTME: Opens MP3, FLAC, WAV, Ogg Vorbis and raw PCM files as sample Sources
package decode

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Resonate-Protocol/audioout/pkg/audio"
)

// ErrUnsupportedFile is returned for file types no source can read
var ErrUnsupportedFile = errors.New("unsupported audio file")

// Open opens an audio file and picks the decoder from its extension.
// Raw PCM files (.pcm, .raw) are read as audio.DefaultFormat.
func Open(path string) (Source, error) {
	return OpenAs(path, audio.DefaultFormat())
}

// OpenAs is Open with the format used for raw PCM files
func OpenAs(path string, raw audio.Format) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}

	src, err := newSource(strings.ToLower(filepath.Ext(path)), f, raw)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return src, nil
}

func newSource(ext string, f io.ReadCloser, raw audio.Format) (Source, error) {
	var (
		src Source
		err error
	)
	switch ext {
	case ".mp3":
		src, err = NewMP3Source(f)
	case ".flac":
		src, err = NewFLACSource(f)
	case ".wav":
		src, err = NewWAVSource(f)
	case ".ogg", ".oga":
		src, err = NewVorbisSource(f)
	case ".pcm", ".raw":
		src, err = NewRawSource(f, raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, ext)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}
