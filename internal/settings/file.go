package settings

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/tidwall/pretty"

	"github.com/Fuabioo/settings-merge/internal/jsonc"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Load reads a JSONC settings file. A missing file and a blank file both
// yield an empty Settings. Any other read failure, a syntax error or a
// non-object top level is returned with the path in the message.
func Load(fs afero.Fs, path string) (*Settings, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return New(), nil
	}

	s, err := Parse(jsonc.Normalize(data))
	if err != nil {
		if errors.Is(err, ErrNotObject) {
			return nil, fmt.Errorf("settings: %s %w", path, err)
		}
		return nil, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	return s, nil
}

// Format renders s as JSON indented by two spaces, one member per line and
// one array element per line, followed by a single newline.
func Format(s *Settings) ([]byte, error) {
	if s.Len() == 0 {
		return []byte("{}\n"), nil
	}

	compact, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}

	out := pretty.PrettyOptions(compact, &pretty.Options{Indent: "  "})
	out = bytes.TrimRight(out, "\n")
	return append(out, '\n'), nil
}

// Write formats s and writes it to path, creating parent directories as
// needed. Prior content is overwritten; an existing file keeps its mode.
func Write(fs afero.Fs, path string, s *Settings) error {
	data, err := Format(s)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("settings: create directory %s: %w", dir, err)
	}

	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("settings: write %s: %w", path, err)
	}
	return nil
}
