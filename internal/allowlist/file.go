package allowlist

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type fileDocument struct {
	AllowedChannelIDs []string `yaml:"allowed_channel_ids"`
}

// FileStore keeps the list in a small YAML document next to the config. Writes
// go through a temp file and a rename so readers never see a partial file.
type FileStore struct {
	Path string
}

// Load returns the stored channels. found is false when the file does not
// exist yet.
func (f FileStore) Load() (ids []string, found bool, err error) {
	raw, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read forum allowlist %s: %w", f.Path, err)
	}
	var doc fileDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, false, fmt.Errorf("parse forum allowlist %s: %w", f.Path, err)
	}
	return doc.AllowedChannelIDs, true, nil
}

func (f FileStore) Save(ctx context.Context, channelIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := yaml.Marshal(fileDocument{AllowedChannelIDs: channelIDs})
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.Path)
	tmp, err := os.CreateTemp(dir, ".allowlist-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}
