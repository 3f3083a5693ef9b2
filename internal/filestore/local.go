package filestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type localArgs struct {
	Dir string `json:"dir"`
}

// localStore writes files flat into a single directory. Keys are generated
// internally (uuid + extension), never taken from user input, but the path
// check stays as a second line against traversal.
type localStore struct {
	dir string
}

func init() {
	Register("local", newLocalStore)
}

func newLocalStore(args interface{}) (Store, error) {
	la := &localArgs{}
	if err := decodeArgs(args, la); err != nil {
		return nil, err
	}
	if la.Dir == "" {
		return nil, fmt.Errorf("local store dir is required")
	}
	return &localStore{dir: la.Dir}, nil
}

func validKey(key string) bool {
	return key != "" && !strings.ContainsAny(key, `/\`)
}

func (s *localStore) Save(ctx context.Context, key string, r io.ReadSeekCloser, size int64) error {
	_ = ctx
	_ = size
	if !validKey(key) {
		return fmt.Errorf("invalid file key %q", key)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return err
	}
	out, err := os.Create(filepath.Join(s.dir, key))
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (s *localStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	_ = ctx
	if !validKey(key) {
		return nil, fmt.Errorf("invalid file key %q", key)
	}
	return os.Open(filepath.Join(s.dir, key))
}

func (s *localStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	if !validKey(key) {
		return fmt.Errorf("invalid file key %q", key)
	}
	err := os.Remove(filepath.Join(s.dir, key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
