package engine

import (
	"bytes"
	"context"

	"github.com/oneconcern/vkv/pkg/status"
	"github.com/oneconcern/vkv/pkg/storage"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentUploads bounds the number of blobs written in parallel on commit
const maxConcurrentUploads = 8

// stage holds the content of pending writes, by content hash, until they are committed
type stage struct {
	blobs map[string][]byte
}

func newStage() *stage {
	return &stage{blobs: make(map[string][]byte)}
}

func (s *stage) put(hash string, data []byte) {
	if _, ok := s.blobs[hash]; ok {
		return
	}
	s.blobs[hash] = append([]byte(nil), data...)
}

func (s *stage) get(hash string) ([]byte, bool) {
	data, ok := s.blobs[hash]
	return data, ok
}

func (s *stage) clear() {
	s.blobs = make(map[string][]byte)
}

// flush uploads the staged blobs for the given content hashes
func (s *stage) flush(ctx context.Context, objects storage.Store, hashes []string) error {
	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(maxConcurrentUploads)

	for _, hash := range hashes {
		data, ok := s.blobs[hash]
		if !ok {
			continue
		}
		grp.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := storage.PathForHash(hash)
			has, err := objects.Has(ctx, key)
			if err != nil {
				return err
			}
			if has {
				return nil
			}
			return objects.Put(ctx, key, bytes.NewReader(data), storage.OverWrite)
		})
	}

	if err := grp.Wait(); err != nil {
		return status.ErrEngine.Wrapf("uploading chunks: %w", err)
	}
	return nil
}
