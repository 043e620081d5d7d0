// Package memory provides an in-memory versioned blob store. It mirrors the
// semantics of a version-enabled S3 bucket (version chains, delete markers,
// multipart uploads) and is intended for tests and local development.
package memory

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/creativestore/creative-store/pkg/creativestore"
)

const listPageSize = 1000

// version is one entry of a key's version chain, newest last.
type version struct {
	id           string
	data         []byte
	contentType  string
	metadata     map[string]string
	etag         string
	lastModified time.Time
	deleteMarker bool
}

type multipartUpload struct {
	key     string
	opts    creativestore.PutOptions
	parts   map[int32][]byte
	aborted bool
}

// Store is an in-memory implementation of creativestore.VersionedBlobStore.
type Store struct {
	mu      sync.RWMutex
	chains  map[string][]*version
	uploads map[string]*multipartUpload
}

// New creates an empty in-memory versioned store.
func New() *Store {
	return &Store{
		chains:  make(map[string][]*version),
		uploads: make(map[string]*multipartUpload),
	}
}

var _ creativestore.VersionedBlobStore = (*Store)(nil)

func (s *Store) Put(ctx context.Context, key string, body io.Reader, opts creativestore.PutOptions) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v := newVersion(data, opts)
	s.chains[key] = append(s.chains[key], v)
	return v.id, nil
}

func (s *Store) Get(ctx context.Context, key, versionID string) ([]byte, *creativestore.ObjectMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, err := s.resolve(key, versionID)
	if err != nil {
		return nil, nil, err
	}
	data := make([]byte, len(v.data))
	copy(data, v.data)
	return data, v.objectMeta(key), nil
}

func (s *Store) Head(ctx context.Context, key, versionID string) (*creativestore.ObjectMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, err := s.resolve(key, versionID)
	if err != nil {
		return nil, err
	}
	return v.objectMeta(key), nil
}

func (s *Store) List(ctx context.Context, prefix, continuationToken string) ([]string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.chains))
	for key, chain := range s.chains {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		if chain[len(chain)-1].deleteMarker {
			continue
		}
		if continuationToken != "" && key <= continuationToken {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	if len(keys) > listPageSize {
		return keys[:listPageSize], keys[listPageSize-1], nil
	}
	return keys, "", nil
}

func (s *Store) ListVersions(ctx context.Context, key, pageToken string) (*creativestore.VersionPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain, ok := s.chains[key]
	if !ok {
		return &creativestore.VersionPage{}, nil
	}

	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return nil, fmt.Errorf("invalid page token %q", pageToken)
		}
		offset = n
	}

	// Newest first, the way a versioned bucket lists.
	page := &creativestore.VersionPage{}
	for i := len(chain) - 1 - offset; i >= 0; i-- {
		v := chain[i]
		page.Versions = append(page.Versions, creativestore.VersionInfo{
			VersionID:      v.id,
			IsDeleteMarker: v.deleteMarker,
			IsLatest:       i == len(chain)-1,
			ETag:           v.etag,
			LastModified:   v.lastModified,
		})
		if len(page.Versions) == listPageSize && i > 0 {
			page.NextToken = strconv.Itoa(offset + listPageSize)
			break
		}
	}
	return page, nil
}

func (s *Store) Copy(ctx context.Context, srcKey, dstKey string, opts creativestore.PutOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.resolve(srcKey, "")
	if err != nil {
		return err
	}
	data := make([]byte, len(src.data))
	copy(data, src.data)
	if opts.ContentType == "" {
		opts.ContentType = src.contentType
	}
	s.chains[dstKey] = append(s.chains[dstKey], newVersion(data, opts))
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chains[key]; !ok {
		return nil
	}
	s.chains[key] = append(s.chains[key], &version{
		id:           uuid.NewString(),
		lastModified: time.Now().UTC(),
		deleteMarker: true,
	})
	return nil
}

func (s *Store) CreateMultipartUpload(ctx context.Context, key string, opts creativestore.PutOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uploadID := uuid.NewString()
	s.uploads[uploadID] = &multipartUpload{
		key:   key,
		opts:  opts,
		parts: make(map[int32][]byte),
	}
	return uploadID, nil
}

func (s *Store) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.upload(key, uploadID)
	if err != nil {
		return "", err
	}
	u.parts[partNumber] = data
	return etagOf(data), nil
}

func (s *Store) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []creativestore.FilePart) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.upload(key, uploadID)
	if err != nil {
		return "", err
	}

	var assembled []byte
	for _, part := range parts {
		data, ok := u.parts[part.Number]
		if !ok {
			return "", fmt.Errorf("part %d was never uploaded", part.Number)
		}
		if etagOf(data) != part.ETag {
			return "", fmt.Errorf("part %d etag mismatch", part.Number)
		}
		assembled = append(assembled, data...)
	}

	v := newVersion(assembled, u.opts)
	s.chains[key] = append(s.chains[key], v)
	delete(s.uploads, uploadID)
	return v.etag, nil
}

func (s *Store) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.uploads[uploadID]
	if !ok || u.key != key {
		// Aborting an unknown or already-finished upload is a no-op, the way
		// S3 treats a NoSuchUpload abort in practice.
		return nil
	}
	u.aborted = true
	delete(s.uploads, uploadID)
	return nil
}

// resolve finds the requested version of key. Callers hold at least a read
// lock.
func (s *Store) resolve(key, versionID string) (*version, error) {
	chain, ok := s.chains[key]
	if !ok {
		return nil, creativestore.ErrNotFound
	}
	if versionID == "" {
		latest := chain[len(chain)-1]
		if latest.deleteMarker {
			return nil, creativestore.ErrNotFound
		}
		return latest, nil
	}
	for _, v := range chain {
		if v.id == versionID {
			if v.deleteMarker {
				return nil, creativestore.ErrNotFound
			}
			return v, nil
		}
	}
	return nil, creativestore.ErrNotFound
}

func (s *Store) upload(key, uploadID string) (*multipartUpload, error) {
	u, ok := s.uploads[uploadID]
	if !ok || u.key != key {
		return nil, creativestore.ErrNotFound
	}
	return u, nil
}

func newVersion(data []byte, opts creativestore.PutOptions) *version {
	metadata := make(map[string]string, len(opts.Metadata))
	for k, v := range opts.Metadata {
		metadata[k] = v
	}
	return &version{
		id:           uuid.NewString(),
		data:         data,
		contentType:  opts.ContentType,
		metadata:     metadata,
		etag:         etagOf(data),
		lastModified: time.Now().UTC(),
	}
}

func (v *version) objectMeta(key string) *creativestore.ObjectMeta {
	metadata := make(map[string]string, len(v.metadata))
	for k, val := range v.metadata {
		metadata[k] = val
	}
	return &creativestore.ObjectMeta{
		Key:          key,
		VersionID:    v.id,
		Size:         int64(len(v.data)),
		ContentType:  v.contentType,
		ETag:         v.etag,
		LastModified: v.lastModified,
		Metadata:     metadata,
	}
}

func etagOf(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}
