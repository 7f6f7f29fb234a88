package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahirjain10/image-optimizer/internal/storage"
	"github.com/mahirjain10/image-optimizer/internal/transformation"
	"github.com/mahirjain10/image-optimizer/internal/types"
)

type memObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

// memStore is an in-memory ObjectStore with failure injection.
type memStore struct {
	mu        sync.Mutex
	objects   map[string]memObject
	downloads int
	uploads   int
	stats     int

	downloadErr error
	partialErr  error
	uploadErr   error
	panicOnGet  bool
}

func newMemStore() *memStore {
	return &memStore{objects: map[string]memObject{}}
}

func (m *memStore) put(bucket, key, contentType string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = memObject{data: data, contentType: contentType}
}

func (m *memStore) get(bucket, key string) (memObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[bucket+"/"+key]
	return obj, ok
}

func (m *memStore) Download(_ context.Context, bucket, key string, w io.Writer) (int64, error) {
	m.mu.Lock()
	m.downloads++
	obj, ok := m.objects[bucket+"/"+key]
	m.mu.Unlock()

	if m.panicOnGet {
		panic("store exploded")
	}
	if m.downloadErr != nil {
		return 0, m.downloadErr
	}
	if !ok {
		return 0, fmt.Errorf("%s/%s: %w", bucket, key, storage.ErrObjectNotFound)
	}
	if m.partialErr != nil {
		n, _ := w.Write(obj.data[:len(obj.data)/2])
		return int64(n), m.partialErr
	}
	n, err := w.Write(obj.data)
	return int64(n), err
}

func (m *memStore) Upload(_ context.Context, in storage.UploadInput) (storage.ObjectRef, error) {
	m.mu.Lock()
	m.uploads++
	m.mu.Unlock()
	if m.uploadErr != nil {
		return storage.ObjectRef{}, m.uploadErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return storage.ObjectRef{}, err
	}
	m.mu.Lock()
	m.objects[in.Bucket+"/"+in.Key] = memObject{data: data, contentType: in.ContentType, metadata: in.Metadata}
	m.mu.Unlock()
	return storage.ObjectRef{Bucket: in.Bucket, Key: in.Key, ETag: "etag"}, nil
}

func (m *memStore) Stat(_ context.Context, bucket, key string) (storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats++
	obj, ok := m.objects[bucket+"/"+key]
	if !ok {
		return storage.ObjectInfo{}, fmt.Errorf("%s/%s: %w", bucket, key, storage.ErrObjectNotFound)
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestPipeline(t *testing.T, store storage.ObjectStore) (*Pipeline, string) {
	t.Helper()
	workDir := t.TempDir()
	return New(Params{Store: store, WorkDir: workDir}), workDir
}

func assertNoArtifacts(t *testing.T, workDir string) {
	t.Helper()
	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "invocation left files behind")
}

func TestProcess_PublishesOptimizedJPEG(t *testing.T) {
	store := newMemStore()
	store.put("photos", "original/cat.png", "image/png", pngBytes(t, 1200, 800))
	p, workDir := newTestPipeline(t, store)

	res, err := p.Process(context.Background(), types.NewUploadEvent("photos", "original/cat.png", "image/png", 0))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	assert.Empty(t, res.Warnings)

	require.NotNil(t, res.Object)
	assert.Equal(t, "optimized/cat.jpeg", res.Object.Path)
	assert.Equal(t, "image/jpeg", res.Object.ContentType)
	assert.Equal(t, "cat.png", res.Object.OriginalName)
	assert.Equal(t, 300, res.Object.Width)
	assert.Equal(t, 200, res.Object.Height)

	obj, ok := store.get("photos", "optimized/cat.jpeg")
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", obj.contentType)
	assert.Equal(t, map[string]string{"originalName": "cat.png"}, obj.metadata)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(obj.data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 300, cfg.Width)
	assert.Equal(t, 200, cfg.Height)

	assertNoArtifacts(t, workDir)
}

func TestProcess_SkipsIneligibleEvents(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		contentType string
	}{
		{"own output", "optimized/cat.jpeg", "image/jpeg"},
		{"not an image", "doc.pdf", "application/pdf"},
		{"missing content type", "original/cat.png", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.put("photos", tt.path, tt.contentType, []byte("whatever"))
			p, workDir := newTestPipeline(t, store)

			res, err := p.Process(context.Background(), types.NewUploadEvent("photos", tt.path, tt.contentType, 8))
			require.NoError(t, err)
			assert.Equal(t, OutcomeSkipped, res.Outcome)
			assert.Nil(t, res.Object)
			assert.Zero(t, store.downloads, "no fetch for skipped events")
			assert.Zero(t, store.uploads)
			assertNoArtifacts(t, workDir)
		})
	}
}

func TestProcess_MissingSourceIsFetchError(t *testing.T) {
	store := newMemStore()
	p, workDir := newTestPipeline(t, store)

	res, err := p.Process(context.Background(), types.NewUploadEvent("photos", "original/gone.png", "image/png", 10))
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "original/gone.png", fetchErr.Path)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	assert.False(t, Retryable(err))
	assert.Nil(t, res.Object)
	assert.Zero(t, store.uploads)
	assertNoArtifacts(t, workDir)
}

func TestProcess_InterruptedDownloadIsRetryable(t *testing.T) {
	store := newMemStore()
	store.put("photos", "original/cat.png", "image/png", pngBytes(t, 64, 64))
	store.partialErr = errors.New("connection reset by peer")
	p, workDir := newTestPipeline(t, store)

	_, err := p.Process(context.Background(), types.NewUploadEvent("photos", "original/cat.png", "image/png", 0))

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.True(t, Retryable(err))
	assertNoArtifacts(t, workDir)
}

func TestProcess_UndecodableImageIsTranscodeError(t *testing.T) {
	store := newMemStore()
	store.put("photos", "original/fake.png", "image/png", []byte("definitely not a png"))
	p, workDir := newTestPipeline(t, store)

	_, err := p.Process(context.Background(), types.NewUploadEvent("photos", "original/fake.png", "image/png", 0))

	var transcodeErr *TranscodeError
	require.ErrorAs(t, err, &transcodeErr)
	assert.False(t, Retryable(err))
	assert.Zero(t, store.uploads)
	_, published := store.get("photos", "optimized/fake.jpeg")
	assert.False(t, published)
	assertNoArtifacts(t, workDir)
}

func TestProcess_UploadFailureIsPublishError(t *testing.T) {
	store := newMemStore()
	store.put("photos", "original/cat.png", "image/png", pngBytes(t, 500, 500))
	store.uploadErr = errors.New("503 slow down")
	p, workDir := newTestPipeline(t, store)

	_, err := p.Process(context.Background(), types.NewUploadEvent("photos", "original/cat.png", "image/png", 0))

	var publishErr *PublishError
	require.ErrorAs(t, err, &publishErr)
	assert.Equal(t, "optimized/cat.jpeg", publishErr.Path)
	assert.True(t, Retryable(err))
	assertNoArtifacts(t, workDir)
}

func TestProcess_CleansUpWhenStorePanics(t *testing.T) {
	store := newMemStore()
	store.put("photos", "original/cat.png", "image/png", pngBytes(t, 10, 10))
	store.panicOnGet = true
	p, workDir := newTestPipeline(t, store)

	assert.Panics(t, func() {
		_, _ = p.Process(context.Background(), types.NewUploadEvent("photos", "original/cat.png", "image/png", 0))
	})
	assertNoArtifacts(t, workDir)
}

func TestProcess_RerunOverwritesSameDestination(t *testing.T) {
	store := newMemStore()
	store.put("photos", "original/cat.png", "image/png", pngBytes(t, 640, 480))
	p, workDir := newTestPipeline(t, store)
	ev := types.NewUploadEvent("photos", "original/cat.png", "image/png", 0)

	first, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	second, err := p.Process(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, first.Object.Path, second.Object.Path)
	assert.Equal(t, 2, store.uploads)

	var derived int
	for key := range store.objects {
		if IsDerivedPath(key[len("photos/"):]) {
			derived++
		}
	}
	assert.Equal(t, 1, derived)
	assertNoArtifacts(t, workDir)
}

func TestProcess_DoesNotEnlargeSmallImages(t *testing.T) {
	store := newMemStore()
	store.put("photos", "icons/dot.png", "image/png", pngBytes(t, 120, 40))
	p, _ := newTestPipeline(t, store)

	res, err := p.Process(context.Background(), types.NewUploadEvent("photos", "icons/dot.png", "image/png", 0))
	require.NoError(t, err)
	assert.Equal(t, 120, res.Object.Width)
	assert.Equal(t, 40, res.Object.Height)

	obj, _ := store.get("photos", "optimized/dot.jpeg")
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(obj.data))
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Width)
	assert.Equal(t, 40, cfg.Height)
}

func TestProcess_ConcurrentSameNameEventsAreIsolated(t *testing.T) {
	store := newMemStore()
	buckets := []string{"a", "b", "c", "d", "e", "f"}
	for i, b := range buckets {
		store.put(b, "original/cat.png", "image/png", pngBytes(t, 400+i*50, 300))
	}
	p, workDir := newTestPipeline(t, store)

	var wg sync.WaitGroup
	errs := make([]error, len(buckets))
	for i, b := range buckets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = p.Process(context.Background(), types.NewUploadEvent(b, "original/cat.png", "image/png", 0))
		}()
	}
	wg.Wait()

	for i, b := range buckets {
		require.NoError(t, errs[i], b)
		obj, ok := store.get(b, "optimized/cat.jpeg")
		require.True(t, ok, b)
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(obj.data))
		require.NoError(t, err)
		assert.Equal(t, 300, cfg.Width, b)
	}
	assertNoArtifacts(t, workDir)
}

func TestResolveContentType(t *testing.T) {
	store := newMemStore()
	store.put("photos", "original/cat.png", "image/png", []byte("1234"))
	p, _ := newTestPipeline(t, store)

	ev, err := p.ResolveContentType(context.Background(), types.UploadEvent{Bucket: "photos", Path: "original/cat.png"})
	require.NoError(t, err)
	assert.Equal(t, "image/png", ev.ContentType)
	assert.Equal(t, int64(4), ev.Size)

	_, err = p.ResolveContentType(context.Background(), types.UploadEvent{Bucket: "photos", Path: "original/missing.png"})
	var fetchErr *FetchError
	assert.ErrorAs(t, err, &fetchErr)

	calls := store.stats
	ev, err = p.ResolveContentType(context.Background(), types.UploadEvent{Bucket: "photos", Path: "optimized/cat.jpeg"})
	require.NoError(t, err)
	assert.Empty(t, ev.ContentType)
	assert.Equal(t, calls, store.stats, "derived paths are not looked up")
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found", &FetchError{Err: storage.ErrObjectNotFound}, false},
		{"fetch transport", &FetchError{Err: errors.New("reset")}, true},
		{"transcode", &TranscodeError{Err: errors.New("bad")}, false},
		{"publish", &PublishError{Err: errors.New("503")}, true},
		{"deadline", &PublishError{Err: context.DeadlineExceeded}, true},
		{"unknown", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestProcess_CleanupFailureIsOnlyAWarning(t *testing.T) {
	store := newMemStore()
	store.put("photos", "original/cat.png", "image/png", pngBytes(t, 400, 400))
	p, workDir := newTestPipeline(t, store)
	p.removeArtifact = func(string) error { return errors.New("device or resource busy") }

	res, err := p.Process(context.Background(), types.NewUploadEvent("photos", "original/cat.png", "image/png", 0))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	require.NotNil(t, res.Object)
	assert.Equal(t, "optimized/cat.jpeg", res.Object.Path)

	require.Len(t, res.Warnings, 1)
	var warning *CleanupWarning
	require.ErrorAs(t, res.Warnings[0], &warning)
	assert.Contains(t, warning.Error(), "device or resource busy")
	assertNoArtifacts(t, workDir)
}

func TestProcess_CleanupFailureDoesNotReplaceStageError(t *testing.T) {
	store := newMemStore()
	store.put("photos", "original/cat.png", "image/png", pngBytes(t, 400, 400))
	store.uploadErr = errors.New("503 slow down")
	p, _ := newTestPipeline(t, store)
	p.removeArtifact = func(string) error { return errors.New("device or resource busy") }

	res, err := p.Process(context.Background(), types.NewUploadEvent("photos", "original/cat.png", "image/png", 0))

	var publishErr *PublishError
	require.ErrorAs(t, err, &publishErr)
	var warning *CleanupWarning
	assert.False(t, errors.As(err, &warning))
	assert.True(t, Retryable(err))
	require.Len(t, res.Warnings, 1)
	assert.ErrorAs(t, res.Warnings[0], &warning)
}

// oversizedPNG declares a 40000 x 40000 RGBA image in under a hundred bytes.
func oversizedPNG() []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := func(typ string, data []byte) {
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(data)))
		body := append([]byte(typ), data...)
		buf.Write(body)
		_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(body))
	}
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], 40000)
	binary.BigEndian.PutUint32(ihdr[4:], 40000)
	ihdr[8], ihdr[9] = 8, 6
	chunk("IHDR", ihdr)
	chunk("IDAT", nil)
	chunk("IEND", nil)
	return buf.Bytes()
}

func TestProcess_OversizedImageIsTranscodeError(t *testing.T) {
	store := newMemStore()
	store.put("photos", "original/huge.png", "image/png", oversizedPNG())
	p, workDir := newTestPipeline(t, store)

	_, err := p.Process(context.Background(), types.NewUploadEvent("photos", "original/huge.png", "image/png", 0))

	var transcodeErr *TranscodeError
	require.ErrorAs(t, err, &transcodeErr)
	assert.ErrorIs(t, err, transformation.ErrDecode)
	assert.False(t, Retryable(err))
	assert.Zero(t, store.uploads)
	assertNoArtifacts(t, workDir)
}
