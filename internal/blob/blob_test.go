package blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"hash/crc32"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"speedmap-platform/pkg/metrics"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// exerciseStore runs the same contract against every driver
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	key := FloorplanKey("p1")
	data := pngBytes(t, 8, 6)

	_, _, err := s.Get(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)

	info, err := s.Put(ctx, key, bytes.NewReader(data), "image/png")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), info.Size)

	// replacing keeps only the latest image
	data2 := pngBytes(t, 16, 12)
	_, err = s.Put(ctx, key, bytes.NewReader(data2), "image/png")
	require.NoError(t, err)

	got, rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, data2, body)
	assert.Equal(t, "image/png", got.ContentType)

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key), "delete is idempotent")
	_, _, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestFilesystemStore(t *testing.T) {
	s, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestFilesystemStore_RejectsTraversal(t *testing.T) {
	s, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../escape", "/abs/path"} {
		_, err := s.Put(context.Background(), key, strings.NewReader("x"), "")
		assert.Error(t, err, "key %q", key)
	}
}

func TestS3Store(t *testing.T) {
	s, err := NewS3(context.Background(), S3Config{
		Bucket:          "floorplans",
		Endpoint:        "https://mock.s3.local",
		PathStyle:       true,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		HTTPClient:      &http.Client{Transport: newMockS3()},
	})
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{})
	assert.Error(t, err)
}

func TestOpen_Instrumented(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := Open(context.Background(), Config{Driver: DriverMemory}, metrics.NewCollector("blob_test", reg))
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, s.Driver())

	exerciseStore(t, s)

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "blob_test_blob_operation_duration_seconds" {
			found = true
			assert.Len(t, f.GetMetric(), 3, "put, get and delete")
		}
	}
	assert.True(t, found)

	_, err = Open(context.Background(), Config{Driver: "ftp"}, nil)
	assert.Error(t, err)
}

func TestSniffImage(t *testing.T) {
	info, err := SniffImage(bytes.NewReader(pngBytes(t, 640, 480)))
	require.NoError(t, err)
	assert.Equal(t, ImageInfo{Width: 640, Height: 480, Format: "png", ContentType: "image/png"}, info)

	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, image.NewGray(image.Rect(0, 0, 30, 20))))
	info, err = SniffImage(&buf)
	require.NoError(t, err)
	assert.Equal(t, "bmp", info.Format)
	assert.Equal(t, 30, info.Width)

	_, err = SniffImage(strings.NewReader("not an image"))
	assert.Error(t, err)
}

// pngHeader is a PNG signature plus an IHDR chunk claiming w x h grey pixels
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth; colour type 0, no interlace

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestSniffImage_Limits(t *testing.T) {
	tests := []struct {
		name    string
		width   uint32
		height  uint32
		wantErr bool
	}{
		{name: "ordinary scan", width: 4000, height: 3000},
		{name: "largest side allowed", width: MaxImageSide, height: 100},
		{name: "tall sliver", width: 1, height: 1 << 30, wantErr: true},
		{name: "wide sliver", width: MaxImageSide + 1, height: 1, wantErr: true},
		{name: "too many pixels", width: 15000, height: 15000, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := pngHeader(tt.width, tt.height)
			require.Less(t, len(header), 64)

			info, err := SniffImage(bytes.NewReader(header))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int(tt.width), info.Width)
			assert.Equal(t, int(tt.height), info.Height)
		})
	}
}

// mockS3 is a path-style S3 stand-in keyed by /bucket/key
type mockS3 struct {
	mu      sync.Mutex
	objects map[string]mockObject
}

type mockObject struct {
	body        []byte
	contentType string
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string]mockObject)}
}

func (m *mockS3) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := req.URL.Path
	switch req.Method {
	case http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
			if body, err = decodeChunked(body); err != nil {
				return nil, err
			}
		}
		m.objects[path] = mockObject{body: body, contentType: req.Header.Get("Content-Type")}
		return response(http.StatusOK, nil, http.Header{"ETag": {`"etag"`}}), nil
	case http.MethodGet:
		obj, ok := m.objects[path]
		if !ok {
			return response(http.StatusNotFound, []byte(`<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`),
				http.Header{"Content-Type": {"application/xml"}}), nil
		}
		return response(http.StatusOK, obj.body, http.Header{
			"Content-Type":   {obj.contentType},
			"Content-Length": {strconv.Itoa(len(obj.body))},
			"Last-Modified":  {"Mon, 01 Jan 2024 00:00:00 GMT"},
		}), nil
	case http.MethodDelete:
		delete(m.objects, path)
		return response(http.StatusNoContent, nil, http.Header{}), nil
	}
	return response(http.StatusNotImplemented, nil, http.Header{}), nil
}

func response(status int, body []byte, header http.Header) *http.Response {
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// decodeChunked strips aws-chunked framing: <hex>[;ext]\r\n<data>\r\n ... 0\r\n<trailers>
func decodeChunked(b []byte) ([]byte, error) {
	r := bufio.NewReader(bytes.NewReader(b))
	var out bytes.Buffer
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("chunk header: %w", err)
		}
		sizeHex, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, r, size); err != nil {
			return nil, err
		}
		if _, err := r.Discard(2); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	}
}
