package provider

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream unavailable")

// fakeTransport fails the first `failures` calls and succeeds afterwards.
type fakeTransport struct {
	mu       sync.Mutex
	failures int
	urls     []string
}

func (f *fakeTransport) Issue(_ context.Context, url string) (*Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	if len(f.urls) <= f.failures {
		return nil, errUpstream
	}
	return &Image{Data: redPNG, ContentType: "image/png"}, nil
}

func (f *fakeTransport) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

var redPNG = encodePNG()

func encodePNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newReadyProvider(t *testing.T, opts Options, tr Transport, options ...Option) *Provider {
	t.Helper()
	ctx := testContext(t)

	p, err := New(ctx, opts, tr, options...)
	require.NoError(t, err)

	ready, err := p.WhenReady(ctx)
	require.NoError(t, err)
	require.True(t, ready)
	return p
}

func intPtr(v int) *int {
	return &v
}
