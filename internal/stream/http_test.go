package stream

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/satindergrewal/blancdj/internal/audio"
)

func TestHTTPHandlerStreamsOgg(t *testing.T) {
	b := NewBroadcaster()
	srv := httptest.NewServer(NewHTTPHandler(b, "test"))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "audio/ogg" {
		t.Errorf("Content-Type = %q, want audio/ogg", ct)
	}
	if name := resp.Header.Get("ICY-Name"); name != "test" {
		t.Errorf("ICY-Name = %q, want test", name)
	}

	magic := make([]byte, 4)
	if _, err := io.ReadFull(resp.Body, magic); err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if !bytes.Equal(magic, []byte("OggS")) {
		t.Errorf("stream starts with %q, want OggS", magic)
	}
	if b.ListenerCount() != 1 {
		t.Errorf("ListenerCount = %d, want 1", b.ListenerCount())
	}

	b.Publish(make([]float32, audio.FrameSamples))
	buf := make([]byte, 64)
	if n, err := resp.Body.Read(buf); n == 0 && err != nil {
		t.Errorf("no audio page after publish: %v", err)
	}
}

func TestOggOpusWritesPages(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewOggOpus(&buf)
	if err != nil {
		t.Fatalf("NewOggOpus() error = %v", err)
	}
	headers := buf.Len()
	if headers == 0 {
		t.Fatal("no headers written")
	}
	for i := 0; i < 5; i++ {
		if err := w.WriteFrame(make([]float32, audio.FrameSamples)); err != nil {
			t.Fatalf("WriteFrame() error = %v", err)
		}
	}
	if buf.Len() <= headers {
		t.Errorf("stream did not grow after frames: %d bytes", buf.Len())
	}
	if got := bytes.Count(buf.Bytes(), []byte("OggS")); got != 7 {
		t.Errorf("page count = %d, want 7 (2 headers + 5 audio)", got)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
