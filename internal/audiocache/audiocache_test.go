package audiocache

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestKeyShapeAndDeterminism(t *testing.T) {
	t.Parallel()

	k1 := Key("Hello world", "en-US", "en-US-AvaNeural", "wav")
	k2 := Key("  Hello   world  ", "en-US", "en-US-AvaNeural", "wav")
	if k1 != k2 {
		t.Errorf("normalised variants produced different keys: %q vs %q", k1, k2)
	}

	parts := strings.Split(k1, "/")
	if len(parts) != 3 {
		t.Fatalf("key %q has %d segments, want 3", k1, len(parts))
	}
	if parts[0] != "en-US" || parts[1] != "en-US-AvaNeural" {
		t.Errorf("key %q has wrong language/model segments", k1)
	}
	if !strings.HasSuffix(parts[2], ".wav") {
		t.Errorf("key %q does not end in .wav", k1)
	}
	if got := len(strings.TrimSuffix(parts[2], ".wav")); got != keyHashLen {
		t.Errorf("hash segment length = %d, want %d", got, keyHashLen)
	}

	if k3 := Key("Hello world", "th-TH", "en-US-AvaNeural", "wav"); k3 == k1 {
		t.Error("different language produced an identical key")
	}
	if k4 := Key("Hello world", "en-US", "other-voice", "wav"); k4 == k1 {
		t.Error("different model produced an identical key")
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"  hello  world ", "hello world"},
		{"a\tb\nc", "a b c"},
		{"", ""},
		{"Case Kept", "Case Kept"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory(0)

	key := Key("hi there friend", "en-US", "voice", "wav")
	if _, ok, err := m.Get(ctx, key); err != nil || ok {
		t.Fatalf("get on empty store = ok=%v err=%v, want miss", ok, err)
	}

	want := Entry{Audio: []byte{1, 2, 3}, MediaType: "audio/wav"}
	if err := m.Put(ctx, key, want); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := m.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("get after put = ok=%v err=%v, want hit", ok, err)
	}
	if string(got.Audio) != string(want.Audio) || got.MediaType != want.MediaType {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory(3)

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("en/v/%d.wav", i)
		if err := m.Put(ctx, key, Entry{Audio: []byte{byte(i)}, MediaType: "audio/wav"}); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	if got := m.Len(); got != 3 {
		t.Fatalf("len = %d, want 3", got)
	}
	if _, ok, _ := m.Get(ctx, "en/v/0.wav"); ok {
		t.Error("oldest entry survived eviction")
	}
	if _, ok, _ := m.Get(ctx, "en/v/4.wav"); !ok {
		t.Error("newest entry was evicted")
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	r := NewRedis(client)

	key := Key("cached audio", "en-US", "voice", "wav")
	if _, ok, err := r.Get(ctx, key); err != nil || ok {
		t.Fatalf("get on empty store = ok=%v err=%v, want miss", ok, err)
	}

	want := Entry{Audio: []byte("RIFF....WAVE"), MediaType: "audio/wav"}
	if err := r.Put(ctx, key, want); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := r.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("get after put = ok=%v err=%v, want hit", ok, err)
	}
	if string(got.Audio) != string(want.Audio) || got.MediaType != want.MediaType {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	if err := r.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
