package tokenizer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeProcessorLoader(got *[]byte) ProcessorLoader {
	return func(model []byte) (PieceEncoder, error) {
		if got != nil {
			*got = model
		}
		return fakeProcessor{}, nil
	}
}

func TestSentencePieceAdapter_Ready(t *testing.T) {
	var model []byte
	adapter := NewSentencePieceAdapter(
		CustomData{Name: "my-model", ModelFile: []byte("model-bytes")},
		WithProcessorLoader(fakeProcessorLoader(&model)),
	)
	assert.Equal(t, StateUnloaded, adapter.State())
	assert.Equal(t, "my-model", adapter.Name())

	res := adapter.Tokenize(context.Background(), "Hello world")
	requireWellFormed(t, "Hello world", res)
	assert.Equal(t, []string{"Hello", " ", "world"}, pieces(res))
	assert.Equal(t, 1, res.Tokens[0].ID)
	assert.Equal(t, StateReady, adapter.State())
	assert.Equal(t, []byte("model-bytes"), model)
}

func TestSentencePieceAdapter_EncodePanicUsesLastResort(t *testing.T) {
	sink := &recordingSink{}
	adapter := NewSentencePieceAdapter(
		CustomData{ModelFile: []byte("model")},
		WithProcessorLoader(fakeProcessorLoader(nil)),
		WithEventSink(sink),
	)

	res := adapter.Tokenize(context.Background(), "boom now")
	requireWellFormed(t, "boom now", res)
	assert.Equal(t, []string{"boom", " ", "now"}, pieces(res))
	for i, tok := range res.Tokens {
		assert.Equal(t, 200000+i, tok.ID)
	}
	assert.Equal(t, StateReady, adapter.State(), "an encode failure does not degrade the adapter")
	assert.Equal(t, 1, sink.count(PhaseFallback))

	res = adapter.Tokenize(context.Background(), "calm")
	assert.Equal(t, 1, res.Tokens[0].ID)
}

func TestSentencePieceAdapter_FetchFailureDegrades(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	sink := &recordingSink{}
	adapter := NewSentencePieceAdapter(
		CustomData{Name: "remote", ModelURL: srv.URL + "/tokenizer.model"},
		WithHTTPClient(srv.Client()),
		WithEventSink(sink),
	)

	res := adapter.Tokenize(context.Background(), "Prezidentová")
	requireWellFormed(t, "Prezidentová", res)
	assert.Equal(t, []string{"Pre", "zident", "ová"}, pieces(res))
	assert.Equal(t, 32000, res.Tokens[0].ID)
	assert.Equal(t, StateDegraded, adapter.State())

	adapter.Tokenize(context.Background(), "again")
	assert.Equal(t, int32(1), hits.Load(), "a failed load is never retried")

	var loadErr error
	for _, e := range sink.events {
		if e.Phase == PhaseLoadDone {
			loadErr = e.Err
		}
	}
	require.Error(t, loadErr)
	assert.Contains(t, loadErr.Error(), "failed to fetch model")
	assert.Contains(t, loadErr.Error(), "404")
}

func TestSentencePieceAdapter_FetchesModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("remote-model"))
	}))
	defer srv.Close()

	var model []byte
	adapter := NewSentencePieceAdapter(
		CustomData{ModelURL: srv.URL},
		WithHTTPClient(srv.Client()),
		WithProcessorLoader(fakeProcessorLoader(&model)),
	)

	adapter.Tokenize(context.Background(), "text")
	assert.Equal(t, StateReady, adapter.State())
	assert.Equal(t, []byte("remote-model"), model)
}

func TestSentencePieceAdapter_InterruptedLoadIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("remote-model"))
	}))
	defer srv.Close()

	adapter := NewSentencePieceAdapter(
		CustomData{ModelURL: srv.URL},
		WithHTTPClient(srv.Client()),
		WithProcessorLoader(fakeProcessorLoader(nil)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := adapter.Tokenize(ctx, "Modrá")
	requireWellFormed(t, "Modrá", res)
	assert.Equal(t, 32000, res.Tokens[0].ID)
	assert.Equal(t, StateUnloaded, adapter.State(), "a cancelled load does not degrade")

	res = adapter.Tokenize(context.Background(), "Modrá")
	assert.Equal(t, StateReady, adapter.State())
	assert.Equal(t, 1, res.Tokens[0].ID)
}

func TestSentencePieceAdapter_ModelTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	sink := &recordingSink{}
	adapter := NewSentencePieceAdapter(
		CustomData{ModelURL: srv.URL},
		WithHTTPClient(srv.Client()),
		WithProcessorLoader(fakeProcessorLoader(nil)),
		WithEventSink(sink),
	)
	adapter.maxModel = 8

	adapter.Tokenize(context.Background(), "text")
	assert.Equal(t, StateDegraded, adapter.State())

	var loadErr error
	for _, e := range sink.events {
		if e.Phase == PhaseLoadDone {
			loadErr = e.Err
		}
	}
	assert.ErrorIs(t, loadErr, ErrModelTooLarge)

	exact := NewSentencePieceAdapter(
		CustomData{ModelURL: srv.URL},
		WithHTTPClient(srv.Client()),
		WithProcessorLoader(fakeProcessorLoader(nil)),
	)
	exact.maxModel = 10
	exact.Tokenize(context.Background(), "text")
	assert.Equal(t, StateReady, exact.State())
}

func TestSentencePieceAdapter_ModelFileWinsOverURL(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	adapter := NewSentencePieceAdapter(
		CustomData{ModelFile: []byte("local"), ModelURL: srv.URL},
		WithHTTPClient(srv.Client()),
		WithProcessorLoader(fakeProcessorLoader(nil)),
	)

	adapter.Tokenize(context.Background(), "text")
	assert.Equal(t, StateReady, adapter.State())
	assert.Equal(t, int32(0), hits.Load())
}

func TestSentencePieceAdapter_LocalPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sk.model")
	require.NoError(t, os.WriteFile(path, []byte("from-disk"), 0o600))

	var model []byte
	adapter := NewSentencePieceAdapter(
		CustomData{Name: "sk", ModelURL: path},
		WithProcessorLoader(fakeProcessorLoader(&model)),
	)

	adapter.Tokenize(context.Background(), "text")
	assert.Equal(t, StateReady, adapter.State())
	assert.Equal(t, []byte("from-disk"), model)
}

func TestSentencePieceAdapter_NoSourceDegrades(t *testing.T) {
	sink := &recordingSink{}
	adapter := NewSentencePieceAdapter(CustomData{Name: "empty"}, WithEventSink(sink))
	assert.Equal(t, "empty", adapter.Name())

	res := adapter.Tokenize(context.Background(), "Modrá obloha")
	requireWellFormed(t, "Modrá obloha", res)
	assert.Equal(t, StateDegraded, adapter.State())
	assert.Equal(t, 32000, res.Tokens[0].ID)

	var loadErr error
	for _, e := range sink.events {
		if e.Phase == PhaseLoadDone {
			loadErr = e.Err
		}
	}
	assert.ErrorIs(t, loadErr, ErrNoModelSource)
}

func TestSentencePieceAdapter_GarbageModelDegrades(t *testing.T) {
	adapter := NewSentencePieceAdapter(CustomData{ModelFile: []byte("not a model")})

	res := adapter.Tokenize(context.Background(), "čaj")
	requireWellFormed(t, "čaj", res)
	assert.Equal(t, []string{"čaj"}, pieces(res))
	assert.Equal(t, StateDegraded, adapter.State())
	assert.Equal(t, IdentifierCustom, adapter.Name())
}

func TestSentencePieceAdapter_LoaderErrorDegrades(t *testing.T) {
	adapter := NewSentencePieceAdapter(
		CustomData{ModelFile: []byte("model")},
		WithProcessorLoader(func([]byte) (PieceEncoder, error) {
			return nil, errors.New("bad model")
		}),
	)

	adapter.Tokenize(context.Background(), "text")
	assert.Equal(t, StateDegraded, adapter.State())
}

func TestSentencePieceAdapter_LoaderPanicDegrades(t *testing.T) {
	adapter := NewSentencePieceAdapter(
		CustomData{ModelFile: []byte("model")},
		WithProcessorLoader(func([]byte) (PieceEncoder, error) {
			panic("index out of range")
		}),
	)

	res := adapter.Tokenize(context.Background(), "text")
	requireWellFormed(t, "text", res)
	assert.Equal(t, StateDegraded, adapter.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unloaded", StateUnloaded.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "degraded", StateDegraded.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestSlavicSplit(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "prefix and suffix",
			text: "Prezidentová",
			want: []string{"Pre", "zident", "ová"},
		},
		{
			name: "prefix then chunks",
			text: "prekrásny",
			want: []string{"pre", "krá", "sny"},
		},
		{
			name: "chunks only",
			text: "Modrá",
			want: []string{"Mo", "drá"},
		},
		{
			name: "short word kept whole",
			text: "čaj",
			want: []string{"čaj"},
		},
		{
			name: "whitespace and punctuation",
			text: "čaj, káva!",
			want: []string{"čaj", ",", " ", "káva", "!"},
		},
		{
			name: "empty",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SlavicSplit(tt.text))
		})
	}
}
