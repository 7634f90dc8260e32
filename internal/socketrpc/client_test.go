package socketrpc_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinytelemetry/logdex/internal/logstore"
	"github.com/tinytelemetry/logdex/internal/model"
	"github.com/tinytelemetry/logdex/internal/socketrpc"
)

func startTestServer(t *testing.T) (string, *socketrpc.Server, *logstore.Store) {
	t.Helper()
	store, err := logstore.Open(nil, logstore.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sockPath := filepath.Join(t.TempDir(), "test.sock")
	srv := socketrpc.NewServer(sockPath, store)
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	return sockPath, srv, store
}

func TestRoundtrip(t *testing.T) {
	sockPath, srv, store := startTestServer(t)
	defer srv.Stop()

	for _, rec := range []model.LogRecord{
		{Level: model.LevelError, Message: "server-500 crashed", ResourceID: "server-1234"},
		{Level: model.LevelInfo, Message: "server restarted"},
	} {
		if _, err := store.Ingest(rec); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}

	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	t.Run("FetchAll", func(t *testing.T) {
		recs, err := client.FetchAll()
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 2 || recs[0].Index != 1 || recs[1].Index != 2 {
			t.Fatalf("unexpected records: %+v", recs)
		}
	})

	t.Run("FetchByLevel", func(t *testing.T) {
		recs, err := client.FetchByLevel("error")
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 1 || recs[0].Record.ResourceID != "server-1234" {
			t.Fatalf("unexpected records: %+v", recs)
		}
	})

	t.Run("SearchByWord", func(t *testing.T) {
		recs, err := client.SearchByWord("SERVER")
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 2 {
			t.Fatalf("unexpected records: %+v", recs)
		}
		recs, err = client.SearchByWord("500")
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 0 {
			t.Fatalf("numbers must not be searchable: %+v", recs)
		}
	})

	t.Run("Get", func(t *testing.T) {
		rec, ok, err := client.Get(2)
		if err != nil {
			t.Fatal(err)
		}
		if !ok || rec.Message != "server restarted" {
			t.Fatalf("Get(2) = %+v, %v", rec, ok)
		}
		if _, ok, err := client.Get(3); err != nil || ok {
			t.Fatalf("Get(3) = ok %v, err %v", ok, err)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		stats, err := client.Stats()
		if err != nil {
			t.Fatal(err)
		}
		if stats.Records != 2 || stats.Buckets["message"] != 2 {
			t.Fatalf("unexpected stats: %+v", stats)
		}
	})

	t.Run("Rebuild", func(t *testing.T) {
		stats, err := client.Rebuild()
		if err != nil {
			t.Fatal(err)
		}
		if stats.Records != 2 {
			t.Fatalf("unexpected rebuild stats: %+v", stats)
		}
	})

	t.Run("InvalidParams", func(t *testing.T) {
		_, err := client.FetchByLevel("fatal")
		var rpcErr *socketrpc.RPCError
		if !errors.As(err, &rpcErr) || !rpcErr.IsInvalidParams() {
			t.Fatalf("FetchByLevel(fatal) error = %v, want invalid params", err)
		}
		_, err = client.SearchByWord("  ")
		if !errors.As(err, &rpcErr) || !rpcErr.IsInvalidParams() {
			t.Fatalf("SearchByWord(blank) error = %v, want invalid params", err)
		}
	})
}

func TestDialFailure(t *testing.T) {
	_, err := socketrpc.Dial(filepath.Join(t.TempDir(), "nonexistent.sock"))
	if err == nil {
		t.Fatal("expected error dialing nonexistent socket")
	}
}

func TestServerStopCleansSocket(t *testing.T) {
	sockPath, srv, _ := startTestServer(t)
	srv.Stop()

	// Socket file should be removed.
	if _, err := socketrpc.Dial(sockPath); err == nil {
		t.Fatal("expected dial to fail after server stop")
	}
}

func TestStartRefusesLiveSocket(t *testing.T) {
	sockPath, srv, store := startTestServer(t)
	defer srv.Stop()

	second := socketrpc.NewServer(sockPath, store)
	if err := second.Start(); err == nil {
		second.Stop()
		t.Fatal("expected second server on the same socket to fail")
	}
}

func TestStopIdempotent(t *testing.T) {
	_, srv, _ := startTestServer(t)

	srv.Stop()
	srv.Stop()
}

func TestStopClosesConns(t *testing.T) {
	sockPath, srv, _ := startTestServer(t)
	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if _, err := client.Stats(); err != nil {
		t.Fatalf("Stats before stop: %v", err)
	}

	done := make(chan struct{})
	go func() {
		srv.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop hung on an idle client connection")
	}

	if _, err := client.Stats(); err == nil {
		t.Fatal("expected client call to fail after server stop")
	}
}
