package httpserver

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestServeStopsWhenContextCancelled(t *testing.T) {
	srv := New(0, http.NotFoundHandler())
	if srv.Addr() != ":0" {
		t.Fatalf("unexpected addr %q", srv.Addr())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeReportsListenFailure(t *testing.T) {
	srv := New(-1, http.NotFoundHandler())

	select {
	case err := <-serveAsync(srv):
		if err == nil {
			t.Fatal("expected listen error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
}

func serveAsync(srv *Server) <-chan error {
	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background()) }()
	return done
}
