package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	logx "dayplanner/pkg/logx"
)

func TestIsLoopbackAddr(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:6900": true,
		"localhost:80":   true,
		"[::1]:6900":     true,
		"0.0.0.0:6900":   false,
		"10.0.0.5:6900":  false,
		":6900":          false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestStartServeStop(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	})
	s := New(Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, h, logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.Start(ctx)
	s.Start(ctx) // idempotent

	select {
	case <-s.Ready():
	case <-ctx.Done():
		t.Fatal("server never became ready")
	}

	resp, err := http.Get("http://" + s.Addr() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(b) != "hello" {
		t.Fatalf("body = %q", b)
	}

	s.Stop(ctx)
	if s.Supervisor() != nil || s.Addr() != "" {
		t.Fatal("server state not cleared after Stop")
	}
}
