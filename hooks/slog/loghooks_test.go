package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/swrcache/errclass"
	"github.com/unkn0wn-root/swrcache/keys"
)

func newBuffered() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestRedactsKeysByDefault(t *testing.T) {
	l, buf := newBuffered()
	h := New(l, Options{})
	h.AuthFailure("/users/u1/profile", errors.New("jwt expired"))

	out := buf.String()
	if strings.Contains(out, "/users/u1/profile") {
		t.Fatalf("key leaked: %s", out)
	}
	if !strings.Contains(out, keys.Hash("/users/u1/profile")) {
		t.Fatalf("expected hashed key: %s", out)
	}
}

func TestShowKeys(t *testing.T) {
	l, buf := newBuffered()
	h := New(l, Options{ShowKeys: true})
	h.MutationRolledBack([]string{"K"}, errclass.Server, errors.New("503"))
	if !strings.Contains(buf.String(), "keys=[K]") {
		t.Fatalf("expected raw key: %s", buf.String())
	}
}

func TestSampling(t *testing.T) {
	l, buf := newBuffered()
	h := New(l, Options{DiscardEvery: 3})
	for i := 0; i < 9; i++ {
		h.FetchDiscarded("k", uint64(i))
	}
	if n := strings.Count(buf.String(), "swrcache.fetch_discarded"); n != 3 {
		t.Fatalf("expected 3 sampled lines, got %d", n)
	}
}

func TestNilLogger(t *testing.T) {
	h := New(nil, Options{})
	h.ColdRejected("k", "corrupt")
	h.FetchSettled("k", 1, errclass.Unknown, nil, 0)
}
