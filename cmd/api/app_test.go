package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-draftsync/internal/config"
	"github.com/imrishuroy/go-draftsync/internal/drafts"
)

func TestNewApp_Backends(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := map[string]func(*config.Config){
		"memory": func(c *config.Config) { c.StoreBackend = config.BackendMemory },
		"sqlite": func(c *config.Config) {
			c.StoreBackend = config.BackendSQLite
			c.SQLitePath = filepath.Join(t.TempDir(), "drafts.db")
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			mutate(&cfg)
			a, err := newApp(context.Background(), cfg, zerolog.Nop())
			if err != nil {
				t.Fatalf("newApp: %v", err)
			}
			defer a.Close()

			r := setupRouter(a.handlerConfig())
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			if w.Code != http.StatusOK {
				t.Fatalf("health: status = %d", w.Code)
			}

			key := drafts.Key{UserID: "u1", FormType: drafts.FormOrganizerRegistration}
			if err := a.store.Upsert(context.Background(), key, drafts.Payload{FormData: map[string]interface{}{"city": "Sendai"}}, time.Now()); err != nil {
				t.Fatalf("upsert: %v", err)
			}
			req := httptest.NewRequest(http.MethodGet, "/drafts/organizer_registration", nil)
			req.Header.Set("X-User-Id", "u1")
			w = httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != http.StatusOK {
				t.Fatalf("get draft: status = %d body=%s", w.Code, w.Body.String())
			}
		})
	}
}

func TestNewApp_SessionRoutesOnlyWhenLocal(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, local := range []bool{false, true} {
		cfg := config.Default()
		cfg.StoreBackend = config.BackendMemory
		cfg.Local = local
		a, err := newApp(context.Background(), cfg, zerolog.Nop())
		if err != nil {
			t.Fatalf("newApp: %v", err)
		}

		r := setupRouter(a.handlerConfig())
		req := httptest.NewRequest(http.MethodPost, "/drafts/organizer_registration/sessions", nil)
		req.Header.Set("X-User-Id", "u1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		want := http.StatusNotFound
		if local {
			want = http.StatusCreated
		}
		if w.Code != want {
			t.Fatalf("local=%v: status = %d, want %d", local, w.Code, want)
		}
		if (a.registry != nil) != local {
			t.Fatalf("local=%v: registry presence mismatch", local)
		}
	}
}

func TestApp_BackgroundStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.StoreBackend = config.BackendMemory
	cfg.Local = true
	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := a.startBackground(ctx)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("background workers did not stop")
	}
}
