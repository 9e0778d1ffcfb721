package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dropDatabas3/idbroker/internal/authority"
	"github.com/dropDatabas3/idbroker/internal/cache"
	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/manager"
	"github.com/dropDatabas3/idbroker/internal/realm"
	"github.com/dropDatabas3/idbroker/internal/store/memory"
)

type liveStub struct{ key core.ProviderKey }

func (s *liveStub) Key() core.ProviderKey { return s.key }
func (s *liveStub) AuthorityID() string   { return "fake" }
func (s *liveStub) Type() string          { return core.TypeIdentity }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	st := memory.New()
	auth := authority.NewBase("fake", core.TypeIdentity, "", nil,
		func(_ context.Context, cp *core.ConfigurableProvider) (authority.LiveProvider, error) {
			return &liveStub{key: cp.Key()}, nil
		})
	realms := realm.New(st.Realms(), cache.New(cache.Config{Driver: "memory"}))
	mgr := manager.New(realms, st.Providers(), authority.NewRegistry(auth))
	return Router(Deps{Realms: realms, Manager: mgr})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRealmLifecycleOverHTTP(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/realms", `{"slug":"acme-corp","name":"ACME"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create realm: status %d, body %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodGet, "/realms/acme-corp", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get realm: status %d", rec.Code)
	}
	var got core.Realm
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Slug != "acme-corp" || got.Name != "ACME" {
		t.Fatalf("realm inesperado: %+v", got)
	}

	// duplicado → 409
	rec = do(t, h, http.MethodPost, "/realms", `{"slug":"acme-corp"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("realm duplicado: status %d", rec.Code)
	}

	// slug inválido → 400
	rec = do(t, h, http.MethodPost, "/realms", `{"slug":"Con Espacios"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("slug inválido: status %d", rec.Code)
	}

	rec = do(t, h, http.MethodDelete, "/realms/acme-corp", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete realm: status %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/realms/acme-corp", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("realm borrado sigue respondiendo: status %d", rec.Code)
	}
}

func TestProviderLifecycleOverHTTP(t *testing.T) {
	h := newTestRouter(t)

	if rec := do(t, h, http.MethodPost, "/realms", `{"slug":"acme-corp"}`); rec.Code != http.StatusCreated {
		t.Fatalf("seed realm: status %d", rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/realms/acme-corp/providers",
		`{"type":"identity","authority":"fake","configuration":{"endpoint":"x"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create provider: status %d, body %s", rec.Code, rec.Body)
	}
	var cp core.ConfigurableProvider
	if err := json.Unmarshal(rec.Body.Bytes(), &cp); err != nil {
		t.Fatal(err)
	}
	if cp.Provider == "" || cp.Enabled || cp.Registered {
		t.Fatalf("el alta debe quedar deshabilitada y sin registrar: %+v", cp)
	}
	base := "/realms/acme-corp/providers/" + cp.Provider

	rec = do(t, h, http.MethodGet, base+"/status", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"registered":false`) {
		t.Fatalf("status inicial: %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodPost, base+"/register", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("register: status %d, body %s", rec.Code, rec.Body)
	}
	// registrar dos veces → 409
	rec = do(t, h, http.MethodPost, base+"/register", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("doble register: status %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, base+"/status", "")
	if !strings.Contains(rec.Body.String(), `"registered":true`) {
		t.Fatalf("status post-register: %s", rec.Body)
	}

	rec = do(t, h, http.MethodPost, base+"/unregister", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unregister: status %d", rec.Code)
	}
	rec = do(t, h, http.MethodDelete, base, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, base, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("provider borrado sigue respondiendo: status %d", rec.Code)
	}
}

func TestUnknownAuthorityOverHTTP(t *testing.T) {
	h := newTestRouter(t)
	if rec := do(t, h, http.MethodPost, "/realms", `{"slug":"acme-corp"}`); rec.Code != http.StatusCreated {
		t.Fatal("seed realm")
	}
	rec := do(t, h, http.MethodPost, "/realms/acme-corp/providers",
		`{"type":"identity","authority":"no-existe"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("authority desconocida: status %d, body %s", rec.Code, rec.Body)
	}
}
