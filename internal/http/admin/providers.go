package admin

import (
	"encoding/json"
	"net/http"

	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/manager"
	"github.com/dropDatabas3/idbroker/internal/observability/logger"
)

type providerController struct {
	manager *manager.Manager
}

func (c *providerController) list(w http.ResponseWriter, r *http.Request) {
	typ := r.URL.Query().Get("type")
	out, err := c.manager.List(r.Context(), realmParam(r), typ)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *providerController) get(w http.ResponseWriter, r *http.Request) {
	out, err := c.manager.Get(r.Context(), realmParam(r), providerParam(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *providerController) create(w http.ResponseWriter, r *http.Request) {
	var draft core.ConfigurableProvider
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	out, err := c.manager.Add(r.Context(), realmParam(r), draft)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (c *providerController) update(w http.ResponseWriter, r *http.Request) {
	var draft core.ConfigurableProvider
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	out, err := c.manager.Update(r.Context(), realmParam(r), providerParam(r), draft)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *providerController) delete(w http.ResponseWriter, r *http.Request) {
	if err := c.manager.Delete(r.Context(), realmParam(r), providerParam(r)); err != nil {
		writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *providerController) register(w http.ResponseWriter, r *http.Request) {
	out, err := c.manager.Register(r.Context(), realmParam(r), providerParam(r))
	if err != nil {
		logger.From(r.Context()).Warn("register failed",
			logger.Realm(realmParam(r)), logger.Provider(providerParam(r)), logger.Err(err))
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *providerController) unregister(w http.ResponseWriter, r *http.Request) {
	out, err := c.manager.Unregister(r.Context(), realmParam(r), providerParam(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// status retorna solo el hecho observado: si hay instancia viva ahora.
func (c *providerController) status(w http.ResponseWriter, r *http.Request) {
	registered, err := c.manager.IsRegistered(r.Context(), realmParam(r), providerParam(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"registered": registered})
}
