package admin

import (
	"encoding/json"
	"net/http"

	"github.com/dropDatabas3/idbroker/internal/core"
	"github.com/dropDatabas3/idbroker/internal/observability/logger"
	"github.com/dropDatabas3/idbroker/internal/realm"
)

type realmController struct {
	realms *realm.Service
}

func (c *realmController) list(w http.ResponseWriter, r *http.Request) {
	out, err := c.realms.List(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *realmController) get(w http.ResponseWriter, r *http.Request) {
	out, err := c.realms.Get(r.Context(), realmParam(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *realmController) create(w http.ResponseWriter, r *http.Request) {
	var draft core.Realm
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	out, err := c.realms.Add(r.Context(), draft)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	logger.From(r.Context()).Info("realm created", logger.Realm(out.Slug))
	writeJSON(w, http.StatusCreated, out)
}

func (c *realmController) update(w http.ResponseWriter, r *http.Request) {
	var draft core.Realm
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	out, err := c.realms.Update(r.Context(), realmParam(r), draft)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *realmController) delete(w http.ResponseWriter, r *http.Request) {
	if err := c.realms.Delete(r.Context(), realmParam(r)); err != nil {
		writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
