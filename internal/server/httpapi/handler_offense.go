package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/poikeeper/internal/server/fieldmap"
)

func (s *Server) listOffenses(w http.ResponseWriter, r *http.Request) {
	p, err := queryPage(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	page, err := s.svc.Offenses.List(r.Context(), r.URL.Query().Get("q"), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", page)
}

func (s *Server) createOffense(w http.ResponseWriter, r *http.Request) {
	body, err := decodeObject(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	vals, err := fieldmap.ParseInput(fieldmap.Offense, body, fieldmap.ModeCreate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id, _ := identityFrom(r.Context())
	item, err := s.svc.Offenses.Create(r.Context(), id.UserID, vals)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "Offense created", item)
}

func (s *Server) getOffense(w http.ResponseWriter, r *http.Request) {
	offenseID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	item, err := s.svc.Offenses.Get(r.Context(), offenseID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", item)
}

func (s *Server) editOffense(w http.ResponseWriter, r *http.Request) {
	offenseID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	version, vals, err := s.decodePatch(w, r, fieldmap.Offense)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id, _ := identityFrom(r.Context())
	item, log, err := s.svc.Offenses.Edit(r.Context(), id.UserID, offenseID, version, vals)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Offense updated", editResult{Item: item, Changelog: log.String()})
}

func (s *Server) deleteOffense(w http.ResponseWriter, r *http.Request) {
	offenseID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id, _ := identityFrom(r.Context())
	if err := s.svc.Offenses.Delete(r.Context(), id.UserID, offenseID); err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Offense deleted", nil)
}
