package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/poikeeper/internal/common"
	"github.com/dmitrijs2005/poikeeper/internal/server/fieldmap"
	"github.com/dmitrijs2005/poikeeper/internal/server/services"
)

// childScope resolves /pois/{poiID}/{collection}.
func childScope(r *http.Request) (services.Scope, error) {
	poiID, err := pathID(r, "poiID")
	if err != nil {
		return services.Scope{}, err
	}
	e, found := fieldmap.ChildCollection(chi.URLParam(r, "collection"))
	if !found {
		return services.Scope{}, common.NewError(common.ErrorNotFound, "unknown collection")
	}
	return services.Scope{Entity: e, ParentID: poiID}, nil
}

func (s *Server) listChildren(w http.ResponseWriter, r *http.Request) {
	sc, err := childScope(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := queryPage(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	items, err := s.svc.Records.List(r.Context(), sc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", services.Paginate(items, p))
}

func (s *Server) createChild(w http.ResponseWriter, r *http.Request) {
	sc, err := childScope(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := decodeObject(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	refs, err := fieldmap.ParseRefs(body, services.OtherRefs(sc.Entity)...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	vals, err := fieldmap.ParseInput(sc.Entity, body, fieldmap.ModeCreate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id, _ := identityFrom(r.Context())
	item, err := s.svc.Records.Create(r.Context(), id.UserID, sc, refs, vals)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "", item)
}

func (s *Server) getChild(w http.ResponseWriter, r *http.Request) {
	sc, childID, err := childTarget(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	item, err := s.svc.Records.Get(r.Context(), sc, childID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", item)
}

func (s *Server) editChild(w http.ResponseWriter, r *http.Request) {
	sc, childID, err := childTarget(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	version, vals, err := s.decodePatch(w, r, sc.Entity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id, _ := identityFrom(r.Context())
	item, log, err := s.svc.Records.Edit(r.Context(), id.UserID, sc, childID, version, vals)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", editResult{Item: item, Changelog: log.String()})
}

func (s *Server) deleteChild(w http.ResponseWriter, r *http.Request) {
	sc, childID, err := childTarget(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	version, err := queryVersion(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id, _ := identityFrom(r.Context())
	if err := s.svc.Records.Delete(r.Context(), id.UserID, sc, childID, version); err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", nil)
}

func childTarget(r *http.Request) (services.Scope, int64, error) {
	sc, err := childScope(r)
	if err != nil {
		return services.Scope{}, 0, err
	}
	id, err := pathID(r, "id")
	if err != nil {
		return services.Scope{}, 0, err
	}
	return sc, id, nil
}

func (s *Server) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	p, err := queryPage(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	page, err := s.svc.Records.AuditLogs(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", page)
}
