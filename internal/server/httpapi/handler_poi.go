package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/dmitrijs2005/poikeeper/internal/server/fieldmap"
	"github.com/dmitrijs2005/poikeeper/internal/server/services"
)

// multipartSlack covers form boundaries and headers around the picture.
const multipartSlack = 64 << 10

type editResult struct {
	Item      *services.Item `json:"item"`
	Changelog string         `json:"changelog"`
}

type pictureResult struct {
	POI *services.Item `json:"poi,omitempty"`
	URL string         `json:"url"`
}

func (s *Server) listPOIs(w http.ResponseWriter, r *http.Request) {
	p, err := queryPage(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	recent, err := queryInt(r, "recent")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	page, err := s.svc.POIs.List(r.Context(), services.POIFilter{
		Pinned: r.URL.Query().Get("pinned") == "true",
		Recent: recent,
		Page:   p,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", page)
}

func (s *Server) createPOI(w http.ResponseWriter, r *http.Request) {
	body, err := decodeObject(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	draft, err := services.ParsePOIDraft(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id, _ := identityFrom(r.Context())
	dossier, err := s.svc.POIs.Create(r.Context(), id.UserID, draft)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "POI created", dossier)
}

func (s *Server) getPOI(w http.ResponseWriter, r *http.Request) {
	poiID, err := pathID(r, "poiID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	dossier, err := s.svc.POIs.Dossier(r.Context(), poiID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", dossier)
}

func (s *Server) editPOI(w http.ResponseWriter, r *http.Request) {
	poiID, err := pathID(r, "poiID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	version, vals, err := s.decodePatch(w, r, fieldmap.POI)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id, _ := identityFrom(r.Context())
	item, log, err := s.svc.POIs.Edit(r.Context(), id.UserID, poiID, version, vals)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "POI updated", editResult{Item: item, Changelog: log.String()})
}

func (s *Server) deletePOI(w http.ResponseWriter, r *http.Request) {
	poiID, err := pathID(r, "poiID")
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
	if err := s.svc.POIs.Delete(r.Context(), id.UserID, poiID, version); err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "POI deleted", nil)
}

func (s *Server) togglePin(w http.ResponseWriter, r *http.Request) {
	poiID, err := pathID(r, "poiID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id, _ := identityFrom(r.Context())
	item, msg, err := s.svc.POIs.TogglePin(r.Context(), id.UserID, poiID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, msg, item)
}

func (s *Server) poiStatistics(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.POIs.Statistics(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", st)
}

func (s *Server) uploadPicture(w http.ResponseWriter, r *http.Request) {
	poiID, err := pathID(r, "poiID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	data, err := s.readPicture(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id, _ := identityFrom(r.Context())
	item, url, err := s.svc.Pictures.Upload(r.Context(), id.UserID, poiID, data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Profile picture updated", pictureResult{POI: item, URL: url})
}

func (s *Server) pictureURL(w http.ResponseWriter, r *http.Request) {
	poiID, err := pathID(r, "poiID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	url, err := s.svc.Pictures.URL(r.Context(), poiID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", pictureResult{URL: url})
}

// readPicture extracts the "picture" part of a multipart upload. Anything
// over the configured limit is cut at limit+1 bytes so that the size check
// in the picture service rejects it.
func (s *Server) readPicture(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxPictureBytes+multipartSlack)
	if err := r.ParseMultipartForm(s.maxPictureBytes + multipartSlack); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, badRequest("picture is too large")
		}
		return nil, badRequest("expected a multipart form with a picture field")
	}
	f, _, err := r.FormFile("picture")
	if err != nil {
		return nil, badRequest("expected a multipart form with a picture field")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.maxPictureBytes+1))
	if err != nil {
		return nil, badRequest("cannot read picture")
	}
	return data, nil
}

// decodePatch reads a partial update body for e.
func (s *Server) decodePatch(w http.ResponseWriter, r *http.Request, e *fieldmap.Entity) (int64, fieldmap.Values, error) {
	body, err := decodeObject(w, r)
	if err != nil {
		return 0, nil, err
	}
	version, err := takeVersion(body)
	if err != nil {
		return 0, nil, err
	}
	vals, err := fieldmap.ParseInput(e, body, fieldmap.ModePatch)
	if err != nil {
		return 0, nil, err
	}
	return version, vals, nil
}
