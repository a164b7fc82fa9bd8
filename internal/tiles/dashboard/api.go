package dashboard

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mschirtzinger/tileboard/internal/tiles/assets"
	"github.com/mschirtzinger/tileboard/internal/tiles/edit"
	"github.com/mschirtzinger/tileboard/internal/tiles/repo"
	"github.com/mschirtzinger/tileboard/internal/tiles/schema"
	tilesync "github.com/mschirtzinger/tileboard/internal/tiles/sync"
)

// maxUploadBody bounds an image upload request. It is well above the image
// limit so oversized images are read and rejected with a clear error.
const maxUploadBody = 2*edit.MaxImageSize + 1<<20

// Routes returns the HTTP handler for every dashboard route.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: s.logger, NoColor: true}))
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	// Viewer and admin collection routes
	r.Get("/api/tiles", s.getTiles)
	r.Put("/api/tiles", s.saveTiles)
	r.Post("/api/tiles/reset", s.resetTiles)
	r.Delete("/api/error", s.dismissError)
	r.Get("/api/icons", s.getIcons)

	if s.sessions != nil {
		r.Route("/api/sessions", func(r chi.Router) {
			r.Post("/", s.openSession)
			r.Route("/{sid}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Delete("/", s.discardSession)
				r.Post("/tiles", s.addTile)
				r.Patch("/tiles/{id}", s.updateField)
				r.Delete("/tiles/{id}", s.deleteTile)
				r.Put("/tiles/{id}/image", s.attachImage)
				r.Delete("/tiles/{id}/image", s.detachImage)
				r.Post("/reorder", s.reorder)
				r.Post("/drag", s.drag)
				r.Post("/commit", s.commit)
			})
		})
	}

	if s.assets != nil {
		prefix := strings.TrimRight(s.assetsPath, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix, s.assets.Handler()))
	}

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, edit.ErrUploadTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, repo.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, tilesync.ErrBusy), errors.Is(err, edit.ErrUploadInFlight), errors.Is(err, edit.ErrCommitInFlight):
		return http.StatusConflict
	case errors.Is(err, edit.ErrSessionClosed):
		return http.StatusNotFound
	case errors.Is(err, repo.ErrStoreUnavailable), errors.Is(err, assets.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Printf("Request failed: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func (s *Server) getTiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) saveTiles(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tiles []schema.Tile `json:"tiles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Tiles == nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := s.controller.Save(r.Context(), req.Tiles); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) resetTiles(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Reset(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) dismissError(w http.ResponseWriter, r *http.Request) {
	s.controller.DismissError()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getIcons(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, schema.Icons())
}

// session resolves {sid}, writing a 404 when it is unknown or closed.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (string, *edit.Session, bool) {
	sid := chi.URLParam(r, "sid")
	sess, err := s.sessions.Get(sid)
	if err != nil {
		s.writeError(w, err)
		return "", nil, false
	}
	return sid, sess, true
}

func writeSession(w http.ResponseWriter, status int, sid string, sess *edit.Session) {
	state := sess.State()
	state.ID = sid
	writeJSON(w, status, state)
}

func (s *Server) openSession(w http.ResponseWriter, r *http.Request) {
	sid, sess := s.sessions.Open()
	writeSession(w, http.StatusCreated, sid, sess)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sid, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeSession(w, http.StatusOK, sid, sess)
}

func (s *Server) discardSession(w http.ResponseWriter, r *http.Request) {
	s.sessions.Discard(chi.URLParam(r, "sid"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addTile(w http.ResponseWriter, r *http.Request) {
	sid, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if _, err := sess.AddTile(); err != nil {
		s.writeError(w, err)
		return
	}
	writeSession(w, http.StatusCreated, sid, sess)
}

// ignoreNotFound drops edit.ErrNotFound, which is a benign no-op.
func ignoreNotFound(err error) error {
	if errors.Is(err, edit.ErrNotFound) {
		return nil
	}
	return err
}

func (s *Server) updateField(w http.ResponseWriter, r *http.Request) {
	sid, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Field string `json:"field"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	field, err := schema.ParseField(req.Field)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := ignoreNotFound(sess.UpdateField(chi.URLParam(r, "id"), field, req.Value)); err != nil {
		if errors.Is(err, edit.ErrSessionClosed) || errors.Is(err, edit.ErrCommitInFlight) {
			s.writeError(w, err)
			return
		}
		badRequest(w, err.Error())
		return
	}
	writeSession(w, http.StatusOK, sid, sess)
}

func (s *Server) deleteTile(w http.ResponseWriter, r *http.Request) {
	sid, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := ignoreNotFound(sess.DeleteTile(chi.URLParam(r, "id"))); err != nil {
		s.writeError(w, err)
		return
	}
	writeSession(w, http.StatusOK, sid, sess)
}

func (s *Server) reorder(w http.ResponseWriter, r *http.Request) {
	sid, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		From int `json:"from"`
		To   int `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := sess.Reorder(req.From, req.To); err != nil {
		s.writeError(w, err)
		return
	}
	writeSession(w, http.StatusOK, sid, sess)
}

func (s *Server) drag(w http.ResponseWriter, r *http.Request) {
	sid, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Action string `json:"action"`
		Index  *int   `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	index := -1
	if req.Index != nil {
		index = *req.Index
	}

	var err error
	switch req.Action {
	case "start":
		_, err = sess.DragStart(index)
	case "over":
		_, err = sess.DragOver(index)
	case "drop":
		_, err = sess.Drop(index)
	case "cancel":
		_, err = sess.DragCancel()
	default:
		badRequest(w, "action must be one of start, over, drop, cancel")
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeSession(w, http.StatusOK, sid, sess)
}

func (s *Server) attachImage(w http.ResponseWriter, r *http.Request) {
	sid, sess, ok := s.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.writeError(w, edit.ErrUploadTooLarge)
			return
		}
		badRequest(w, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, edit.MaxImageSize+1))
	if err != nil {
		s.writeError(w, err)
		return
	}

	if _, err := sess.AttachImage(r.Context(), chi.URLParam(r, "id"), header.Filename, data); ignoreNotFound(err) != nil {
		s.writeError(w, err)
		return
	}
	writeSession(w, http.StatusOK, sid, sess)
}

func (s *Server) detachImage(w http.ResponseWriter, r *http.Request) {
	sid, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := ignoreNotFound(sess.DetachImage(r.Context(), chi.URLParam(r, "id"))); err != nil {
		s.writeError(w, err)
		return
	}
	writeSession(w, http.StatusOK, sid, sess)
}

func (s *Server) commit(w http.ResponseWriter, r *http.Request) {
	sid, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Commit(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.sessions.Discard(sid)
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}
