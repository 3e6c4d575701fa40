package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"friendly_eats/internal/adapters/auth"
	"friendly_eats/internal/adapters/observability"
	"friendly_eats/internal/app"
	"friendly_eats/internal/domain"
)

const maxBodyBytes = 64 << 10

type Handlers struct {
	Q    *app.QueryService
	C    *app.CommandService
	S    *app.SummaryService
	Auth *auth.Issuer

	// SecureCookies marks the session cookie Secure (everything but dev).
	SecureCookies bool
	// KeepAlive is the comment interval on live streams; 0 means 25s.
	KeepAlive time.Duration
}

type problem struct {
	Type   string            `json:"type"`
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Group(func(r chi.Router) {
		r.Use(h.Auth.Middleware)

		// live listings stay open; no request timeout
		r.Get("/v1/restaurants/stream", h.streamRestaurants)

		r.Group(func(r chi.Router) {
			r.Use(Timeout(15 * time.Second))
			r.Get("/v1/restaurants", h.listRestaurants)
			r.Get("/v1/restaurants/{id}", h.getRestaurant)
			r.Get("/v1/restaurants/{id}/reviews", h.listReviews)
			r.Post("/v1/session", h.createSession)
			r.Delete("/v1/session", h.deleteSession)

			r.Group(func(r chi.Router) {
				r.Use(requireUser)
				r.Post("/v1/restaurants", h.createRestaurant)
				r.Post("/v1/restaurants/{id}/reviews", h.addReview)
			})
		})

		// the text service may take a while
		r.With(Timeout(45*time.Second)).Get("/v1/restaurants/{id}/summary", h.getSummary)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	writeProblemBody(w, problem{Type: "about:blank", Title: title, Status: status, Detail: detail})
}

func writeProblemBody(w http.ResponseWriter, p problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps domain errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeProblemBody(w, problem{Type: "about:blank", Title: "Validation Failed", Status: http.StatusBadRequest, Detail: ve.Error(), Fields: ve.Fields})
	case errors.Is(err, domain.ErrValidation):
		writeProblem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "restaurant not found")
	case errors.Is(err, domain.ErrExists):
		writeProblem(w, http.StatusConflict, "Conflict", "resource already exists")
	case errors.Is(err, domain.ErrTransaction):
		w.Header().Set("Retry-After", "1")
		writeProblem(w, http.StatusServiceUnavailable, "Busy", "the write could not be committed; please re-submit")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return false
	}
	return true
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		// Log but don't fail the whole response; return empty ETag and best-effort body.
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCached writes v as JSON, answering 304 when the client already has it.
func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	// If client already has this version, short-circuit.
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag) // include ETag on 304
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to write body")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

func filtersFrom(r *http.Request) (domain.Filters, error) {
	q := r.URL.Query()
	return app.ParseFilters(q.Get("category"), q.Get("city"), q.Get("price"), q.Get("sort"))
}

func (h *Handlers) listRestaurants(w http.ResponseWriter, r *http.Request) {
	f, err := filtersFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Q.FetchOnce(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, out)
}

func (h *Handlers) getRestaurant(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.GetRestaurant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, out)
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := app.DefaultReviewLimit
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > app.MaxReviewLimit {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
			return
		}
		limit = l
	}

	if _, err := h.Q.GetRestaurant(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Q.ListReviews(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, out)
}

func (h *Handlers) getSummary(w http.ResponseWriter, r *http.Request) {
	out, err := h.S.Summarize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) createRestaurant(w http.ResponseWriter, r *http.Request) {
	var in domain.NewRestaurant
	if !decodeBody(w, r, &in) {
		return
	}
	out, err := h.C.CreateRestaurant(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/restaurants/"+out.ID)
	writeJSON(w, http.StatusCreated, out)
}

type reviewBody struct {
	Text   string `json:"text"`
	Rating int    `json:"rating"`
}

func (h *Handlers) addReview(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.FromContext(r.Context())
	var body reviewBody
	if !decodeBody(w, r, &body) {
		return
	}
	out, err := h.C.AddReview(r.Context(), chi.URLParam(r, "id"), domain.ReviewInput{
		Text:     body.Text,
		Rating:   body.Rating,
		UserID:   user.ID,
		UserName: user.Name,
	})
	if err == nil || errors.Is(err, domain.ErrTransaction) {
		observability.ObserveTxn(err)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	observability.ObserveReview(out.Rating)
	writeJSON(w, http.StatusCreated, out)
}

type sessionBody struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      auth.User `json:"user"`
}

// createSession is the development sign-in: it trusts the posted identity.
func (h *Handlers) createSession(w http.ResponseWriter, r *http.Request) {
	var body sessionBody
	if !decodeBody(w, r, &body) {
		return
	}
	u := auth.User{ID: strings.TrimSpace(body.UserID), Name: strings.TrimSpace(body.UserName)}
	if u.ID == "" {
		writeError(w, r, domain.NewValidationError("userId", "is required"))
		return
	}
	tok, exp, err := h.Auth.Issue(u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    tok,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusCreated, sessionResponse{Token: tok, ExpiresAt: exp, User: u})
}

func (h *Handlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
