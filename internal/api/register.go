package api

import (
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/nerrad567/hello-hal/internal/driver"
	"github.com/nerrad567/hello-hal/internal/register"
)

// registerBodyLimit admits one page; the attribute keeps at most a page
// minus one.
const registerBodyLimit = register.PageSize

// RegisterResponse is the body of GET and PUT /register.
type RegisterResponse struct {
	Value    int32  `json:"value"`
	Text     string `json:"text,omitempty"`
	Consumed *int   `json:"consumed,omitempty"`
}

func (s *Server) handleGetRegister(w http.ResponseWriter, r *http.Request) {
	store := s.drv.Store()
	if store == nil {
		writeUnavailable(w, "device detached")
		return
	}

	text, err := store.Show(r.Context())
	if err != nil {
		s.writeRegisterError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, RegisterResponse{
		Value: register.ParseLeading([]byte(text)),
		Text:  text,
	})
}

// handleSetRegister writes the raw body to the class attribute as the
// device owner.
func (s *Server) handleSetRegister(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "body exceeds one page")
			return
		}
		writeBadRequest(w, "reading body failed")
		return
	}

	cfg := s.drv.Config()
	node, err := s.drv.Namespace().Lookup(cfg.AttrPath())
	if err != nil {
		s.writeRegisterError(w, r, err)
		return
	}

	caller := driver.Caller{UID: cfg.UID, GID: cfg.GID, Session: "api-" + requestID(r.Context())}
	f, err := node.Open(caller, os.O_RDWR)
	if err != nil {
		s.writeRegisterError(w, r, err)
		return
	}
	defer f.Close() //nolint:errcheck // always nil

	n, err := f.Write(r.Context(), register.Bytes(body))
	if err != nil {
		s.writeRegisterError(w, r, err)
		return
	}

	page := make(register.Bytes, register.PageSize)
	m, err := f.Read(r.Context(), page)
	if err != nil {
		s.writeRegisterError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, RegisterResponse{
		Value:    register.ParseLeading(page[:m]),
		Text:     string(page[:m]),
		Consumed: &n,
	})
}

// writeRegisterError maps driver and register errors onto HTTP statuses.
func (s *Server) writeRegisterError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, register.ErrInterrupted):
		writeUnavailable(w, "interrupted")
	case errors.Is(err, driver.ErrNoDevice):
		writeUnavailable(w, "device detached")
	case errors.Is(err, driver.ErrPermission):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "permission denied")
	case errors.Is(err, register.ErrFault):
		writeBadRequest(w, "bad transfer")
	default:
		s.logger.Error("register request failed",
			"path", r.URL.Path,
			"request_id", requestID(r.Context()),
			"error", err,
		)
		writeInternalError(w, "register request failed")
	}
}
