package server

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/conneroisu/burrow/internal/build"
	"github.com/conneroisu/burrow/internal/compiler"
	"github.com/conneroisu/burrow/internal/errors"
	"github.com/conneroisu/burrow/internal/hydrate"
	"github.com/conneroisu/burrow/internal/validation"
	"github.com/conneroisu/burrow/internal/version"
)

// serializeRequest is the body of POST /api/serialize.
type serializeRequest struct {
	Source string `json:"source"`
	compiler.SerializeOptions
}

// errorResponse is the JSON body of every failed API call.
type errorResponse struct {
	Type    string               `json:"type"`
	Code    string               `json:"code"`
	Message string               `json:"message"`
	Compile *errors.CompileError `json:"compile,omitempty"`
	Context map[string]any       `json:"context,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.svc.Cache().Stats()
	health := map[string]any{
		"status":    "healthy",
		"ready":     s.svc.Ready(),
		"version":   version.Short(),
		"timestamp": time.Now().UTC(),
		"cache": map[string]any{
			"entries":  stats.Size,
			"max_size": stats.MaxSize,
		},
		"clients": s.hub.ConnectedClients(),
	}
	s.writeJSON(w, r, http.StatusOK, health)
}

func (s *Server) handleSerialize(w http.ResponseWriter, r *http.Request) {
	var req serializeRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.svc.SerializeWithCache(r.Context(), req.Source, req.SerializeOptions)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, result)
}

// handleRender hydrates a serialized result. Content that fails to hydrate
// renders as the fallback; the response is still 200.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var props hydrate.Props
	if !s.decode(w, r, &props) {
		return
	}

	var buf bytes.Buffer
	if err := s.hydrator.Render(r.Context(), &buf, props); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := s.svc.Cache().Stats()
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"entries":     stats.Size,
		"max_size":    stats.MaxSize,
		"ttl":         stats.TTL.String(),
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"sets":        stats.Sets,
		"evictions":   stats.Evictions,
		"expirations": stats.Expirations,
		"hit_rate":    stats.HitRate(),
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.svc.Cache().Clear()

	s.pagesMutex.Lock()
	clear(s.pages)
	s.pagesMutex.Unlock()

	s.logger.Info(r.Context(), "Cache cleared")
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"message":   "Cache cleared successfully",
		"timestamp": time.Now().Unix(),
	})
}

// handleIndex lists the pages in the content directory.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sources, err := build.Scan(s.cfg.Server.ContentDir)
	if err != nil {
		s.logger.Warn(r.Context(), err, "Failed to list content", "dir", s.cfg.Server.ContentDir)
	}
	names := make([]string, 0, len(sources))
	for _, src := range sources {
		names = append(names, src.Name)
	}

	s.writePage(w, r, http.StatusOK, PageData{
		Title:      "Pages",
		Body:       build.Index(names, func(name string) string { return "/page/" + name }),
		LiveReload: s.cfg.Server.LiveReload,
	})
}

// handlePage renders <content_dir>/<name>.mdx, or .md when no .mdx exists.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := validation.ValidatePageName(name); err != nil {
		s.logger.Debug(r.Context(), "Rejected page name", "name", name, "error", err.Error())
		http.Error(w, "Invalid page name", http.StatusBadRequest)
		return
	}

	var (
		file   string
		source []byte
		err    error
	)
	for _, ext := range []string{".mdx", ".md"} {
		file = filepath.Join(s.cfg.Server.ContentDir, filepath.FromSlash(name)+ext)
		source, err = os.ReadFile(file)
		if err == nil || !stderrors.Is(err, fs.ErrNotExist) {
			break
		}
	}
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error(r.Context(), err, "Failed to read page", "file", file)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	opts := compiler.SerializeOptions{Compile: compiler.Options{Filepath: file}}
	if s.renderDocument(w, r, name, string(source), opts) {
		s.remember(name, s.svc.Key(string(source), opts))
	}
}

// handleRemote renders MDX fetched from an allowed host.
func (s *Server) handleRemote(w http.ResponseWriter, r *http.Request) {
	src := r.URL.Query().Get("src")
	if src == "" {
		http.Error(w, "Missing src parameter", http.StatusBadRequest)
		return
	}

	source, err := s.fetchRemote(r.Context(), src)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case stderrors.Is(err, validation.ErrInvalidURL):
			status = http.StatusBadRequest
		case stderrors.Is(err, validation.ErrHostNotAllowed):
			status = http.StatusForbidden
		case stderrors.Is(err, errSourceTooLarge):
			status = http.StatusRequestEntityTooLarge
		}
		s.logger.Warn(r.Context(), err, "Remote fetch failed", "src", src)
		http.Error(w, http.StatusText(status), status)
		return
	}

	opts := compiler.SerializeOptions{Compile: compiler.Options{Filepath: src}}
	s.renderDocument(w, r, path.Base(src), source, opts)
}

// renderDocument serializes source through the cache and writes it as a
// full page. Compile errors are shown as an error page.
func (s *Server) renderDocument(w http.ResponseWriter, r *http.Request, name, source string, opts compiler.SerializeOptions) bool {
	result, err := s.svc.SerializeWithCache(r.Context(), source, opts)
	if err != nil {
		if errors.IsCompilation(err) {
			s.logger.Warn(r.Context(), err, "Page failed to compile", errors.Fields(err)...)
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(errors.FormatErrorsForBrowser(err)))
			return false
		}
		s.writeError(w, r, err)
		return false
	}

	remote := s.hydrator.Remote(hydrate.Props{
		CompiledCode: result.CompiledCode,
		Scope:        result.Scope,
		Lazy:         s.cfg.Hydrate.Lazy,
	})
	s.writePage(w, r, http.StatusOK, PageData{
		Title:      build.Title(result.Frontmatter, name),
		Body:       remote,
		LiveReload: s.cfg.Server.LiveReload,
	})
	return true
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, status int, data PageData) {
	var buf bytes.Buffer
	if err := Page(data).Render(r.Context(), &buf); err != nil {
		s.logger.Error(r.Context(), err, "Failed to render page", "title", data.Title)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// decode reads a JSON body of at most MaxBodyBytes into v.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			s.writeJSON(w, r, http.StatusRequestEntityTooLarge, errorResponse{
				Type:    string(errors.TypeConfig),
				Code:    "ERR_BODY_TOO_LARGE",
				Message: "request body too large",
			})
			return false
		}
		s.writeJSON(w, r, http.StatusBadRequest, errorResponse{
			Type:    "request",
			Code:    "ERR_BAD_REQUEST",
			Message: "invalid JSON body: " + err.Error(),
		})
		return false
	}
	return true
}

// writeError maps err to a status code: compilation and evaluation failures
// are 422, an unavailable backend or an abandoned request is 503, a deadline
// is 504 and anything else is 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{
		Type:    string(errors.TypeInternal),
		Code:    errors.CodeInternal,
		Message: err.Error(),
	}
	var e *errors.Error
	if stderrors.As(err, &e) {
		resp.Type = string(e.Type)
		resp.Code = e.Code
		resp.Message = e.Message
		resp.Context = e.Context
	}
	var ce *errors.CompileError
	if stderrors.As(err, &ce) {
		resp.Compile = ce
		resp.Message = ce.Message
	}

	status := http.StatusInternalServerError
	switch {
	case errors.IsCompilation(err), errors.HasType(err, errors.TypeEvaluation):
		status = http.StatusUnprocessableEntity
	case errors.HasType(err, errors.TypeInitialization), stderrors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	case stderrors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), err, "Request failed", "path", r.URL.Path)
	} else {
		s.logger.Debug(r.Context(), "Request rejected", "path", r.URL.Path, "code", resp.Code)
	}
	s.writeJSON(w, r, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode response", "path", r.URL.Path)
	}
}
