package gateway

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/c360/streamagent/errors"
	"github.com/c360/streamagent/query"
	"github.com/c360/streamagent/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.monitor == nil {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		return
	}
	status := s.monitor.AggregateHealth("streamagent")
	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, status)
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.Probe(chi.URLParam(r, "device"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, renderProbe(p))
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	req, err := query.ParseCurrent(chi.URLParam(r, "device"), r.URL.Query())
	if err == nil && req.Stream {
		err = s.checkStream(req.Device, req.Path, req.Interval)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	if req.Stream {
		s.stream(w, r, func(ctx context.Context, emit query.Emit) error {
			return s.engine.StreamCurrent(ctx, req, emit)
		})
		return
	}

	snap, err := s.engine.Current(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, renderSnapshot(snap))
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	req, err := query.ParseSample(chi.URLParam(r, "device"), r.URL.Query())
	if err == nil && req.Stream {
		err = s.checkStream(req.Device, req.Path, req.Interval)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	if req.Stream {
		s.stream(w, r, func(ctx context.Context, emit query.Emit) error {
			return s.engine.StreamSample(ctx, req, emit)
		})
		return
	}

	snap, err := s.engine.Sample(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, renderSnapshot(snap))
}

// checkStream rejects a stream before its response starts.
func (s *Server) checkStream(deviceName, path string, interval time.Duration) error {
	if err := s.engine.Check(deviceName, path); err != nil {
		return err
	}
	if s.cfg.MaxStreamInterval > 0 && interval.Milliseconds() > s.cfg.MaxStreamInterval.Milliseconds() {
		return errors.OutOfRange("'interval' must be at most %d ms, got %d",
			s.cfg.MaxStreamInterval.Milliseconds(), interval.Milliseconds())
	}
	return nil
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	ids := chi.URLParam(r, "ids")
	if ids == "" {
		ids = chi.URLParam(r, "id")
	}
	req, err := query.ParseAssets(ids, r.URL.Query())
	if err != nil {
		s.writeError(w, err)
		return
	}
	assets, header, err := s.engine.Assets(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if assets == nil {
		assets = []store.Asset{}
	}
	s.writeJSON(w, http.StatusOK, assetsDoc{Header: header, Assets: assets})
}

// handlePostAsset inserts a new asset. Without an id in the path one is
// generated.
func (s *Server) handlePostAsset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		id = s.newID()
	}
	s.storeAsset(w, r, id, false)
}

func (s *Server) handlePutAsset(w http.ResponseWriter, r *http.Request) {
	s.storeAsset(w, r, chi.URLParam(r, "id"), true)
}

// storeAsset reads the document body. The asset type comes from ?type= or,
// when absent, from the document's root element.
func (s *Server) storeAsset(w http.ResponseWriter, r *http.Request, id string, replace bool) {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxRequestSize+1))
	if err != nil {
		s.writeError(w, errors.InvalidRequest("failed to read request body"))
		return
	}
	if int64(len(body)) > s.cfg.MaxRequestSize {
		s.writeError(w, errors.InvalidRequest("request body exceeds maximum size of %d bytes", s.cfg.MaxRequestSize))
		return
	}

	doc := strings.TrimSpace(string(body))
	typ := r.URL.Query().Get("type")
	if typ == "" {
		typ = rootElement(doc)
	}

	stored, err := s.engine.PutAsset(store.Asset{
		ID:       id,
		Type:     typ,
		Device:   r.URL.Query().Get("device"),
		Document: doc,
	}, replace)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("Asset stored over HTTP", "asset", stored.ID, "type", stored.Type, "replace", replace)
	s.writeJSON(w, http.StatusOK, assetsDoc{Header: s.engine.Header(), Assets: []store.Asset{stored}})
}

func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	removed, err := s.engine.RemoveAsset(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, assetsDoc{Header: s.engine.Header(), Assets: []store.Asset{removed}})
}

func (s *Server) handleDeleteAssets(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	removed, err := s.engine.RemoveAllAssets(v.Get("device"), v.Get("type"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if removed == nil {
		removed = []store.Asset{}
	}
	s.writeJSON(w, http.StatusOK, assetsDoc{Header: s.engine.Header(), Assets: removed})
}

// rootElement returns the name of the first element of an XML document, or
// "" when doc does not start with one.
func rootElement(doc string) string {
	for {
		start := strings.IndexByte(doc, '<')
		if start < 0 || start+1 >= len(doc) {
			return ""
		}
		doc = doc[start+1:]
		if doc[0] == '?' || doc[0] == '!' {
			continue
		}
		end := strings.IndexAny(doc, " \t\r\n/>")
		if end <= 0 {
			return ""
		}
		return doc[:end]
	}
}
