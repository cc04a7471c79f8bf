package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

const (
	defaultItemLimit = 1000
	maxItemLimit     = 100000
)

// server exposes a catalog over HTTP.
type server struct {
	catalog  *shapestore.Catalog
	gatherer prometheus.Gatherer
	log      *zap.Logger
}

type collection struct {
	ID      string     `json:"id"`
	CRS     string     `json:"crs"`
	Records int        `json:"records"`
	BBox    []float64  `json:"bbox,omitempty"`
	Links   []linkJSON `json:"links"`
}

type linkJSON struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
	Type string `json:"type"`
}

type errorJSON struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections", s.collections)
	mux.HandleFunc("GET /collections/{name}/items", s.items)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

func (s *server) collections(w http.ResponseWriter, r *http.Request) {
	entries := s.catalog.Entries()
	out := struct {
		Collections []collection `json:"collections"`
	}{Collections: make([]collection, 0, len(entries))}

	for _, e := range entries {
		c := collection{
			ID:      e.Name,
			CRS:     e.CRS,
			Records: e.Records,
			Links: []linkJSON{{
				Href: "/collections/" + e.Name + "/items",
				Rel:  "items",
				Type: "application/geo+json",
			}},
		}
		if e.Indexed {
			c.BBox = []float64{e.Envelope.Min[0], e.Envelope.Min[1], e.Envelope.Max[0], e.Envelope.Max[1]}
		}
		out.Collections = append(out.Collections, c)
	}
	s.writeJSON(w, "application/json", out)
}

// items answers an OGC API Features style item request. bbox is in
// CRS:84 unless bbox-crs names another CRS.
func (s *server) items(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	st, ok := s.catalog.Get(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown collection "+strconv.Quote(name))
		return
	}

	params := r.URL.Query()
	q := shapestore.Query{MaxFeatures: defaultItemLimit, CRS: shapestore.CRS84}
	if v := params.Get("bbox"); v != "" {
		b, err := parseBBox(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		q.BBox = b
	}
	if v := params.Get("bbox-crs"); v != "" {
		crs, err := shapestore.NormalizeCRS(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		q.CRS = crs
	}
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxItemLimit {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxItemLimit))
			return
		}
		q.MaxFeatures = n
	}
	var err error
	if q.Filter, err = parseWhere(params["where"]); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.Sort, err = parseSort(params["sortby"]); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q.Exact = params.Get("exact") == "true"

	cur, err := st.Query(r.Context(), q)
	if err != nil {
		s.queryError(w, name, err)
		return
	}
	defer cur.Close()

	fc := geojson.NewFeatureCollection()
	for cur.Next() {
		fc.Append(cur.Feature().GeoJSON())
	}
	s.writeJSON(w, "application/geo+json", fc)
}

func (s *server) queryError(w http.ResponseWriter, name string, err error) {
	var cfgErr *shapestore.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		s.log.Error("collection misconfigured", zap.String("collection", name), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "collection is misconfigured")
	case errors.Is(err, shapestore.ErrUnavailable):
		s.log.Warn("collection unavailable", zap.String("collection", name), zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "collection temporarily unavailable")
	default:
		s.log.Error("query failed", zap.String("collection", name), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "query failed")
	}
}

func (s *server) writeJSON(w http.ResponseWriter, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("writing response", zap.Error(err))
	}
}

func (s *server) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorJSON{Code: code, Description: msg})
}
