package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/osa030/tunemap/internal/app/geocache"
	"github.com/osa030/tunemap/internal/app/regional"
	"github.com/osa030/tunemap/internal/app/token"
	"github.com/osa030/tunemap/internal/domain/region"
)

var validate = validator.New()

// RegionsResponse carries entries keyed by country code, plus the requested
// codes that have no entry.
type RegionsResponse struct {
	Entries     map[string]regional.Entry `json:"entries"`
	Missing     []string                  `json:"missing"`
	Interrupted bool                      `json:"interrupted,omitempty"`
}

// RefreshRequest asks for either explicit codes or every country in a viewport.
type RefreshRequest struct {
	Codes    []string         `json:"codes" validate:"max=300"`
	Viewport *ViewportRequest `json:"viewport" validate:"omitempty"`
}

// ViewportRequest is a visible map area.
type ViewportRequest struct {
	Center   CoordinateRequest `json:"center"`
	LatDelta float64           `json:"latDelta" validate:"gt=0,lte=180"`
	LonDelta float64           `json:"lonDelta" validate:"gt=0,lte=360"`
}

// CoordinateRequest is a point in decimal degrees.
type CoordinateRequest struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

func (v ViewportRequest) toViewport() region.Viewport {
	return region.Viewport{
		Center:         region.Coordinate{Latitude: v.Center.Lat, Longitude: v.Center.Lon},
		LatitudeDelta:  v.LatDelta,
		LongitudeDelta: v.LonDelta,
	}
}

// OfferResponse is the "search this area" decision.
type OfferResponse struct {
	Offer      bool     `json:"offer"`
	DistanceKm *float64 `json:"distanceKm,omitempty"`
}

// StatusResponse summarises the cache and token state.
type StatusResponse struct {
	Cache       CacheStatus `json:"cache"`
	Token       token.State `json:"token"`
	Subscribers int         `json:"subscribers"`
}

// CacheStatus describes the cache contents and policy.
type CacheStatus struct {
	Keys    []string         `json:"keys"`
	Entries []regional.Entry `json:"entries"`
	Stats   geocache.Stats   `json:"stats"`
	TTL     string           `json:"ttl"`
	MaxSize int              `json:"maxSize"`
}

func (s *Server) handleCached(w http.ResponseWriter, r *http.Request) {
	codes := splitCodes(r.URL.Query().Get("codes"))
	if len(codes) == 0 {
		writeError(w, http.StatusBadRequest, "codes query parameter is required")
		return
	}
	entries := s.svc.Regions.Cached(codes)
	writeJSON(w, http.StatusOK, regionsResponse(codes, entries))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if (len(req.Codes) == 0) == (req.Viewport == nil) {
		writeError(w, http.StatusBadRequest, "exactly one of codes or viewport is required")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	var (
		codes   []string
		entries map[string]regional.Entry
		err     error
	)
	if req.Viewport != nil {
		vp := req.Viewport.toViewport()
		entries, err = s.svc.Regions.RefreshViewport(r.Context(), vp)
		codes = s.svc.Regions.Table().VisibleCountries(vp)
	} else {
		codes = region.NormalizeCodes(req.Codes)
		entries, err = s.svc.Regions.Refresh(r.Context(), codes)
	}

	resp := regionsResponse(codes, entries)
	if err != nil {
		if r.Context().Err() == nil {
			s.log.Error().Err(err).Msg("refresh failed")
			writeError(w, http.StatusInternalServerError, "refresh failed")
			return
		}
		s.log.Info().Err(err).Int("entries", len(entries)).Msg("refresh interrupted")
		resp.Interrupted = true
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	current, err := parseCoordinate(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var last *region.Coordinate
	if q.Has("last_lat") || q.Has("last_lon") {
		c, err := parseCoordinate(q.Get("last_lat"), q.Get("last_lon"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "last position: "+err.Error())
			return
		}
		last = &c
	}

	resp := OfferResponse{Offer: s.svc.Throttle.ShouldOfferRefetch(current, last)}
	if d, ok := s.svc.Throttle.Distance(current, last); ok {
		resp.DistanceKm = &d
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	entries := s.svc.Cache.Entries()
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.CountryCode
	}
	resp := StatusResponse{
		Cache: CacheStatus{
			Keys:    keys,
			Entries: entries,
			Stats:   s.svc.Cache.Stats(),
			TTL:     s.svc.Cache.TTL().String(),
			MaxSize: s.svc.Cache.MaxSize(),
		},
		Token: s.svc.Tokens.State(),
	}
	if s.svc.Events != nil {
		resp.Subscribers = s.svc.Events.SubscriberCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Cache.Clear(); err != nil {
		s.log.Error().Err(err).Msg("cache cleared in memory but not persisted")
		writeError(w, http.StatusInternalServerError, "cache cleared but the durable copy could not be removed")
		return
	}
	s.log.Info().Msg("cache cleared by admin")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	code := region.NormalizeCode(r.PathValue("code"))
	if !s.svc.Cache.IsCached(code) {
		writeError(w, http.StatusNotFound, "no cached entry for "+code)
		return
	}
	if err := s.svc.Cache.Remove(code); err != nil {
		s.log.Error().Err(err).Str("country", code).Msg("entry removed in memory but not persisted")
		writeError(w, http.StatusInternalServerError, "entry removed but the change could not be persisted")
		return
	}
	s.log.Info().Str("country", code).Msg("entry removed by admin")
	w.WriteHeader(http.StatusNoContent)
}

func regionsResponse(codes []string, entries map[string]regional.Entry) RegionsResponse {
	resp := RegionsResponse{Entries: entries, Missing: []string{}}
	if resp.Entries == nil {
		resp.Entries = map[string]regional.Entry{}
	}
	for _, code := range region.NormalizeCodes(codes) {
		if _, ok := entries[code]; !ok {
			resp.Missing = append(resp.Missing, code)
		}
	}
	return resp
}

func splitCodes(raw string) []string {
	if raw == "" {
		return nil
	}
	return region.NormalizeCodes(strings.Split(raw, ","))
}

func parseCoordinate(latRaw, lonRaw string) (region.Coordinate, error) {
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return region.Coordinate{}, errors.Newf("invalid latitude %q", latRaw)
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return region.Coordinate{}, errors.Newf("invalid longitude %q", lonRaw)
	}
	c := CoordinateRequest{Lat: lat, Lon: lon}
	if err := validate.Struct(c); err != nil {
		return region.Coordinate{}, errors.Newf("coordinate out of range: %g,%g", lat, lon)
	}
	return region.Coordinate{Latitude: lat, Longitude: lon}, nil
}
