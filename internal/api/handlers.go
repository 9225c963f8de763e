package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cleancredit/internal/dirtiness"
	"github.com/sells-group/cleancredit/internal/geo"
	"github.com/sells-group/cleancredit/internal/metrics"
	"github.com/sells-group/cleancredit/internal/model"
	"github.com/sells-group/cleancredit/internal/reward"
)

const maxRewardBody = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":       "ok",
		"model_loaded": s.deps.Engine != nil && s.deps.Engine.HasModel(),
	}
	if est := s.deps.Holder.Load(); est != nil {
		resp["observations"] = est.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

// DirtinessResponse is the body of GET /dirtiness.
type DirtinessResponse struct {
	Lat       float64              `json:"lat"`
	Lng       float64              `json:"lng"`
	Score     float64              `json:"score"`
	Band      string               `json:"band"`
	Proximity string               `json:"proximity"`
	NearestKM float64              `json:"nearest_km"`
	Neighbors []dirtiness.Neighbor `json:"neighbors"`
}

func (s *Server) handleDirtiness(w http.ResponseWriter, r *http.Request) {
	lat, lng, err := parseCoords(r.URL.Query().Get("lat"), r.URL.Query().Get("lng"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	est := s.deps.Holder.Load().Estimate(lat, lng)
	path := "blend"
	if est.Shortcut {
		path = "shortcut"
	}
	metrics.IndexQueries.WithLabelValues(path).Inc()

	writeJSON(w, http.StatusOK, DirtinessResponse{
		Lat:       lat,
		Lng:       lng,
		Score:     est.Score,
		Band:      dirtiness.Band(est.Score),
		Proximity: geo.ClassifyProximity(est.NearestKM, est.Shortcut),
		NearestKM: est.NearestKM,
		Neighbors: est.Neighbors,
	})
}

func (s *Server) handlePoints(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Holder.Load().Observations())
}

func (s *Server) handlePointsGeoJSON(w http.ResponseWriter, _ *http.Request) {
	data, err := FeatureCollection(s.deps.Holder.Load().Observations()).MarshalJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode geojson")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

// RewardRequest is the body of POST /reward. Classification may be replaced
// by raw detector output; the dirtiness index may be replaced by a location.
type RewardRequest struct {
	CitizenCategory string             `json:"citizen_category"`
	Classification  string             `json:"classification"`
	Detections      []reward.Detection `json:"detections"`
	DirtinessIndex  *float64           `json:"dirtiness_index"`
	Lat             *float64           `json:"lat"`
	Lng             *float64           `json:"lng"`
}

// RewardResponse is the body of a successful POST /reward.
type RewardResponse struct {
	reward.Result
	ID             string  `json:"id"`
	Classification string  `json:"classification"`
	Confidence     float64 `json:"confidence,omitempty"`
	DirtinessIndex float64 `json:"dirtiness_index"`
	Display        string  `json:"display"`
}

func (s *Server) handleReward(w http.ResponseWriter, r *http.Request) {
	var req RewardRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRewardBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CitizenCategory == "" {
		writeError(w, http.StatusBadRequest, "citizen_category is required")
		return
	}

	var (
		class      reward.Classification
		confidence float64
	)
	switch {
	case req.Classification != "":
		class = reward.ParseClassification(req.Classification)
	case req.Detections != nil:
		class, confidence = reward.ClassifyDetections(req.Detections)
	default:
		writeError(w, http.StatusBadRequest, "classification or detections is required")
		return
	}

	if (req.Lat == nil) != (req.Lng == nil) {
		writeError(w, http.StatusBadRequest, "lat and lng must be given together")
		return
	}
	hasLocation := req.Lat != nil
	if hasLocation {
		if err := checkCoords(*req.Lat, *req.Lng); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	var index float64
	switch {
	case req.DirtinessIndex != nil:
		index = *req.DirtinessIndex
	case hasLocation:
		index = s.deps.Holder.Load().Index(*req.Lat, *req.Lng)
	default:
		writeError(w, http.StatusBadRequest, "dirtiness_index or lat/lng is required")
		return
	}

	q := reward.Query{
		Citizen:        reward.ParseCitizenCategory(req.CitizenCategory),
		Class:          class,
		DirtinessIndex: index,
	}
	if err := q.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "dirtiness_index must be between 0 and 1")
		return
	}

	res := s.deps.Engine.Score(q)
	ev := &model.RewardEvent{
		ID:             uuid.NewString(),
		Lat:            req.Lat,
		Lng:            req.Lng,
		Citizen:        string(q.Citizen),
		Classification: string(q.Class),
		DirtinessIndex: index,
		Value:          res.Value,
		Label:          res.Label,
		Source:         res.Source,
		CreatedAt:      s.now().UTC(),
	}

	if s.deps.Ledger != nil {
		if err := s.deps.Ledger.RecordReward(r.Context(), ev); err != nil {
			zap.L().Error("api: record reward", zap.String("id", ev.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to record reward")
			return
		}
	}
	if err := s.deps.Publisher.PublishReward(ev); err != nil {
		zap.L().Warn("api: publish reward", zap.String("id", ev.ID), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, RewardResponse{
		Result:         res,
		ID:             ev.ID,
		Classification: string(q.Class),
		Confidence:     confidence,
		DirtinessIndex: index,
		Display:        res.String(),
	})
}

func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ledger == nil {
		writeJSON(w, http.StatusOK, []model.RewardEvent{})
		return
	}

	filter := model.RewardFilter{Limit: 100}
	if c := r.URL.Query().Get("citizen_category"); c != "" {
		filter.Citizen = string(reward.ParseCitizenCategory(c))
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	events, err := s.deps.Ledger.ListRewards(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list rewards", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list rewards")
		return
	}
	if events == nil {
		events = []model.RewardEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reloader == nil {
		writeError(w, http.StatusNotImplemented, "reload is not configured")
		return
	}
	n, err := s.deps.Reloader.Reload(r.Context())
	if err != nil {
		zap.L().Error("api: reload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reload failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reloaded", "observations": n})
}

func parseCoords(latStr, lngStr string) (float64, float64, error) {
	if latStr == "" || lngStr == "" {
		return 0, 0, eris.New("lat and lng are required")
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, eris.New("lat must be a number")
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return 0, 0, eris.New("lng must be a number")
	}
	return lat, lng, checkCoords(lat, lng)
}

func checkCoords(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return eris.New("lat must be between -90 and 90")
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return eris.New("lng must be between -180 and 180")
	}
	return nil
}
