package web

import (
	"encoding/json"
	"io"
	"net/http"
)

type colorResponse struct {
	R uint8  `json:"r"`
	G uint8  `json:"g"`
	B uint8  `json:"b"`
	W *uint8 `json:"w,omitempty"`
}

type stateResponse struct {
	Power      bool          `json:"power"`
	Brightness uint8         `json:"brightness"`
	Color      colorResponse `json:"color"`
	Effect     string        `json:"effect"`
	LEDCount   int           `json:"led_count"`
	LEDMode    string        `json:"led_mode"`
	Uptime     float64       `json:"uptime"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st := s.ctrl.Snapshot()
	resp := stateResponse{
		Power:      st.Power,
		Brightness: st.Brightness,
		Color:      colorResponse{R: st.Color.R, G: st.Color.G, B: st.Color.B},
		Effect:     st.Effect,
		LEDCount:   st.LEDCount,
		LEDMode:    st.Order.String(),
		Uptime:     s.ctrl.Uptime().Seconds(),
	}
	if st.Order.HasWhite() {
		wch := st.Color.W
		resp.Color.W = &wch
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleCommand accepts the same JSON command surface as the MQTT command
// topic. The command is queued for the control loop; acceptance here does
// not mean the command was valid.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 4096)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if !json.Valid(payload) {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payload is not JSON"})
		return
	}
	if err := s.ctrl.Submit(payload); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "command queue full"})
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleEffects(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{"effects": s.ctrl.EffectNames()})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write json response", "err", err)
	}
}
