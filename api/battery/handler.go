package battery

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kilianp07/evshare/core/model"
	"github.com/kilianp07/evshare/core/telemetry"
)

// vehicleStatus is the wire shape of one snapshot. ParkingID is always the
// unknown sentinel: the fleet has no positioning source yet.
type vehicleStatus struct {
	VehicleID  string `json:"vehicle_id"`
	Level      int    `json:"level"`
	Status     string `json:"status"`
	Charging   bool   `json:"charging"`
	ParkingID  int    `json:"parking_id"`
	LastUpdate string `json:"last_update"`
}

type fleetReport struct {
	Vehicles []vehicleStatus   `json:"vehicles"`
	Summary  telemetry.Summary `json:"summary"`
}

type setLevelRequest struct {
	Level int `json:"level"`
}

func toStatus(st telemetry.BatteryState) vehicleStatus {
	return vehicleStatus{
		VehicleID:  st.VehicleID,
		Level:      st.Level,
		Status:     st.Status(),
		Charging:   st.Charging,
		ParkingID:  model.ParkingUnknown,
		LastUpdate: st.LastUpdate.UTC().Format(time.RFC3339),
	}
}

// NewHandler returns an HTTP handler exposing battery telemetry under
// /api/battery. The level override requires an Authorization header with
// "Bearer <token>" when token is non-empty.
func NewHandler(store *telemetry.Store, token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/battery", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		states := store.All()
		report := fleetReport{Vehicles: make([]vehicleStatus, 0, len(states)), Summary: telemetry.Summarize(states)}
		for _, st := range states {
			report.Vehicles = append(report.Vehicles, toStatus(st))
		}
		writeJSON(w, report)
	})
	mux.HandleFunc("/api/battery/low", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		low := telemetry.LowBattery(store.All())
		out := make([]vehicleStatus, 0, len(low))
		for _, st := range low {
			out = append(out, toStatus(st))
		}
		writeJSON(w, out)
	})
	mux.HandleFunc("/api/battery/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/battery/")
		switch {
		case r.Method == http.MethodGet && !strings.Contains(rest, "/"):
			st, ok := store.Get(rest)
			if !ok {
				http.Error(w, "vehicle not tracked", http.StatusNotFound)
				return
			}
			writeJSON(w, toStatus(st))
		case r.Method == http.MethodPost && strings.HasSuffix(rest, "/level"):
			if token != "" {
				auth := r.Header.Get("Authorization")
				if auth != "Bearer "+token {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
			}
			id := strings.TrimSuffix(rest, "/level")
			var req setLevelRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid body", http.StatusBadRequest)
				return
			}
			if req.Level < 0 || req.Level > 100 {
				http.Error(w, "level out of range", http.StatusBadRequest)
				return
			}
			if !store.SetLevel(id, req.Level) {
				http.Error(w, "vehicle not tracked", http.StatusNotFound)
				return
			}
			st, _ := store.Get(id)
			writeJSON(w, toStatus(st))
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
