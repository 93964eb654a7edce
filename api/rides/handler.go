package rides

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kilianp07/evshare/core/device"
	"github.com/kilianp07/evshare/core/ride"
)

// NewHandler returns an HTTP handler exposing the ride lifecycle under
// /api/rides: start, end, lookup and per-user listing.
func NewHandler(svc *ride.Service) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/rides", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req ride.StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if req.VehicleID == "" || req.UserID == "" {
			http.Error(w, "vehicle_id and user_id are required", http.StatusBadRequest)
			return
		}
		res, err := svc.Start(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(res); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("/api/rides/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/rides/")
		switch {
		case r.Method == http.MethodGet && strings.HasPrefix(rest, "user/"):
			userID := strings.TrimPrefix(rest, "user/")
			if r.URL.Query().Get("active") == "1" {
				active, err := svc.ActiveForUser(r.Context(), userID)
				if err != nil {
					writeError(w, err)
					return
				}
				if active == nil {
					http.Error(w, "no active ride", http.StatusNotFound)
					return
				}
				writeJSON(w, active)
				return
			}
			list, err := svc.ListByUser(r.Context(), userID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, list)
		case r.Method == http.MethodGet && !strings.Contains(rest, "/"):
			rd, err := svc.Get(r.Context(), rest)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, rd)
		case r.Method == http.MethodPost && strings.HasSuffix(rest, "/end"):
			id := strings.TrimSuffix(rest, "/end")
			var req ride.EndRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid body", http.StatusBadRequest)
				return
			}
			rd, err := svc.End(r.Context(), id, req)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, rd)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	return mux
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ride.ErrUnknownVehicle), errors.Is(err, ride.ErrRideNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ride.ErrActiveRide), errors.Is(err, ride.ErrNotActive),
		errors.Is(err, ride.ErrVehicleUnavailable):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ride.ErrLowBattery):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, device.ErrTransport):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
