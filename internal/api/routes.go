package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/radio-control/wifid/internal/audit"
	"github.com/radio-control/wifid/internal/auth"
	"github.com/radio-control/wifid/internal/wifi"
)

const apiV1 = "/api/v1"

// Demand actions accepted by POST /wifi/ap/demand.
const (
	DemandStart    = "start"
	DemandStop     = "stop"
	DemandMaintain = "maintain"
)

// RegisterRoutes registers all v1 endpoints.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	m := s.authMiddleware

	// Health endpoint (no auth required)
	mux.HandleFunc(apiV1+"/health", s.handleHealth)

	mux.HandleFunc(apiV1+"/wifi", m.Protect(s.handleStatus, auth.ScopeRead))
	mux.HandleFunc(apiV1+"/wifi/ap/mode", m.Protect(s.handleAPMode, auth.ScopeControl))
	mux.HandleFunc(apiV1+"/wifi/ap/idle-timeout", m.Protect(s.handleAPIdleTimeout, auth.ScopeControl))
	mux.HandleFunc(apiV1+"/wifi/ap/demand", m.Protect(s.handleAPDemand, auth.ScopeControl))
	mux.HandleFunc(apiV1+"/wifi/station/mode", m.Protect(s.handleStationMode, auth.ScopeControl))
	mux.HandleFunc(apiV1+"/wifi/station/reconnect-interval", m.Protect(s.handleStationReconnectInterval, auth.ScopeControl))
	mux.HandleFunc(apiV1+"/wifi/station/provision", m.Protect(s.handleStationProvision, auth.ScopeControl))
	mux.HandleFunc(apiV1+"/wifi/station/scan", m.Protect(s.handleStationScan, auth.ScopeControl))

	mux.HandleFunc(apiV1+"/diagnostics/ethernet", m.Protect(s.handleEthernetDiagnostics, auth.ScopeRead))
	mux.HandleFunc(apiV1+"/diagnostics/wifi", m.Protect(s.handleWiFiDiagnostics, auth.ScopeRead))
	mux.HandleFunc(apiV1+"/diagnostics/wifi/reset", m.Protect(s.handleWiFiReset, auth.ScopeControl))

	mux.HandleFunc(apiV1+"/telemetry", m.Protect(s.handleTelemetry, auth.ScopeTelemetry))
}

// decodeJSON strictly decodes the request body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON or unknown fields", ErrBadRequest)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("%w: trailing data after JSON object", ErrBadRequest)
	}
	return nil
}

// handleStatus handles GET /wifi
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	if !s.requireWiFi(w) {
		return
	}
	WriteSuccess(w, s.wifi.Status(r.Context()))
}

// handleAPMode handles PUT /wifi/ap/mode
func (s *Server) handleAPMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w, http.MethodPut)
		return
	}
	if !s.requireWiFi(w) {
		return
	}

	var req struct {
		Mode string `json:"mode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		WriteErr(w, err)
		return
	}
	mode, err := wifi.ParseAPMode(req.Mode)
	if err != nil {
		WriteErr(w, err)
		return
	}

	ctx := audit.WithParams(r.Context(), map[string]interface{}{"mode": req.Mode})
	if err := s.wifi.SetAPMode(ctx, mode); err != nil {
		WriteErr(w, err)
		return
	}
	WriteSuccess(w, map[string]string{"apMode": mode.String()})
}

// handleAPIdleTimeout handles PUT /wifi/ap/idle-timeout
func (s *Server) handleAPIdleTimeout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w, http.MethodPut)
		return
	}
	if !s.requireWiFi(w) {
		return
	}

	var req struct {
		TimeoutMs int64 `json:"timeoutMs"`
	}
	if err := decodeJSON(r, &req); err != nil {
		WriteErr(w, err)
		return
	}
	if err := s.wifi.SetAPIdleTimeout(time.Duration(req.TimeoutMs) * time.Millisecond); err != nil {
		WriteErr(w, err)
		return
	}
	WriteSuccess(w, map[string]int64{"apIdleTimeoutMs": req.TimeoutMs})
}

// handleAPDemand handles POST /wifi/ap/demand
func (s *Server) handleAPDemand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.requireWiFi(w) {
		return
	}

	var req struct {
		Action string `json:"action"`
	}
	if err := decodeJSON(r, &req); err != nil {
		WriteErr(w, err)
		return
	}

	switch req.Action {
	case DemandStart:
		s.wifi.DemandStartAP(r.Context())
	case DemandStop:
		s.wifi.StopOnDemandAP(r.Context())
	case DemandMaintain:
		s.wifi.MaintainOnDemandAP()
	default:
		WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT",
			fmt.Sprintf("action must be %s, %s or %s", DemandStart, DemandStop, DemandMaintain), nil)
		return
	}
	WriteSuccess(w, map[string]string{"action": req.Action})
}

// handleStationMode handles PUT /wifi/station/mode
func (s *Server) handleStationMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w, http.MethodPut)
		return
	}
	if !s.requireWiFi(w) {
		return
	}

	var req struct {
		Mode string `json:"mode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		WriteErr(w, err)
		return
	}
	mode, err := wifi.ParseStationMode(req.Mode)
	if err != nil {
		WriteErr(w, err)
		return
	}

	ctx := audit.WithParams(r.Context(), map[string]interface{}{"mode": req.Mode})
	if err := s.wifi.SetStationMode(ctx, mode); err != nil {
		WriteErr(w, err)
		return
	}
	WriteSuccess(w, map[string]string{"stationMode": mode.String()})
}

// handleStationReconnectInterval handles PUT /wifi/station/reconnect-interval
func (s *Server) handleStationReconnectInterval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w, http.MethodPut)
		return
	}
	if !s.requireWiFi(w) {
		return
	}

	var req struct {
		IntervalMs int64 `json:"intervalMs"`
	}
	if err := decodeJSON(r, &req); err != nil {
		WriteErr(w, err)
		return
	}
	if err := s.wifi.SetStationReconnectInterval(time.Duration(req.IntervalMs) * time.Millisecond); err != nil {
		WriteErr(w, err)
		return
	}
	WriteSuccess(w, map[string]int64{"stationReconnectIntervalMs": req.IntervalMs})
}

// handleStationProvision handles POST and DELETE /wifi/station/provision
func (s *Server) handleStationProvision(w http.ResponseWriter, r *http.Request) {
	if !s.requireWiFi(w) {
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req struct {
			SSID string `json:"ssid"`
			Key  string `json:"key"`
		}
		if err := decodeJSON(r, &req); err != nil {
			WriteErr(w, err)
			return
		}
		// The key never reaches the audit log.
		ctx := audit.WithParams(r.Context(), map[string]interface{}{"ssid": req.SSID})
		if err := s.wifi.ProvisionStationNetwork(ctx, req.SSID, req.Key); err != nil {
			WriteErr(w, err)
			return
		}
		WriteSuccess(w, map[string]string{"ssid": req.SSID})

	case http.MethodDelete:
		if err := s.wifi.ClearStationProvision(r.Context()); err != nil {
			WriteErr(w, err)
			return
		}
		WriteSuccess(w, map[string]bool{"cleared": true})

	default:
		writeMethodNotAllowed(w, "POST, DELETE")
	}
}

// handleStationScan handles POST /wifi/station/scan. Results are not collected; completion
// is visible as scanState in GET /wifi.
func (s *Server) handleStationScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.requireWiFi(w) {
		return
	}
	if err := s.wifi.StartScan(r.Context()); err != nil {
		WriteErr(w, err)
		return
	}
	WriteSuccess(w, map[string]bool{"scanning": true})
}

// handleEthernetDiagnostics handles GET /diagnostics/ethernet
func (s *Server) handleEthernetDiagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	if !s.requireDiagnostics(w) {
		return
	}

	stats, err := s.diagnostics.EthernetStats()
	if err != nil {
		WriteErr(w, err)
		return
	}
	WriteSuccess(w, stats)
}

// wifiDiagnostics is the GET /diagnostics/wifi payload. Link parameters that cannot be
// read are left out.
type wifiDiagnostics struct {
	Interface       string      `json:"interface"`
	Stats           interface{} `json:"stats"`
	Channel         *int        `json:"channel,omitempty"`
	RSSI            *int8       `json:"rssi,omitempty"`
	BeaconLostCount *uint32     `json:"beaconLostCount,omitempty"`
	CurrentMaxRate  *uint64     `json:"currentMaxRate,omitempty"`
}

// handleWiFiDiagnostics handles GET /diagnostics/wifi
func (s *Server) handleWiFiDiagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	if !s.requireDiagnostics(w) {
		return
	}

	ifname, err := s.diagnostics.WiFiInterfaceName()
	if err != nil {
		WriteErr(w, err)
		return
	}
	stats, err := s.diagnostics.WiFiStats()
	if err != nil {
		WriteErr(w, err)
		return
	}

	out := wifiDiagnostics{Interface: ifname, Stats: stats}
	if ch, err := s.diagnostics.WiFiChannel(ifname); err == nil {
		out.Channel = &ch
	} else {
		log.Debugf("wifi channel of %s: %v", ifname, err)
	}
	if rssi, err := s.diagnostics.WiFiRSSI(ifname); err == nil {
		out.RSSI = &rssi
	} else {
		log.Debugf("wifi rssi of %s: %v", ifname, err)
	}
	if lost, err := s.diagnostics.WiFiBeaconLostCount(ifname); err == nil {
		out.BeaconLostCount = &lost
	} else {
		log.Debugf("wifi beacon lost count of %s: %v", ifname, err)
	}
	if rate, err := s.diagnostics.WiFiCurrentMaxRate(ifname); err == nil {
		out.CurrentMaxRate = &rate
	} else {
		log.Debugf("wifi max rate of %s: %v", ifname, err)
	}
	WriteSuccess(w, out)
}

// handleWiFiReset handles POST /diagnostics/wifi/reset
func (s *Server) handleWiFiReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.requireDiagnostics(w) {
		return
	}
	if err := s.diagnostics.ResetWiFiCounts(); err != nil {
		WriteErr(w, err)
		return
	}
	WriteSuccess(w, map[string]bool{"reset": true})
}

// handleTelemetry handles GET /telemetry
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.telemetryHub == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE",
			"Telemetry service not available", nil)
		return
	}

	// The stream outlives the server write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		log.Debugf("telemetry: cannot clear write deadline: %v", err)
	}
	if err := s.telemetryHub.Subscribe(r.Context(), w, r); err != nil {
		log.Warnf("telemetry subscription ended: %v", err)
	}
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	subsystems := map[string]bool{
		"wifi":        s.wifi != nil,
		"diagnostics": s.diagnostics != nil,
		"telemetry":   s.telemetryHub != nil,
	}
	health := map[string]interface{}{
		"status":     "ok",
		"uptimeSec":  time.Since(s.startTime).Seconds(),
		"version":    s.version,
		"subsystems": subsystems,
	}
	if s.wifi != nil {
		health["supplicantState"] = s.wifi.Status(r.Context()).SupplicantState
	}
	if s.telemetryHub != nil {
		health["telemetryClients"] = s.telemetryHub.ClientCount()
	}

	for _, up := range subsystems {
		if !up {
			health["status"] = "degraded"
			WriteError(w, http.StatusServiceUnavailable, "SERVICE_DEGRADED",
				"One or more subsystems are unavailable", health)
			return
		}
	}
	WriteSuccess(w, health)
}

func (s *Server) requireWiFi(w http.ResponseWriter) bool {
	if s.wifi == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Wi-Fi manager not available", nil)
		return false
	}
	return true
}

func (s *Server) requireDiagnostics(w http.ResponseWriter) bool {
	if s.diagnostics == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Diagnostics not available", nil)
		return false
	}
	return true
}
