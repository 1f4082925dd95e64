// Package api mounts the /v0 HTTP JSON surface over HwCtrl, the error
// bus, and persisted axis settings. Handlers are hand-written against
// the daemon's documented endpoint table; only the router itself is a
// dependency (go-chi/chi/v5 — nothing upstream of this package exposes
// an HTTP surface of its own).
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/PS-3D/3dprintd/internal/action"
	"github.com/PS-3D/3dprintd/internal/axis"
	"github.com/PS-3D/3dprintd/internal/errbus"
	"github.com/PS-3D/3dprintd/internal/gcode"
	"github.com/PS-3D/3dprintd/internal/hwctrl"
	"github.com/PS-3D/3dprintd/internal/motors"
	"github.com/PS-3D/3dprintd/internal/settings"
)

// ApiError is the wire shape of one error-bus entry.
type ApiError struct {
	ID   uint64 `json:"id"`
	Time int64  `json:"time"`
	Text string `json:"text"`
}

func toApiError(e errbus.Entry) ApiError {
	return ApiError{ID: e.ID, Time: e.Time.Unix(), Text: e.Err.Error()}
}

// API bundles the collaborators every handler closes over.
type API struct {
	hw       *hwctrl.HwCtrl
	bus      *errbus.Bus
	settings *settings.Settings
	log      *zap.SugaredLogger
}

// New builds the chi router. Mount the result at "/v0" in the caller.
func New(hw *hwctrl.HwCtrl, bus *errbus.Bus, st *settings.Settings, log *zap.SugaredLogger) http.Handler {
	a := &API{hw: hw, bus: bus, settings: st, log: log}

	r := chi.NewRouter()
	r.Post("/estop", a.postEStop)

	r.Get("/gcode", a.getGCode)
	r.Post("/gcode/start", a.postGCodeStart)
	r.Post("/gcode/stop", a.postGCodeStop)
	r.Post("/gcode/pause", a.postGCodePause)
	r.Post("/gcode/continue", a.postGCodeContinue)

	r.Get("/axis/position", a.getAxisPositionAll)
	r.Get("/axis/{axis}/position", a.getAxisPosition)
	r.Post("/axis/{axis}/reference", a.postAxisReference)

	r.Get("/axis/{axis}/settings", a.getAxisSettings)
	r.Put("/axis/{axis}/settings", a.putAxisSettings)
	r.Get("/axis/e/settings", a.getExtruderSettings)
	r.Put("/axis/e/settings", a.putExtruderSettings)

	r.Get("/heating/{zone}/settings", a.getHeatingSettings)
	r.Put("/heating/{zone}/settings", a.putHeatingSettings)

	r.Get("/errors", a.getErrors)
	r.Get("/error/last", a.getErrorLast)
	r.Get("/error/{id}", a.getErrorByID)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// statusOf maps an HwCtrl/gcode/motors error to its HTTP status. 512
// (I/O) and 513 (G-code semantic) are deliberately outside the
// standard range.
func statusOf(err error) int {
	var stateErr *hwctrl.StateError
	if errors.As(err, &stateErr) {
		return http.StatusConflict
	}
	var boundsErr *hwctrl.OutOfBoundsError
	if errors.As(err, &boundsErr) {
		return http.StatusMethodNotAllowed
	}
	var gcodeErr *gcode.GCodeError
	if errors.As(err, &gcodeErr) {
		return 513
	}
	var parseErr *gcode.ParsingError
	if errors.As(err, &parseErr) {
		return 513
	}
	var motorsErr *motors.Error
	if errors.As(err, &motorsErr) {
		return 512
	}
	var posErr *motors.PositionError
	if errors.As(err, &posErr) {
		return 512
	}
	return http.StatusInternalServerError
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	if a.log != nil {
		a.log.Warnw("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (a *API) postEStop(w http.ResponseWriter, r *http.Request) {
	a.hw.EStop()
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) getGCode(w http.ResponseWriter, r *http.Request) {
	info := a.hw.StateInfo()
	switch info.Status {
	case hwctrl.Printing:
		writeJSON(w, http.StatusOK, map[string]any{"status": "printing", "path": info.Path, "line": info.Line})
	case hwctrl.Paused:
		writeJSON(w, http.StatusOK, map[string]any{"status": "paused", "path": info.Path, "line": info.Line})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"status": "stopped"})
	}
}

func (a *API) postGCodeStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Path == "" {
		a.writeError(w, http.StatusMethodNotAllowed, errors.New("api: missing or invalid path"))
		return
	}
	if err := a.hw.TryPrint(body.Path); err != nil {
		a.writeError(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) postGCodeStop(w http.ResponseWriter, r *http.Request) {
	if err := a.hw.Stop(); err != nil {
		a.writeError(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) postGCodePause(w http.ResponseWriter, r *http.Request) {
	if err := a.hw.TryPause(); err != nil {
		a.writeError(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) postGCodeContinue(w http.ResponseWriter, r *http.Request) {
	if err := a.hw.TryPlay(); err != nil {
		a.writeError(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) getAxisPositionAll(w http.ResponseWriter, r *http.Request) {
	pos := a.hw.PosInfo()
	writeJSON(w, http.StatusOK, map[string]any{
		"x": map[string]float64{"position": pos.X},
		"y": map[string]float64{"position": pos.Y},
		"z": map[string]float64{"position": pos.Z},
	})
}

func (a *API) getAxisPosition(w http.ResponseWriter, r *http.Request) {
	ax, err := axis.Parse(chi.URLParam(r, "axis"))
	if err != nil {
		a.writeError(w, http.StatusMethodNotAllowed, err)
		return
	}
	pos := a.hw.PosInfo()
	var v float64
	switch ax {
	case axis.X:
		v = pos.X
	case axis.Y:
		v = pos.Y
	case axis.Z:
		v = pos.Z
	}
	writeJSON(w, http.StatusOK, map[string]float64{"position": v})
}

// referenceRequest is the optional override body for /axis/{x|y}/reference
// and the direction selector for /axis/z/reference.
type referenceRequest struct {
	Speed      *uint32 `json:"speed"`
	AccelDecel *uint32 `json:"accel_decel"`
	Jerk       *uint32 `json:"jerk"`
	Direction  string  `json:"direction"` // z only: "endstop"|"hotend"
}

func (a *API) postAxisReference(w http.ResponseWriter, r *http.Request) {
	ax, err := axis.Parse(chi.URLParam(r, "axis"))
	if err != nil {
		a.writeError(w, http.StatusMethodNotAllowed, err)
		return
	}

	var body referenceRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			a.writeError(w, http.StatusMethodNotAllowed, err)
			return
		}
	}

	if ax == axis.Z {
		switch body.Direction {
		case "", "endstop":
			err = a.hw.TryReferenceAxis(ax, action.ReferenceParams{
				Speed: body.Speed, AccelDecel: body.AccelDecel, Jerk: body.Jerk,
			})
		case "hotend":
			err = a.hw.TryReferenceZHotend()
		default:
			a.writeError(w, http.StatusMethodNotAllowed, errors.New("api: invalid direction"))
			return
		}
	} else {
		err = a.hw.TryReferenceAxis(ax, action.ReferenceParams{
			Speed: body.Speed, AccelDecel: body.AccelDecel, Jerk: body.Jerk,
		})
	}

	if err != nil {
		a.writeError(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type axisSettingsBody struct {
	ReferenceSpeed      uint32 `json:"reference_speed"`
	ReferenceAccelDecel uint32 `json:"reference_accel_decel"`
	ReferenceJerk       uint32 `json:"reference_jerk"`
}

func (a *API) getAxisSettings(w http.ResponseWriter, r *http.Request) {
	ax, err := axis.Parse(chi.URLParam(r, "axis"))
	if err != nil {
		a.writeError(w, http.StatusMethodNotAllowed, err)
		return
	}
	s := a.settings.Get(ax)
	writeJSON(w, http.StatusOK, axisSettingsBody{
		ReferenceSpeed:      s.ReferenceSpeed,
		ReferenceAccelDecel: s.ReferenceAccelDecel,
		ReferenceJerk:       s.ReferenceJerk,
	})
}

func (a *API) putAxisSettings(w http.ResponseWriter, r *http.Request) {
	ax, err := axis.Parse(chi.URLParam(r, "axis"))
	if err != nil {
		a.writeError(w, http.StatusMethodNotAllowed, err)
		return
	}
	var body axisSettingsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.writeError(w, http.StatusMethodNotAllowed, err)
		return
	}
	v := settings.AxisSettings{
		ReferenceSpeed:      body.ReferenceSpeed,
		ReferenceAccelDecel: body.ReferenceAccelDecel,
		ReferenceJerk:       body.ReferenceJerk,
	}
	if err := a.settings.Set(ax, v); err != nil {
		a.writeError(w, 512, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// getExtruderSettings/putExtruderSettings are reserved endpoints: there
// is no persisted extruder override store today, so GET reports the
// zero value and PUT accepts and discards.
func (a *API) getExtruderSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, axisSettingsBody{})
}

func (a *API) putExtruderSettings(w http.ResponseWriter, r *http.Request) {
	var body axisSettingsBody
	json.NewDecoder(r.Body).Decode(&body)
	writeJSON(w, http.StatusOK, body)
}

// getHeatingSettings/putHeatingSettings are reserved endpoints; chamber
// has no hardware behind it at all, so it reports 501.
func (a *API) getHeatingSettings(w http.ResponseWriter, r *http.Request) {
	zone := chi.URLParam(r, "zone")
	if zone != "hotend" && zone != "bed" && zone != "chamber" {
		a.writeError(w, http.StatusMethodNotAllowed, errors.New("api: unknown heating zone"))
		return
	}
	if zone == "chamber" {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (a *API) putHeatingSettings(w http.ResponseWriter, r *http.Request) {
	zone := chi.URLParam(r, "zone")
	if zone != "hotend" && zone != "bed" && zone != "chamber" {
		a.writeError(w, http.StatusMethodNotAllowed, errors.New("api: unknown heating zone"))
		return
	}
	if zone == "chamber" {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	var body map[string]any
	json.NewDecoder(r.Body).Decode(&body)
	writeJSON(w, http.StatusOK, body)
}

func (a *API) getErrors(w http.ResponseWriter, r *http.Request) {
	page := 0
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			a.writeError(w, http.StatusMethodNotAllowed, errors.New("api: invalid page"))
			return
		}
		page = n
	}
	entries := a.bus.Page(page)
	out := make([]ApiError, len(entries))
	for i, e := range entries {
		out[i] = toApiError(e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"page": page, "errors": out})
}

func (a *API) getErrorLast(w http.ResponseWriter, r *http.Request) {
	e, ok := a.bus.Last()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toApiError(e))
}

func (a *API) getErrorByID(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	e, ok := a.bus.Get(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toApiError(e))
}

