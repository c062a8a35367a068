package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"tariff_dashboard/internal/dashboard"
	"tariff_dashboard/internal/ingest"
	"tariff_dashboard/internal/metrics"
	"tariff_dashboard/internal/model"
	"tariff_dashboard/internal/report"
	"tariff_dashboard/internal/timestamp"
	"tariff_dashboard/internal/ws"
)

type errorResponse struct {
	Error string `json:"error"`
}

type slotRow struct {
	ws.SlotPayload
	EnergyKWh *float64 `json:"energy_kwh,omitempty"`
	Cost      *float64 `json:"cost,omitempty"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Slots   int    `json:"slots"`
	Profile bool   `json:"profile"`
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	_, loaded := a.engine.Profile()
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Slots: a.engine.SlotCount(), Profile: loaded})
}

func (a *API) loadTariff(w http.ResponseWriter, r *http.Request) {
	var p ws.TariffLoadPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	q, err := p.Query(a.location)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.fetchTimeout)
	defer cancel()

	err = a.engine.Load(ctx, q, p.Demo)
	switch {
	case errors.Is(err, dashboard.ErrNoSlots):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		a.logger.Warn().Err(err).Str("tariff_type", q.TariffType).Msg("tariff load failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	// Another session may have replaced the slots since Load returned.
	update := a.engine.CurrentSlots()
	if len(update.Slots) == 0 {
		writeError(w, http.StatusNotFound, dashboard.ErrNoSlots.Error())
		return
	}
	writeJSON(w, http.StatusOK, ws.TariffSlotsFromEngine(update))
}

// listSlots returns every slot joined with the profile energy. Optional from
// and to parameters limit the result to slots starting in [from, to).
func (a *API) listSlots(w http.ResponseWriter, r *http.Request) {
	from, ok := a.queryTime(r, "from")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid from")
		return
	}
	to, ok := a.queryTime(r, "to")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid to")
		return
	}

	var rows []dashboard.SlotRow
	if from.IsZero() && to.IsZero() {
		rows = a.engine.Rows()
	} else {
		rows = a.engine.RowsInRange(from, to)
	}
	if len(rows) == 0 {
		writeError(w, http.StatusNotFound, dashboard.ErrNoSlots.Error())
		return
	}

	slots := make([]slotRow, len(rows))
	for i, row := range rows {
		slots[i] = toSlotRow(row)
	}
	writeJSON(w, http.StatusOK, slots)
}

// slotAt returns the slot containing the instant given by the t parameter.
func (a *API) slotAt(w http.ResponseWriter, r *http.Request) {
	t, ok := a.queryTime(r, "t")
	if !ok || t.IsZero() {
		writeError(w, http.StatusBadRequest, "t must be a timestamp")
		return
	}
	row, ok := a.engine.RowAt(t)
	if !ok {
		writeError(w, http.StatusNotFound, "no tariff slot at "+t.Format(time.RFC3339))
		return
	}
	writeJSON(w, http.StatusOK, toSlotRow(row))
}

// queryTime parses the named query parameter. A missing parameter yields the
// zero time.
func (a *API) queryTime(r *http.Request, name string) (time.Time, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, true
	}
	return timestamp.Parse(v, a.location)
}

func toSlotRow(row dashboard.SlotRow) slotRow {
	out := slotRow{SlotPayload: ws.SlotsFromModel([]model.TariffSlot{row.Slot})[0]}
	if row.HasEnergy {
		energy, cost := row.EnergyKWh, row.Cost
		out.EnergyKWh = &energy
		out.Cost = &cost
	}
	return out
}

func (a *API) uploadProfile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)

	name, raw, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	loaded, err := a.engine.UploadProfile(name, raw)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ingest.ErrSchema) || errors.Is(err, ingest.ErrNoData) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, ws.ProfileFromEngine(loaded.ID, loaded.Name, loaded.Profile.Meta))
}

// readUpload accepts a multipart form with a "file" field or a raw body
// named by the "name" query parameter.
func readUpload(r *http.Request) (string, []byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, err
		}
		defer file.Close()
		raw, err := io.ReadAll(file)
		return header.Filename, raw, err
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return "", nil, err
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload.csv"
	}
	return name, raw, nil
}

func (a *API) getProfile(w http.ResponseWriter, _ *http.Request) {
	p, ok := a.engine.Profile()
	if !ok {
		writeError(w, http.StatusNotFound, dashboard.ErrNoProfile.Error())
		return
	}
	writeJSON(w, http.StatusOK, ws.ProfileFromEngine(p.ID, p.Name, p.Profile.Meta))
}

func (a *API) clearProfile(w http.ResponseWriter, _ *http.Request) {
	a.engine.ClearProfile()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listAppliances(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.Appliances())
}

func (a *API) recommendations(w http.ResponseWriter, _ *http.Request) {
	recs, err := a.engine.Recommendations()
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ws.RecommendationsFromEngine(recs))
}

func (a *API) comparison(w http.ResponseWriter, r *http.Request) {
	rate := a.engine.Baseline()
	if v := r.URL.Query().Get("baseline"); v != "" {
		parsed, err := strconv.ParseFloat(strings.Replace(v, ",", ".", 1), 64)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "baseline must be a non-negative number")
			return
		}
		rate = parsed
	}

	c, err := a.engine.ComparisonAt(rate)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ws.ComparisonFromEngine(c))
}

func (a *API) export(w http.ResponseWriter, r *http.Request) {
	format := mux.Vars(r)["format"]

	rep, err := report.FromEngine(a.engine, a.now())
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultEmpty)
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case report.FormatXLSX:
		data, err = report.XLSX(rep)
		contentType = report.ContentTypeXLSX
	default:
		data, err = report.PDF(rep)
		contentType = report.ContentTypePDF
	}
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError)
		a.logger.Error().Err(err).Str("format", format).Msg("export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	metrics.ObserveExport(format, metrics.ResultSuccess)

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+rep.Filename(format)+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
