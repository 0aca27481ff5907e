package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/AngelCh415/funnel-insights/internal/analytics"
	"github.com/AngelCh415/funnel-insights/internal/export"
	"github.com/AngelCh415/funnel-insights/internal/ingest"
	"github.com/AngelCh415/funnel-insights/internal/metrics"
	"github.com/AngelCh415/funnel-insights/internal/telemetry"
	"github.com/AngelCh415/funnel-insights/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Log         *slog.Logger
	ETL         *ingest.ETL
	Service     *metrics.Service
	Telemetry   *telemetry.Collector
	Ready       Pinger
	CORSOrigins []string
}

// ErrorResponse is the body of every non-2xx JSON answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type reportHandler func(w http.ResponseWriter, r *http.Request, q metrics.Query, rep metrics.Report)

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(log))
	if d.Telemetry != nil {
		mux.Use(d.Telemetry.Middleware)
	}
	if len(d.CORSOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: d.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
			MaxAge:         300,
		}))
	}

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.Ready.Ping(ctx); err != nil {
				log.Warn("not ready", slog.String("err", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "store unreachable", Code: "not_ready"})
				return
			}
		}
		w.WriteHeader(200)
		w.Write([]byte("ready"))
	})
	if d.Telemetry != nil {
		mux.Method(http.MethodGet, "/metrics", d.Telemetry.Handler())
	}

	mux.Post("/ingest/run", func(w http.ResponseWriter, r *http.Request) {
		if d.ETL == nil {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "ingest not configured", Code: "unavailable"})
			return
		}
		var since *time.Time
		if q := r.URL.Query().Get("since"); q != "" {
			t, err := time.Parse("2006-01-02", q)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "since must be YYYY-MM-DD", Code: "bad_request"})
				return
			}
			since = &t
		}
		n, err := d.ETL.Run(r.Context(), since)
		if err != nil {
			log.Error("ingest failed", slog.String("rid", utils.RID(r.Context())), slog.String("err", err.Error()))
			writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: err.Error(), Code: "upstream"})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"ingested": n})
	})

	mux.Post("/export/run", withReport(log, d.Service, func(w http.ResponseWriter, r *http.Request, _ metrics.Query, rep metrics.Report) {
		if d.ETL == nil {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "export not configured", Code: "unavailable"})
			return
		}
		n, err := d.ETL.ExportReport(r.Context(), rep.Report)
		switch {
		case errors.Is(err, ingest.ErrSinkNotConfigured):
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: "unavailable"})
		case err != nil:
			writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: err.Error(), Code: "upstream"})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"exported": n, "report_id": rep.ID})
		}
	}))

	mux.Route("/analytics", func(ar chi.Router) {
		ar.Get("/report", withReport(log, d.Service, func(w http.ResponseWriter, _ *http.Request, _ metrics.Query, rep metrics.Report) {
			writeJSON(w, http.StatusOK, rep)
		}))
		ar.Get("/campaigns", withReport(log, d.Service, func(w http.ResponseWriter, _ *http.Request, q metrics.Query, rep metrics.Report) {
			rows := metrics.FilterKeys(rep.Metrics, q.Keys)
			writeJSON(w, http.StatusOK, metrics.Paginate(rows, q.Limit, q.Offset))
		}))
		ar.Get("/insights", withReport(log, d.Service, func(w http.ResponseWriter, _ *http.Request, _ metrics.Query, rep metrics.Report) {
			writeJSON(w, http.StatusOK, rep.Insights)
		}))
		ar.Get("/comparison", withReport(log, d.Service, func(w http.ResponseWriter, _ *http.Request, q metrics.Query, rep metrics.Report) {
			writeJSON(w, http.StatusOK, map[string]any{
				"has_prior":   rep.HasPrior,
				"comparisons": metrics.Paginate(rep.Comparisons, q.Limit, q.Offset),
			})
		}))
		ar.Get("/ranking", withReport(log, d.Service, func(w http.ResponseWriter, _ *http.Request, q metrics.Query, rep metrics.Report) {
			writeJSON(w, http.StatusOK, metrics.Paginate(rep.Ranking, q.Limit, q.Offset))
		}))
		ar.Get("/summary", withReport(log, d.Service, func(w http.ResponseWriter, _ *http.Request, _ metrics.Query, rep metrics.Report) {
			writeJSON(w, http.StatusOK, rep.Summary)
		}))
		ar.Get("/disqualifications", withReport(log, d.Service, func(w http.ResponseWriter, _ *http.Request, _ metrics.Query, rep metrics.Report) {
			writeJSON(w, http.StatusOK, rep.Disqualifications)
		}))
		ar.Get("/trend", withReport(log, d.Service, func(w http.ResponseWriter, _ *http.Request, _ metrics.Query, rep metrics.Report) {
			writeJSON(w, http.StatusOK, rep.Trend)
		}))
		ar.Get("/export.xlsx", withReport(log, d.Service, func(w http.ResponseWriter, r *http.Request, _ metrics.Query, rep metrics.Report) {
			var buf bytes.Buffer
			if err := export.WriteXLSX(&buf, export.CampaignTable(rep.Metrics), export.RankingTable(rep.Ranking)); err != nil {
				writeError(w, r, log, err)
				return
			}
			writeFile(w, xlsxContentType, "funnel-"+string(rep.Dimension)+".xlsx", buf.Bytes())
		}))
		ar.Get("/export.csv", withReport(log, d.Service, func(w http.ResponseWriter, r *http.Request, _ metrics.Query, rep metrics.Report) {
			t := export.CampaignTable(rep.Metrics)
			if r.URL.Query().Get("table") == "ranking" {
				t = export.RankingTable(rep.Ranking)
			}
			var buf bytes.Buffer
			if err := export.WriteCSV(&buf, t); err != nil {
				writeError(w, r, log, err)
				return
			}
			writeFile(w, "text/csv; charset=utf-8", "funnel-"+string(rep.Dimension)+".csv", buf.Bytes())
		}))
	})

	return mux
}

func withReport(log *slog.Logger, svc *metrics.Service, fn reportHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := metrics.ParseQuery(r.URL.Query())
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		rep, err := svc.Report(r.Context(), q)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		fn(w, r, q, rep)
	}
}

// writeError maps domain errors onto status codes. Unknown errors are logged
// and hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, analytics.ErrInvalidThresholds):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "invalid_thresholds"})
	case errors.Is(err, metrics.ErrBadRequest):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "bad_request"})
	case errors.Is(err, metrics.ErrSource):
		log.Error("lead source", slog.String("rid", utils.RID(r.Context())), slog.String("err", err.Error()))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "lead source unavailable", Code: "upstream"})
	default:
		log.Error("internal error", slog.String("rid", utils.RID(r.Context())), slog.String("err", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "internal"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}

func writeFile(w http.ResponseWriter, contentType, name string, b []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}
