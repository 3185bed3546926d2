package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/G-Research/jobstate/internal/jobstate/reporting"
	"github.com/G-Research/jobstate/pkg/api"
)

func (s *Server) addReportRoutes(r *mux.Router) {
	r.HandleFunc("/reports/summary", handle(http.StatusOK, s.summarySnapshot)).Methods(http.MethodGet)
	r.HandleFunc("/reports/sites", handle(http.StatusOK, s.siteSummary)).Methods(http.MethodGet)
	r.HandleFunc("/reports/counters", handle(http.StatusOK, s.counters)).Methods(http.MethodPost)
	r.HandleFunc("/reports/distinct", handle(http.StatusOK, s.distinctValues)).Methods(http.MethodPost)
	r.HandleFunc("/reports/jobs", handle(http.StatusOK, s.selectJobs)).Methods(http.MethodPost)
}

func (s *Server) summarySnapshot(r *http.Request) (interface{}, error) {
	return s.summaries.SummarySnapshot(r.Context())
}

func (s *Server) siteSummary(r *http.Request) (interface{}, error) {
	return s.summaries.GetSiteSummary(r.Context())
}

func (s *Server) counters(r *http.Request) (interface{}, error) {
	req := api.CountersRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return s.queries.GetCounters(r.Context(), req.GroupBy, req.Filter, req.Newer)
}

func (s *Server) distinctValues(r *http.Request) (interface{}, error) {
	req := api.DistinctValuesRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	values, err := s.queries.GetDistinctValues(r.Context(), req.Attribute, req.Filter)
	if err != nil {
		return nil, err
	}
	return api.ValuesResponse{Values: values}, nil
}

func (s *Server) selectJobs(r *http.Request) (interface{}, error) {
	req := api.SelectJobsRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	ids, err := s.queries.SelectJobs(r.Context(), reporting.Selection{
		Filter:     req.Filter,
		Newer:      req.Newer,
		Older:      req.Older,
		OrderBy:    req.OrderBy,
		Descending: req.Descending,
		Limit:      req.Limit,
	})
	if err != nil {
		return nil, err
	}
	return api.JobIDsResponse{JobIDs: ids}, nil
}
