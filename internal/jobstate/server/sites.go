package server

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/G-Research/jobstate/internal/jobstate/sitemask"
	"github.com/G-Research/jobstate/pkg/api"
)

func (s *Server) addSiteRoutes(r *mux.Router) {
	r.HandleFunc("/sites", handle(http.StatusOK, s.getMask)).Methods(http.MethodGet)
	r.HandleFunc("/sites/status", handle(http.StatusOK, s.setSiteStatus)).Methods(http.MethodPost)
	r.HandleFunc("/sites/remove", handle(http.StatusOK, s.removeSites)).Methods(http.MethodPost)
	r.HandleFunc("/sites/partition", handle(http.StatusOK, s.partitionSites)).Methods(http.MethodPost)
	r.HandleFunc("/sites/history", handle(http.StatusOK, s.getSiteMaskLogging)).Methods(http.MethodGet)
	r.HandleFunc("/sites/{site}", handle(http.StatusOK, s.getSiteStatus)).Methods(http.MethodGet)
}

func (s *Server) getMask(r *http.Request) (interface{}, error) {
	filter, err := sitemask.ParseFilter(r.URL.Query().Get("status"))
	if err != nil {
		return nil, err
	}
	return s.sites.GetMask(r.Context(), filter)
}

func (s *Server) setSiteStatus(r *http.Request) (interface{}, error) {
	req := api.SiteStatusRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	siteStatus, err := sitemask.ParseStatus(req.Status)
	if err != nil {
		return nil, err
	}
	changed, err := s.sites.SetSiteStatus(r.Context(), req.Sites, siteStatus, req.Author, req.Comment)
	if err != nil {
		return nil, err
	}
	return api.SitesResponse{Sites: changed}, nil
}

func (s *Server) removeSites(r *http.Request) (interface{}, error) {
	req := api.SitesRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	count, err := s.sites.RemoveSites(r.Context(), req.Sites)
	if err != nil {
		return nil, err
	}
	return api.CountResponse{Count: count}, nil
}

func (s *Server) partitionSites(r *http.Request) (interface{}, error) {
	req := api.SitesRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return s.sites.PartitionSites(r.Context(), req.Sites)
}

func (s *Server) getSiteMaskLogging(r *http.Request) (interface{}, error) {
	var sites []string
	for _, value := range r.URL.Query()["site"] {
		sites = append(sites, strings.Split(value, ",")...)
	}
	return s.sites.GetSiteMaskLogging(r.Context(), sites)
}

func (s *Server) getSiteStatus(r *http.Request) (interface{}, error) {
	site := mux.Vars(r)["site"]
	siteStatus, err := s.sites.GetSiteStatus(r.Context(), site)
	if err != nil {
		return nil, err
	}
	return api.SiteStatusResponse{Site: site, Status: string(siteStatus)}, nil
}

func sortedKeys(m map[string]string) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
