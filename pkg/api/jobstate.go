package api

import "time"

// Request and response bodies of the jobstate HTTP API.

type SubmitJobRequest struct {
	Description   string `json:"description"`
	Owner         string `json:"owner"`
	OwnerDN       string `json:"ownerDN"`
	OwnerGroup    string `json:"ownerGroup"`
	VO            string `json:"vo,omitempty"`
	InitialStatus string `json:"initialStatus,omitempty"`
}

// SetAttributesRequest sets the same values on one job (from the path) or on JobIDs.
type SetAttributesRequest struct {
	JobIDs              []int64           `json:"jobIds,omitempty"`
	Values              map[string]string `json:"values"`
	TouchLastUpdate     bool              `json:"touchLastUpdate,omitempty"`
	OnlyIfUpdatedBefore *time.Time        `json:"onlyIfUpdatedBefore,omitempty"`
}

type SetAttributesResponse struct {
	Updated bool  `json:"updated"`
	Count   int64 `json:"count"`
}

type GetAttributesRequest struct {
	JobIDs []int64  `json:"jobIds"`
	Names  []string `json:"names,omitempty"`
}

type SetJobsParametersRequest struct {
	Values map[int64]map[string]string `json:"values"`
}

type GetParametersRequest struct {
	JobIDs []int64  `json:"jobIds"`
	Names  []string `json:"names,omitempty"`
}

type InputFilesRequest struct {
	Paths []string `json:"paths"`
}

type DescriptionResponse struct {
	Description string `json:"description"`
}

// StatusChangeRequest moves one job (from the path) or JobIDs to Status. Override skips the
// transition guard and is meant for administrators.
type StatusChangeRequest struct {
	JobIDs            []int64    `json:"jobIds,omitempty"`
	Status            string     `json:"status"`
	MinorStatus       string     `json:"minorStatus,omitempty"`
	ApplicationStatus string     `json:"applicationStatus,omitempty"`
	Source            string     `json:"source,omitempty"`
	Timestamp         *time.Time `json:"timestamp,omitempty"`
	Override          bool       `json:"override,omitempty"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type StatusesResponse struct {
	Statuses map[int64]string `json:"statuses"`
}

type OptimizerChainResponse struct {
	Chain []string `json:"chain"`
}

type AdvanceOptimizerRequest struct {
	Stage string `json:"stage"`
}

type AdvanceOptimizerResponse struct {
	Next string `json:"next"`
}

type JobIDsRequest struct {
	JobIDs []int64 `json:"jobIds"`
	Source string  `json:"source,omitempty"`
}

type RescheduleRequest struct {
	Source string `json:"source,omitempty"`
}

type HeartbeatRequest struct {
	Metrics map[string]string `json:"metrics,omitempty"`
	Time    *time.Time        `json:"time,omitempty"`
}

type CommandRequest struct {
	Command   string `json:"command"`
	Arguments string `json:"arguments,omitempty"`
}

type CountResponse struct {
	Count int64 `json:"count"`
}

type SiteStatusRequest struct {
	Sites   []string `json:"sites"`
	Status  string   `json:"status"`
	Author  string   `json:"author"`
	Comment string   `json:"comment,omitempty"`
}

type SitesRequest struct {
	Sites []string `json:"sites"`
}

type SitesResponse struct {
	Sites []string `json:"sites"`
}

type SiteStatusResponse struct {
	Site   string `json:"site"`
	Status string `json:"status"`
}

type CountersRequest struct {
	GroupBy []string            `json:"groupBy"`
	Filter  map[string][]string `json:"filter,omitempty"`
	Newer   *time.Time          `json:"newer,omitempty"`
}

type DistinctValuesRequest struct {
	Attribute string              `json:"attribute"`
	Filter    map[string][]string `json:"filter,omitempty"`
}

type ValuesResponse struct {
	Values []string `json:"values"`
}

type SelectJobsRequest struct {
	Filter     map[string][]string `json:"filter,omitempty"`
	Newer      *time.Time          `json:"newer,omitempty"`
	Older      *time.Time          `json:"older,omitempty"`
	OrderBy    string              `json:"orderBy,omitempty"`
	Descending bool                `json:"descending,omitempty"`
	Limit      uint                `json:"limit,omitempty"`
}

type JobIDsResponse struct {
	JobIDs []int64 `json:"jobIds"`
}

type AttributesResponse struct {
	Attributes []string `json:"attributes"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
