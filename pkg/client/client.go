package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"

	"github.com/G-Research/jobstate/internal/jobstate/reporting"
	"github.com/G-Research/jobstate/internal/jobstate/repository"
	"github.com/G-Research/jobstate/internal/jobstate/sitemask"
	"github.com/G-Research/jobstate/internal/jobstate/status"
	"github.com/G-Research/jobstate/pkg/api"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jobstate server returned %d: %s", e.StatusCode, e.Message)
}

func IsNotFound(err error) bool {
	var e *APIError
	return errors.As(err, &e) && e.StatusCode == http.StatusNotFound
}

// Client talks to the jobstate HTTP API.
type Client struct {
	baseUrl  string
	http     *http.Client
	attempts uint
}

func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func (c *Client) SubmitJob(ctx context.Context, req api.SubmitJobRequest) (*repository.SubmissionResult, error) {
	result := &repository.SubmissionResult{}
	if err := c.do(ctx, http.MethodPost, "/jobs", req, result, false); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) GetJob(ctx context.Context, jobId int64) (*repository.Job, error) {
	job := &repository.Job{}
	if err := c.do(ctx, http.MethodGet, jobPath(jobId, ""), nil, job, true); err != nil {
		return nil, err
	}
	return job, nil
}

func (c *Client) GetAttributes(ctx context.Context, jobId int64, names ...string) (map[string]string, error) {
	query := url.Values{"name": names}
	values := map[string]string{}
	if err := c.do(ctx, http.MethodGet, jobPath(jobId, "/attributes")+encode(query), nil, &values, true); err != nil {
		return nil, err
	}
	return values, nil
}

func (c *Client) SetAttributes(ctx context.Context, jobId int64, req api.SetAttributesRequest) (bool, error) {
	resp := api.SetAttributesResponse{}
	if err := c.do(ctx, http.MethodPut, jobPath(jobId, "/attributes"), req, &resp, true); err != nil {
		return false, err
	}
	return resp.Updated, nil
}

// ChangeStatus asks for a status change and returns the status that was stored.
func (c *Client) ChangeStatus(ctx context.Context, jobId int64, req api.StatusChangeRequest) (status.Status, error) {
	resp := api.StatusResponse{}
	if err := c.do(ctx, http.MethodPost, jobPath(jobId, "/status"), req, &resp, false); err != nil {
		return "", err
	}
	return status.Status(resp.Status), nil
}

func (c *Client) GetLoggingInfo(ctx context.Context, jobId int64) ([]repository.LoggingRecord, error) {
	var records []repository.LoggingRecord
	if err := c.do(ctx, http.MethodGet, jobPath(jobId, "/logging"), nil, &records, true); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) Reschedule(ctx context.Context, jobId int64, source string) (*repository.RescheduleResult, error) {
	result := &repository.RescheduleResult{}
	if err := c.do(ctx, http.MethodPost, jobPath(jobId, "/reschedule"), api.RescheduleRequest{Source: source}, result, false); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) RescheduleJobs(ctx context.Context, jobIds []int64, source string) (map[int64]repository.RescheduleOutcome, error) {
	outcomes := map[int64]repository.RescheduleOutcome{}
	if err := c.do(ctx, http.MethodPost, "/jobs/reschedule", api.JobIDsRequest{JobIDs: jobIds, Source: source}, &outcomes, false); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (c *Client) DeleteJobs(ctx context.Context, jobIds []int64) (int64, error) {
	resp := api.CountResponse{}
	if err := c.do(ctx, http.MethodPost, "/jobs/delete", api.JobIDsRequest{JobIDs: jobIds}, &resp, true); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Heartbeat records samples for a running job and returns the commands waiting for it.
func (c *Client) Heartbeat(ctx context.Context, jobId int64, samples map[string]string, at *time.Time) ([]repository.Command, error) {
	var commands []repository.Command
	req := api.HeartbeatRequest{Metrics: samples, Time: at}
	if err := c.do(ctx, http.MethodPost, jobPath(jobId, "/heartbeat"), req, &commands, false); err != nil {
		return nil, err
	}
	return commands, nil
}

func (c *Client) EnqueueCommand(ctx context.Context, jobId int64, command string, arguments string) error {
	req := api.CommandRequest{Command: command, Arguments: arguments}
	return c.do(ctx, http.MethodPost, jobPath(jobId, "/commands"), req, nil, false)
}

// GetMask lists the site mask. statusFilter is "", "All" or a site status.
func (c *Client) GetMask(ctx context.Context, statusFilter string) ([]sitemask.Entry, error) {
	query := url.Values{}
	if statusFilter != "" {
		query.Set("status", statusFilter)
	}
	var entries []sitemask.Entry
	if err := c.do(ctx, http.MethodGet, "/sites"+encode(query), nil, &entries, true); err != nil {
		return nil, err
	}
	return entries, nil
}

// SetSiteStatus returns the sites whose status actually changed.
func (c *Client) SetSiteStatus(ctx context.Context, req api.SiteStatusRequest) ([]string, error) {
	resp := api.SitesResponse{}
	if err := c.do(ctx, http.MethodPost, "/sites/status", req, &resp, true); err != nil {
		return nil, err
	}
	return resp.Sites, nil
}

func (c *Client) RemoveSites(ctx context.Context, sites []string) (int64, error) {
	resp := api.CountResponse{}
	if err := c.do(ctx, http.MethodPost, "/sites/remove", api.SitesRequest{Sites: sites}, &resp, true); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *Client) GetSiteStatus(ctx context.Context, site string) (sitemask.Status, error) {
	resp := api.SiteStatusResponse{}
	if err := c.do(ctx, http.MethodGet, "/sites/"+url.PathEscape(site), nil, &resp, true); err != nil {
		return "", err
	}
	return sitemask.Status(resp.Status), nil
}

func (c *Client) PartitionSites(ctx context.Context, sites []string) (sitemask.Partition, error) {
	partition := sitemask.Partition{}
	if err := c.do(ctx, http.MethodPost, "/sites/partition", api.SitesRequest{Sites: sites}, &partition, true); err != nil {
		return sitemask.Partition{}, err
	}
	return partition, nil
}

func (c *Client) GetSiteMaskLogging(ctx context.Context, sites []string) (map[string][]sitemask.LogEntry, error) {
	query := url.Values{"site": sites}
	history := map[string][]sitemask.LogEntry{}
	if err := c.do(ctx, http.MethodGet, "/sites/history"+encode(query), nil, &history, true); err != nil {
		return nil, err
	}
	return history, nil
}

func (c *Client) SummarySnapshot(ctx context.Context) ([]reporting.SummaryRow, error) {
	var rows []reporting.SummaryRow
	if err := c.do(ctx, http.MethodGet, "/reports/summary", nil, &rows, true); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) GetSiteSummary(ctx context.Context) (map[string]map[status.Status]int64, error) {
	summary := map[string]map[status.Status]int64{}
	if err := c.do(ctx, http.MethodGet, "/reports/sites", nil, &summary, true); err != nil {
		return nil, err
	}
	return summary, nil
}

func (c *Client) GetCounters(ctx context.Context, req api.CountersRequest) ([]reporting.Counter, error) {
	var counters []reporting.Counter
	if err := c.do(ctx, http.MethodPost, "/reports/counters", req, &counters, true); err != nil {
		return nil, err
	}
	return counters, nil
}

func (c *Client) do(ctx context.Context, method string, path string, in interface{}, out interface{}, idempotent bool) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return errors.WithStack(err)
		}
	}
	attempts := c.attempts
	if !idempotent {
		attempts = 1
	}
	return retry.Do(
		func() error {
			return c.roundTrip(ctx, method, path, body, out)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
	)
}

func (c *Client) roundTrip(ctx context.Context, method string, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseUrl+path, reader)
	if err != nil {
		return errors.WithStack(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.WithStack(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		errResp := api.ErrorResponse{}
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Error != "" {
			apiErr.Message = errResp.Error
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decoding response of %s %s", method, path)
	}
	return nil
}

// retryable holds for transport failures and for an unavailable store.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusServiceUnavailable
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func jobPath(jobId int64, suffix string) string {
	return "/jobs/" + strconv.FormatInt(jobId, 10) + suffix
}

func encode(query url.Values) string {
	encoded := query.Encode()
	if encoded == "" {
		return ""
	}
	return "?" + encoded
}
