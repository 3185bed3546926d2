package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/G-Research/jobstate/internal/common/wmserrors"
	"github.com/G-Research/jobstate/internal/jobstate/repository"
	"github.com/G-Research/jobstate/internal/jobstate/status"
	"github.com/G-Research/jobstate/pkg/api"
)

const jobPath = "/jobs/{jobId:[0-9]+}"

func (s *Server) addJobRoutes(r *mux.Router) {
	r.HandleFunc("/attributes", handle(http.StatusOK, s.listAttributes)).Methods(http.MethodGet)

	r.HandleFunc("/jobs", handle(http.StatusCreated, s.submitJob)).Methods(http.MethodPost)
	r.HandleFunc("/jobs/attributes/query", handle(http.StatusOK, s.getJobsAttributes)).Methods(http.MethodPost)
	r.HandleFunc("/jobs/attributes", handle(http.StatusOK, s.setJobsAttributes)).Methods(http.MethodPost)
	r.HandleFunc("/jobs/parameters/query", handle(http.StatusOK, s.getJobsParameters)).Methods(http.MethodPost)
	r.HandleFunc("/jobs/parameters", handle(http.StatusNoContent, s.setJobsParameters)).Methods(http.MethodPost)
	r.HandleFunc("/jobs/status", handle(http.StatusOK, s.changeJobsStatus)).Methods(http.MethodPost)
	r.HandleFunc("/jobs/mark-deleted", handle(http.StatusOK, s.markDeleted)).Methods(http.MethodPost)
	r.HandleFunc("/jobs/reschedule", handle(http.StatusOK, s.rescheduleJobs)).Methods(http.MethodPost)
	r.HandleFunc("/jobs/delete", handle(http.StatusOK, s.deleteJobs)).Methods(http.MethodPost)

	r.HandleFunc(jobPath, handle(http.StatusOK, s.getJob)).Methods(http.MethodGet)
	r.HandleFunc(jobPath+"/attributes", handle(http.StatusOK, s.getAttributes)).Methods(http.MethodGet)
	r.HandleFunc(jobPath+"/attributes", handle(http.StatusOK, s.setAttributes)).Methods(http.MethodPut)
	r.HandleFunc(jobPath+"/parameters", handle(http.StatusOK, s.getParameters)).Methods(http.MethodGet)
	r.HandleFunc(jobPath+"/parameters", handle(http.StatusNoContent, s.setParameters)).Methods(http.MethodPut)
	r.HandleFunc(jobPath+"/attic/{cycle:[0-9]+}", handle(http.StatusOK, s.getAtticParameters)).Methods(http.MethodGet)
	r.HandleFunc(jobPath+"/optimizer-parameters", handle(http.StatusOK, s.getOptimizerParameters)).Methods(http.MethodGet)
	r.HandleFunc(jobPath+"/optimizer-parameters", handle(http.StatusNoContent, s.setOptimizerParameters)).Methods(http.MethodPut)
	r.HandleFunc(jobPath+"/optimizer-parameters", handle(http.StatusNoContent, s.removeOptimizerParameters)).Methods(http.MethodDelete)
	r.HandleFunc(jobPath+"/description", handle(http.StatusOK, s.getDescription)).Methods(http.MethodGet)
	r.HandleFunc(jobPath+"/input-files", handle(http.StatusOK, s.getInputFiles)).Methods(http.MethodGet)
	r.HandleFunc(jobPath+"/input-files", handle(http.StatusNoContent, s.setInputFiles)).Methods(http.MethodPut)
	r.HandleFunc(jobPath+"/status", handle(http.StatusOK, s.changeStatus)).Methods(http.MethodPost)
	r.HandleFunc(jobPath+"/logging", handle(http.StatusOK, s.getLoggingInfo)).Methods(http.MethodGet)
	r.HandleFunc(jobPath+"/optimizer-chain", handle(http.StatusOK, s.getOptimizerChain)).Methods(http.MethodGet)
	r.HandleFunc(jobPath+"/optimizer/advance", handle(http.StatusOK, s.advanceOptimizer)).Methods(http.MethodPost)
	r.HandleFunc(jobPath+"/reschedule", handle(http.StatusOK, s.reschedule)).Methods(http.MethodPost)
	r.HandleFunc(jobPath+"/heartbeat", handle(http.StatusOK, s.heartbeat)).Methods(http.MethodPost)
	r.HandleFunc(jobPath+"/heartbeat", handle(http.StatusOK, s.getHeartbeatData)).Methods(http.MethodGet)
	r.HandleFunc(jobPath+"/commands", handle(http.StatusCreated, s.enqueueCommand)).Methods(http.MethodPost)
	r.HandleFunc(jobPath+"/commands", handle(http.StatusOK, s.pollCommands)).Methods(http.MethodGet)
	r.HandleFunc(jobPath+"/commands/delivered", handle(http.StatusOK, s.markCommandDelivered)).Methods(http.MethodPost)
}

func (s *Server) listAttributes(_ *http.Request) (interface{}, error) {
	return api.AttributesResponse{Attributes: s.jobs.Attributes()}, nil
}

func (s *Server) submitJob(r *http.Request) (interface{}, error) {
	req := api.SubmitJobRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return s.jobs.InsertJob(r.Context(), repository.Submission{
		Description:   req.Description,
		Owner:         req.Owner,
		OwnerDN:       req.OwnerDN,
		OwnerGroup:    req.OwnerGroup,
		VO:            req.VO,
		InitialStatus: status.Status(req.InitialStatus),
	})
}

func (s *Server) getJob(r *http.Request) (interface{}, error) {
	id, err := jobIdVar(r)
	if err != nil {
		return nil, err
	}
	return s.jobs.GetJob(r.Context(), id)
}

func (s *Server) getAttributes(r *http.Request) (interface{}, error) {
	id, err := jobIdVar(r)
	if err != nil {
		return nil, err
	}
	return s.jobs.GetAttributes(r.Context(), id, r.URL.Query()["name"]...)
}

func (s *Server) getJobsAttributes(r *http.Request) (interface{}, error) {
	req := api.GetAttributesRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if err := s.checkBatch(len(req.JobIDs)); err != nil {
		return nil, err
	}
	return s.jobs.GetJobsAttributes(r.Context(), req.JobIDs, req.Names...)
}

func (s *Server) setAttributes(r *http.Request) (interface{}, error) {
	id, err := jobIdVar(r)
	if err != nil {
		return nil, err
	}
	req := api.SetAttributesRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	updated, err := s.jobs.SetAttributes(r.Context(), id, req.Values, updateOptions(req))
	if err != nil {
		return nil, err
	}
	count := int64(0)
	if updated {
		count = 1
	}
	return api.SetAttributesResponse{Updated: updated, Count: count}, nil
}

func (s *Server) setJobsAttributes(r *http.Request) (interface{}, error) {
	req := api.SetAttributesRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if err := s.checkBatch(len(req.JobIDs)); err != nil {
		return nil, err
	}
	count, err := s.jobs.SetJobsAttributes(r.Context(), req.JobIDs, req.Values, updateOptions(req))
	if err != nil {
		return nil, err
	}
	return api.SetAttributesResponse{Updated: count > 0, Count: count}, nil
}

func updateOptions(req api.SetAttributesRequest) repository.AttributeUpdateOptions {
	return repository.AttributeUpdateOptions{
		TouchLastUpdate:     req.TouchLastUpdate,
		OnlyIfUpdatedBefore: req.OnlyIfUpdatedBefore,
	}
}

func (s *Server) getParameters(r *http.Request) (interface{}, error) {
	id, err := jobIdVar(r)
	if err != nil {
		return nil, err
	}
	params, err := s.jobs.GetParameters(r.Context(), []int64{id}, r.URL.Query()["name"]...)
	if err != nil {
		return nil, err
	}
	if params[id] == nil {
		return map[string]string{}, nil
	}
	return params[id], nil
}

func (s *Server) getJobsParameters(r *http.Request) (interface{}, error) {
	req := api.GetParametersRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if err := s.checkBatch(len(req.JobIDs)); err != nil {
		return nil, err
	}
	return s.jobs.GetParameters(r.Context(), req.JobIDs, req.Names...)
}

func (s *Server) setParameters(r *http.Request) (interface{}, error) {
	id, err := jobIdVar(r)
	if err != nil {
		return nil, err
	}
	values := map[string]string{}
	if err := decode(r, &values); err != nil {
		return nil, err
	}
	return nil, s.jobs.SetParameters(r.Context(), id, values)
}

func (s *Server) setJobsParameters(r *http.Request) (interface{}, error) {
	req := api.SetJobsParametersRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if err := s.checkBatch(len(req.Values)); err != nil {
		return nil, err
	}
	return nil, s.jobs.SetJobsParameters(r.Context(), req.Values)
}

func (s *Server) getAtticParameters(r *http.Request) (interface{}, error) {
	id, err := jobIdVar(r)
	if err != nil {
		return nil, err
	}
	cycle, err := strconv.Atoi(mux.Vars(r)["cycle"])
	if err != nil {
		return nil, errors.WithStack(&wmserrors.ErrInvalidArgument{Name: "cycle", Value: mux.Vars(r)["cycle"], Message: err.Error()})
	}
	return s.jobs.GetAtticParameters(r.Context(), id, cycle)
}

func (s *Server) getOptimizerParameters(r *http.Request) (interface{}, error) {
	id, err := jobIdVar(r)
	if err != nil {
		return nil, err
	}
	return s.jobs.GetOptimizerParameters(r.Context(), id, r.URL.Query()["name"]...)
}

func (s *Server) setOptimizerParameters(r *http.Request) (interface{}, error) {
	id, err := jobIdVar(r)
	if err != nil {
		return nil, err
	}
	values := map[string]string{}
	if err := decode(r, &values); err != nil {
		return nil, err
	}
	for _, name := range sortedKeys(values) {
		if err := s.jobs.SetOptimizerParameter(r.Context(), id, name, values[name]); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (s *Server) removeOptimizerParameters(r *http.Request) (interface{}, error) {
	id, err := jobIdVar(r)
	if err != nil {
		return nil, err
	}
	return nil, s.jobs.RemoveOptimizerParameters(r.Context(), id, r.URL.Query()["name"]...)
}

func (s *Server) getDescription(r *http.Request) (interface{}, error) {
	id, err := jobIdVar(r)
	if err != nil {
		return nil, err
	}
	original := r.URL.Query().Get("original") == "true"
	description, err := s.jobs.GetJobDescription(r.Context(), id, original)
	if err != nil {
		return nil, err
	}
	return api.DescriptionResponse{Description: description}, nil
}

func (s *Server) getInputFiles(r *http.Request) (interface{}, error) {
	id, err := jobIdVar(r)
	if err != nil {
		return nil, err
	}
	return s.jobs.GetInputFiles(r.Context(), id)
}

func (s *Server) setInputFiles(r *http.Request) (interface{}, error) {
	id, err := jobIdVar(r)
	if err != nil {
		return nil, err
	}
	req := api.InputFilesRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return nil, s.jobs.SetInputFiles(r.Context(), id, req.Paths)
}

func toChange(req api.StatusChangeRequest) (repository.Change, error) {
	s, err := status.Parse(req.Status)
	if err != nil {
		return repository.Change{}, err
	}
	change := repository.Change{
		Status:            s,
		MinorStatus:       req.MinorStatus,
		ApplicationStatus: req.ApplicationStatus,
		Source:            req.Source,
	}
	if req.Timestamp != nil {
		change.Timestamp = *req.Timestamp
	}
	return change, nil
}

func (s *Server) changeStatus(r *http.Request) (interface{}, error) {
	id, err := jobIdVar(r)
	if err != nil {
		return nil, err
	}
	req := api.StatusChangeRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	change, err := toChange(req)
	if err != nil {
		return nil, err
	}
	if req.Override {
		if err := s.jobs.OverrideStatus(r.Context(), id, change); err != nil {
			return nil, err
		}
		return api.StatusResponse{Status: string(change.Status)}, nil
	}
	stored, err := s.jobs.RequestTransition(r.Context(), id, change)
	if err != nil {
		return nil, err
	}
	return api.StatusResponse{Status: string(stored)}, nil
}

func (s *Server) changeJobsStatus(r *http.Request) (interface{}, error) {
	req := api.StatusChangeRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if err := s.checkBatch(len(req.JobIDs)); err != nil {
		return nil, err
	}
	change, err := toChange(req)
	if err != nil {
		return nil, err
	}
	var applied map[int64]status.Status
	if req.Override {
		applied, err = s.jobs.OverrideStatuses(r.Context(), req.JobIDs, change)
	} else {
		applied, err = s.jobs.RequestTransitions(r.Context(), req.JobIDs, change)
	}
	if err != nil {
		return nil, err
	}
	return statusesResponse(applied), nil
}

func (s *Server) markDeleted(r *http.Request) (interface{}, error) {
	req := api.JobIDsRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if err := s.checkBatch(len(req.JobIDs)); err != nil {
		return nil, err
	}
	applied, err := s.jobs.MarkDeleted(r.Context(), req.JobIDs, req.Source)
	if err != nil {
		return nil, err
	}
	return statusesResponse(applied), nil
}

func statusesResponse(applied map[int64]status.Status) api.StatusesResponse {
	statuses := make(map[int64]string, len(applied))
	for id, s := range applied {
		statuses[id] = string(s)
	}
	return api.StatusesResponse{Statuses: statuses}
}

func (s *Server) getLoggingInfo(r *http.Request) (interface{}, error) {
	id, err := jobIdVar(r)
	if err != nil {
		return nil, err
	}
	return s.jobs.GetLoggingInfo(r.Context(), id)
}

func (s *Server) getOptimizerChain(r *http.Request) (interface{}, error) {
	id, err := jobIdVar(r)
	if err != nil {
		return nil, err
	}
	chain, err := s.jobs.GetOptimizerChain(r.Context(), id)
	if err != nil {
		return nil, err
	}
	return api.OptimizerChainResponse{Chain: chain}, nil
}

func (s *Server) advanceOptimizer(r *http.Request) (interface{}, error) {
	id, err := jobIdVar(r)
	if err != nil {
		return nil, err
	}
	req := api.AdvanceOptimizerRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	next, err := s.jobs.AdvanceOptimizer(r.Context(), id, req.Stage)
	if err != nil {
		return nil, err
	}
	return api.AdvanceOptimizerResponse{Next: next}, nil
}

func (s *Server) reschedule(r *http.Request) (interface{}, error) {
	id, err := jobIdVar(r)
	if err != nil {
		return nil, err
	}
	req := api.RescheduleRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return s.jobs.Reschedule(r.Context(), id, req.Source)
}

func (s *Server) rescheduleJobs(r *http.Request) (interface{}, error) {
	req := api.JobIDsRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if err := s.checkBatch(len(req.JobIDs)); err != nil {
		return nil, err
	}
	return s.jobs.RescheduleJobs(r.Context(), req.JobIDs, req.Source), nil
}

func (s *Server) heartbeat(r *http.Request) (interface{}, error) {
	id, err := jobIdVar(r)
	if err != nil {
		return nil, err
	}
	req := api.HeartbeatRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	at := time.Time{}
	if req.Time != nil {
		at = *req.Time
	}
	return s.jobs.Heartbeat(r.Context(), id, req.Metrics, at)
}

func (s *Server) getHeartbeatData(r *http.Request) (interface{}, error) {
	id, err := jobIdVar(r)
	if err != nil {
		return nil, err
	}
	return s.jobs.GetHeartbeatData(r.Context(), id)
}

func (s *Server) enqueueCommand(r *http.Request) (interface{}, error) {
	id, err := jobIdVar(r)
	if err != nil {
		return nil, err
	}
	req := api.CommandRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return nil, s.jobs.EnqueueCommand(r.Context(), id, req.Command, req.Arguments)
}

func (s *Server) pollCommands(r *http.Request) (interface{}, error) {
	id, err := jobIdVar(r)
	if err != nil {
		return nil, err
	}
	return s.jobs.PollCommands(r.Context(), id, r.URL.Query().Get("status"))
}

func (s *Server) markCommandDelivered(r *http.Request) (interface{}, error) {
	id, err := jobIdVar(r)
	if err != nil {
		return nil, err
	}
	req := api.CommandRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	count, err := s.jobs.MarkCommandDelivered(r.Context(), id, req.Command)
	if err != nil {
		return nil, err
	}
	return api.CountResponse{Count: count}, nil
}

func (s *Server) deleteJobs(r *http.Request) (interface{}, error) {
	req := api.JobIDsRequest{}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if err := s.checkBatch(len(req.JobIDs)); err != nil {
		return nil, err
	}
	count, err := s.jobs.DeleteJobs(r.Context(), req.JobIDs)
	if err != nil {
		return nil, err
	}
	return api.CountResponse{Count: count}, nil
}
