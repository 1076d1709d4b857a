package wsbridge

import (
	"context"
	"fmt"
	"log"
	"time"

	"maestro/agent"
	"maestro/streamers"
)

func (s *Server) registerHandlers() {
	s.handlers[TypeGetConfig] = s.handleGetConfig
	s.handlers[TypeRunQuery] = s.handleRunQuery
	s.handlers[TypeGetRuns] = s.handleGetRuns
	s.handlers[TypeGetRun] = s.handleGetRun
	s.handlers[TypeGetEvents] = s.handleGetEvents
}

func (s *Server) handleGetConfig(conn *Conn, env *Envelope) (*Envelope, error) {
	return NewResponse(env.RequestID, TypeGetConfigResult, &GetConfigResultPayload{
		Config: ConfigToInstanceInfo(s.cfg),
	})
}

func (s *Server) handleRunQuery(conn *Conn, env *Envelope) (*Envelope, error) {
	var payload RunQueryPayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, fmt.Errorf("decode run_query: %w", err)
	}
	if payload.Query == "" {
		return NewResponse(env.RequestID, TypeRunQueryAck, &RunQueryAckPayload{
			Accepted: false,
			Reason:   "query must not be empty",
		})
	}

	plannerModel := payload.PlannerModel
	if plannerModel == "" && len(s.cfg.Models) > 0 {
		plannerModel = s.cfg.Models[0].Name
	}

	registry, err := s.cfg.BuildRegistry()
	if err != nil {
		return NewResponse(env.RequestID, TypeRunQueryAck, &RunQueryAckPayload{
			Accepted: false,
			Reason:   fmt.Sprintf("building tool registry: %v", err),
		})
	}

	// Run events stream back over this connection; the storing wrapper
	// persists them so history queries see the same log
	wsHandler := NewRunEventHandler(conn)
	var handler streamers.RunHandler = wsHandler
	if s.stores != nil {
		handler = streamers.NewStoringRunHandler(wsHandler, s.stores.Events)
	}

	coordinator, err := agent.NewCoordinator(context.Background(), agent.CoordinatorOptions{
		Config:        s.cfg,
		PlannerModel:  plannerModel,
		ExecutorModel: payload.ExecutorModel,
		Registry:      registry,
		Handler:       handler,
		Bundle:        s.stores,
	})
	if err != nil {
		return NewResponse(env.RequestID, TypeRunQueryAck, &RunQueryAckPayload{
			Accepted: false,
			Reason:   err.Error(),
		})
	}

	go func() {
		defer coordinator.Close()

		report, runErr := coordinator.Run(context.Background(), payload.Query)
		complete := &RunCompletePayload{RunID: wsHandler.RunID()}
		if runErr != nil {
			log.Printf("wsbridge: run failed: %v", runErr)
			complete.Status = "failed"
			complete.Error = runErr.Error()
		} else {
			complete.RunID = report.RunID
			complete.Status = report.Status
			complete.Answer = report.Answer
		}
		completeEnv, _ := NewEvent(TypeRunComplete, complete)
		conn.SendEvent(completeEnv)
	}()

	// The run ID exists once the coordinator has created the run record and
	// fired RunStarted
	runID, err := wsHandler.WaitForRunID(30 * time.Second)
	if err != nil {
		return NewResponse(env.RequestID, TypeRunQueryAck, &RunQueryAckPayload{
			Accepted: false,
			Reason:   fmt.Sprintf("run failed to start: %v", err),
		})
	}

	return NewResponse(env.RequestID, TypeRunQueryAck, &RunQueryAckPayload{
		Accepted: true,
		RunID:    runID,
	})
}

func (s *Server) handleGetRuns(conn *Conn, env *Envelope) (*Envelope, error) {
	var payload GetRunsPayload
	if len(env.Payload) > 0 {
		if err := DecodePayload(env, &payload); err != nil {
			return nil, fmt.Errorf("decode get_runs: %w", err)
		}
	}
	if s.stores == nil {
		return NewResponse(env.RequestID, TypeGetRunsResult, &GetRunsResultPayload{})
	}

	limit := payload.Limit
	if limit <= 0 {
		limit = 50
	}

	records, err := s.stores.Runs.ListRuns(limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	infos := make([]RunInfo, len(records))
	for i, r := range records {
		info := RunInfo{
			ID:        r.ID,
			Query:     r.Query,
			Status:    r.Status,
			Answer:    r.Answer,
			StartedAt: r.StartedAt.Format(time.RFC3339),
		}
		if r.FinishedAt != nil {
			finished := r.FinishedAt.Format(time.RFC3339)
			info.FinishedAt = &finished
		}
		infos[i] = info
	}

	return NewResponse(env.RequestID, TypeGetRunsResult, &GetRunsResultPayload{Runs: infos})
}

func (s *Server) handleGetRun(conn *Conn, env *Envelope) (*Envelope, error) {
	var payload GetRunPayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, fmt.Errorf("decode get_run: %w", err)
	}
	if s.stores == nil {
		return NewResponse(env.RequestID, TypeGetRunResult, &GetRunResultPayload{})
	}

	tasks, err := s.stores.Runs.GetTasksByRun(payload.RunID)
	if err != nil {
		return nil, fmt.Errorf("get tasks: %w", err)
	}

	taskInfos := make([]TaskInfo, len(tasks))
	for i, t := range tasks {
		ti := TaskInfo{
			ID:          t.ID,
			Description: t.Description,
			Status:      t.Status,
		}
		subtasks, err := s.stores.Runs.GetSubtasksByTask(t.ID)
		if err != nil {
			return nil, fmt.Errorf("get subtasks: %w", err)
		}
		for _, st := range subtasks {
			ti.Subtasks = append(ti.Subtasks, SubtaskInfo{
				ID:            st.ID,
				Description:   st.Description,
				Clusters:      st.ClustersJSON,
				Status:        st.Status,
				ResultSummary: st.ResultSummary,
			})
		}
		taskInfos[i] = ti
	}

	return NewResponse(env.RequestID, TypeGetRunResult, &GetRunResultPayload{Tasks: taskInfos})
}

func (s *Server) handleGetEvents(conn *Conn, env *Envelope) (*Envelope, error) {
	var payload GetEventsPayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, fmt.Errorf("decode get_events: %w", err)
	}
	if s.stores == nil {
		return NewResponse(env.RequestID, TypeGetEventsResult, &GetEventsResultPayload{})
	}

	events, err := s.stores.Events.GetEventsByRun(payload.RunID)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}

	infos := make([]EventInfo, len(events))
	for i, e := range events {
		infos[i] = EventInfo{
			ID:        e.ID,
			RunID:     e.RunID,
			EventType: e.EventType,
			DataJSON:  e.DataJSON,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		}
	}

	return NewResponse(env.RequestID, TypeGetEventsResult, &GetEventsResultPayload{Events: infos})
}
