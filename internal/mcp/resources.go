package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	jobsURI      = "jsonjoin://jobs"
	jobRowsLimit = 1000
)

func (s *Server) registerResources() {
	// ── jsonjoin://jobs ────────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		jobsURI,
		"Join Jobs",
		mcp.WithMIMEType("application/json"),
	), s.handleJobsResource)

	// ── jsonjoin://jobs/{jobId}/rows ───────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			jobsURI+"/{jobId}/rows",
			"Rows stored by a join job",
		),
		s.handleJobRowsResource,
	)
}

type jobSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	TargetType string    `json:"targetType,omitempty"`
	Trigger    string    `json:"trigger"`
	LastStatus string    `json:"lastStatus,omitempty"`
	LastRunAt  time.Time `json:"lastRunAt,omitzero"`
}

func (s *Server) handleJobsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	jobs, err := s.joins.ListJobs()
	if err != nil {
		return nil, err
	}

	summaries := make([]jobSummary, 0, len(jobs))
	for _, j := range jobs {
		summaries = append(summaries, jobSummary{
			ID:         j.ID,
			Name:       j.Name,
			TargetType: j.TargetType,
			Trigger:    j.TriggerType,
			LastStatus: j.LastStatus,
			LastRunAt:  j.LastRunAt,
		})
	}
	return jsonContents(jobsURI, summaries)
}

func (s *Server) handleJobRowsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	jobID := extractJobIDFromURI(uri)
	if jobID == "" {
		return nil, fmt.Errorf("could not extract jobId from URI: %s", uri)
	}

	rows, total, err := s.joins.ListRows(ctx, jobID, 0, jobRowsLimit)
	if err != nil {
		return nil, err
	}
	return jsonContents(uri, map[string]any{
		"jobId": jobID,
		"total": total,
		"rows":  rows,
	})
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// extractJobIDFromURI extracts the job ID from "jsonjoin://jobs/{id}/rows".
func extractJobIDFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, jobsURI+"/")
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, "/rows")
	if !ok || id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}
