package exports

import (
	"context"
	"fmt"
	"time"

	"contracts-backend/internal/analysis"
	"contracts-backend/internal/contracts"
)

// maxExportRows bounds a single export.
const maxExportRows = 1000

// Row is one line of a contract export: the contract plus its most recent
// analysis job, if any.
type Row struct {
	ContractID   string
	Title        string
	FileName     string
	Status       string
	UploadedAt   time.Time
	AnalysisType string
	JobStatus    string
	Summary      string
	CompletedAt  *time.Time
}

// Service assembles export rows for a caller's visible contracts.
type Service struct {
	Contracts contracts.Repo
	Jobs      analysis.Repo
}

func NewService(contractRepo contracts.Repo, jobRepo analysis.Repo) *Service {
	return &Service{Contracts: contractRepo, Jobs: jobRepo}
}

func (s *Service) Rows(ctx context.Context, userID, orgID string) ([]Row, error) {
	list, err := s.Contracts.List(ctx, userID, orgID, maxExportRows, 0)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}

	rows := make([]Row, 0, len(list))
	for _, contract := range list {
		row := Row{
			ContractID: contract.ID,
			Title:      contract.Title,
			FileName:   contract.FileName,
			Status:     contract.Status,
			UploadedAt: contract.CreatedAt,
		}
		jobs, err := s.Jobs.ListByContract(ctx, contract.ID, userID, orgID)
		if err != nil {
			return nil, fmt.Errorf("list jobs for %s: %w", contract.ID, err)
		}
		if len(jobs) > 0 {
			latest := jobs[0]
			row.AnalysisType = latest.AnalysisType
			row.JobStatus = latest.Status
			row.Summary = latest.Summary
			row.CompletedAt = latest.CompletedAt
		}
		rows = append(rows, row)
	}
	return rows, nil
}

var columns = []string{
	"Contract ID", "Title", "File Name", "Status", "Uploaded At",
	"Latest Analysis", "Analysis Status", "Summary", "Completed At",
}

func (r Row) values() []any {
	completed := ""
	if r.CompletedAt != nil {
		completed = r.CompletedAt.UTC().Format(time.RFC3339)
	}
	return []any{
		r.ContractID,
		r.Title,
		r.FileName,
		r.Status,
		r.UploadedAt.UTC().Format(time.RFC3339),
		r.AnalysisType,
		r.JobStatus,
		r.Summary,
		completed,
	}
}
