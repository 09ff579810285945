package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/me/bioclick/internal/scheduler"
)

type jobReport struct {
	JobID    uint64 `json:"job_id"`
	Name     string `json:"name"`
	Engine   string `json:"engine,omitempty"`
	Rule     string `json:"rule,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Status   string `json:"status"`
	Code     string `json:"code,omitempty"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

type batchReport struct {
	BatchID   string      `json:"batch_id"`
	Jobs      int         `json:"jobs"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Elapsed   string      `json:"elapsed"`
	Outcomes  []jobReport `json:"outcomes"`
}

func toJobReport(o scheduler.Outcome) jobReport {
	jr := jobReport{
		JobID:    o.JobID,
		Name:     o.JobName,
		Engine:   o.Engine,
		Rule:     o.Rule,
		Reason:   o.Reason,
		Status:   o.Status().String(),
		Code:     o.Code(),
		Duration: o.Duration.Round(time.Millisecond).String(),
	}
	if o.Result != nil {
		jr.Output = o.Result.Output.String()
	}
	if o.Err != nil {
		jr.Error = o.Err.Error()
	}
	return jr
}

func writeReportJSON(w io.Writer, rep *scheduler.Report) error {
	br := batchReport{
		BatchID:   rep.BatchID,
		Jobs:      rep.Jobs,
		Succeeded: rep.Succeeded,
		Failed:    rep.Failed,
		Elapsed:   rep.Elapsed().Round(time.Millisecond).String(),
		Outcomes:  make([]jobReport, 0, len(rep.Outcomes)),
	}
	for _, o := range rep.Outcomes {
		br.Outcomes = append(br.Outcomes, toJobReport(o))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(br)
}

func writeReport(w io.Writer, rep *scheduler.Report) {
	fmt.Fprintf(w, "%-6s  %-10s  %-8s  %-20s  %-10s  %s\n", "JOB", "ENGINE", "STATUS", "CODE", "DURATION", "RESULT")
	fmt.Fprintf(w, "%-6s  %-10s  %-8s  %-20s  %-10s  %s\n", "---", "------", "------", "----", "--------", "------")
	for _, o := range rep.Outcomes {
		jr := toJobReport(o)
		result := jr.Output
		if jr.Error != "" {
			result = jr.Error
		}
		fmt.Fprintf(w, "%-6d  %-10s  %-8s  %-20s  %-10s  %s\n",
			jr.JobID, dash(jr.Engine), jr.Status, dash(jr.Code), jr.Duration, result)
	}
	fmt.Fprintf(w, "\nBatch %s: %d jobs, %d succeeded, %d failed in %s\n",
		rep.BatchID, rep.Jobs, rep.Succeeded, rep.Failed, rep.Elapsed().Round(time.Millisecond))
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
