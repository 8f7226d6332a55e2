package imps

import (
	"context"

	"github.com/CenterForOpenScience/gravyvalet/pkg/addon"
	"github.com/CenterForOpenScience/gravyvalet/pkg/addon/network"
)

// boaImp is the Boa computing implementation. Job submission runs deferred
// since compiling and scheduling a query on the Boa cluster routinely
// outlasts an inbound request.
type boaImp struct {
	net *network.Requestor
}

func newBoa(inst addon.Instantiation) (any, error) {
	return &boaImp{net: inst.Network}, nil
}

type boaJob struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Output string `json:"output"`
}

func (j boaJob) result() addon.JobResult {
	return addon.JobResult{
		JobID:     j.ID,
		JobName:   j.Name,
		JobStatus: j.Status,
		Output:    j.Output,
	}
}

// SubmitJob posts a new query job.
func (b *boaImp) SubmitJob(ctx context.Context, jobName, payload string) (addon.JobResult, error) {
	resp, err := b.net.Post(ctx, "jobs",
		network.WithJSONBody(map[string]string{"name": jobName, "source": payload}))
	if err != nil {
		return addon.JobResult{}, err
	}
	if err := checkStatus(resp, "submitting job"); err != nil {
		return addon.JobResult{}, err
	}
	var job boaJob
	if err := resp.JSON(&job); err != nil {
		return addon.JobResult{}, err
	}
	return job.result(), nil
}

// GetJobInfo looks up a submitted job.
func (b *boaImp) GetJobInfo(ctx context.Context, jobID string) (addon.JobResult, error) {
	resp, err := b.net.Get(ctx, "jobs/"+jobID)
	if err != nil {
		return addon.JobResult{}, err
	}
	if err := checkStatus(resp, "fetching job "+jobID); err != nil {
		return addon.JobResult{}, err
	}
	var job boaJob
	if err := resp.JSON(&job); err != nil {
		return addon.JobResult{}, err
	}
	return job.result(), nil
}
