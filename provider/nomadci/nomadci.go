// Package nomadci runs CI workflows as parameterized Nomad batch jobs.
// It is the reference CI implementation; hosted vendors plug in behind
// the same provider.CI interface.
package nomadci

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	nomadapi "github.com/hashicorp/nomad/api"

	"conductor/provider"
)

// jobPrefix namespaces the parameterized jobs this provider dispatches.
const jobPrefix = "ci-"

type Client struct {
	api  *nomadapi.Client
	http *http.Client
}

func New(addr string) (*Client, error) {
	cfg := nomadapi.DefaultConfig()
	cfg.Address = addr

	client, err := nomadapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("nomad client: %w", err)
	}
	return &Client{
		api:  client,
		http: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// Healthy checks connectivity to Nomad.
func (c *Client) Healthy() error {
	_, err := c.api.Agent().NodeName()
	return err
}

// TriggerWorkflowRun dispatches the parameterized batch job registered
// for the workflow. The dispatched job ID is the engine's ci_ref.
func (c *Client) TriggerWorkflowRun(ctx context.Context, workflow, branch string, inputs map[string]string, commitHash string) (provider.WorkflowRun, error) {
	meta := map[string]string{
		"branch": branch,
		"commit": commitHash,
	}
	for k, v := range inputs {
		meta["input_"+k] = v
	}

	resp, _, err := c.api.Jobs().Dispatch(jobPrefix+workflow, meta, nil, "", (&nomadapi.WriteOptions{}).WithContext(ctx))
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return provider.WorkflowRun{}, fmt.Errorf("workflow %s: %w", workflow, provider.ErrNotFound)
		}
		return provider.WorkflowRun{}, fmt.Errorf("dispatch workflow %s: %w", workflow, err)
	}

	return provider.WorkflowRun{
		Ref:    resp.DispatchedJobID,
		Link:   c.api.Address() + "/ui/jobs/" + resp.DispatchedJobID,
		Number: resp.DispatchedJobID[strings.LastIndex(resp.DispatchedJobID, "-")+1:],
		Status: provider.WorkflowPending,
	}, nil
}

// GetWorkflowRun maps a dispatched job's state onto the normalized
// workflow status. A finished workflow publishes its artifact location
// in the job meta under "artifact_url".
func (c *Client) GetWorkflowRun(ctx context.Context, ref string) (provider.WorkflowRun, error) {
	job, _, err := c.api.Jobs().Info(ref, (&nomadapi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return provider.WorkflowRun{}, provider.ErrNotFound
		}
		return provider.WorkflowRun{}, fmt.Errorf("workflow run %s: %w", ref, err)
	}

	run := provider.WorkflowRun{
		Ref:  ref,
		Link: c.api.Address() + "/ui/jobs/" + ref,
	}
	if job.Meta != nil {
		run.ArtifactURL = job.Meta["artifact_url"]
	}

	status := ""
	if job.Status != nil {
		status = *job.Status
	}
	switch status {
	case "pending":
		run.Status = provider.WorkflowPending
	case "running":
		run.Status = provider.WorkflowStarted
	case "dead":
		if job.Stop != nil && *job.Stop {
			run.Status = provider.WorkflowHalted
			break
		}
		failed, err := c.anyAllocFailed(ctx, ref)
		if err != nil {
			return provider.WorkflowRun{}, err
		}
		if failed {
			run.Status = provider.WorkflowFailed
		} else {
			run.Status = provider.WorkflowSucceeded
		}
	default:
		run.Status = provider.WorkflowUnavailable
	}
	return run, nil
}

func (c *Client) anyAllocFailed(ctx context.Context, ref string) (bool, error) {
	summary, _, err := c.api.Jobs().Summary(ref, (&nomadapi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("workflow summary %s: %w", ref, err)
	}
	for _, tg := range summary.Summary {
		if tg.Failed > 0 || tg.Lost > 0 {
			return true, nil
		}
	}
	return false, nil
}

// GetArtifact streams the artifact a workflow published.
func (c *Client) GetArtifact(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch artifact: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, provider.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch artifact: unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}

// ListChannels lists the registered parameterized workflow jobs.
func (c *Client) ListChannels(ctx context.Context) ([]string, error) {
	jobs, _, err := c.api.Jobs().PrefixList(jobPrefix)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	var names []string
	for _, j := range jobs {
		if j.ParameterizedJob {
			names = append(names, strings.TrimPrefix(j.ID, jobPrefix))
		}
	}
	return names, nil
}
