// Package hpc provides the HPC cluster and Slurm job tools
package hpc

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
	"github.com/AltairaLabs/discovery-agent/internal/tools"
)

const (
	firstJobID  = 4921
	maxNodes    = 1000
	defaultType = "c2-standard-60"
)

var clusterNameRe = regexp.MustCompile(`^[a-z]([-a-z0-9]{0,61}[a-z0-9])?$`)

// Cluster is a provisioned cluster
type Cluster struct {
	Name        string
	Nodes       int
	MachineType string
}

// Handler keeps an in-memory cluster and job inventory
type Handler struct {
	bucket string
	logger *slog.Logger

	mu       sync.Mutex
	clusters map[string]Cluster
	jobs     map[string]string // job id -> cluster
	nextJob  int
}

var _ tools.Provider = (*Handler)(nil)

// NewHandler creates an HPC handler writing results under bucket
func NewHandler(bucket string, logger *slog.Logger) *Handler {
	return &Handler{
		bucket:   bucket,
		logger:   logger,
		clusters: make(map[string]Cluster),
		jobs:     make(map[string]string),
		nextJob:  firstJobID,
	}
}

// Entries implements tools.Provider
func (h *Handler) Entries() []tools.Entry {
	return []tools.Entry{
		{
			Tool: mcp.NewTool(config.ToolDeployHPCCluster,
				mcp.WithDescription("Deploys an HPC cluster for molecular dynamics or docking simulations"),
				mcp.WithString("cluster_name", mcp.Required(), mcp.Description("Cluster name, e.g. docking-cluster-01")),
				mcp.WithNumber("node_count", mcp.Description("Number of compute nodes (default 4)")),
				mcp.WithString("machine_type", mcp.Description("GCE machine type (default c2-standard-60)")),
			),
			Handler: h.Deploy,
		},
		{
			Tool: mcp.NewTool(config.ToolSubmitSlurmJob,
				mcp.WithDescription("Submits a batch job to an existing HPC cluster"),
				mcp.WithString("cluster_name", mcp.Required(), mcp.Description("Target cluster")),
				mcp.WithString("job_script", mcp.Required(), mcp.Description("Script or command, e.g. sbatch run_docking.sh")),
			),
			Handler: h.Submit,
		},
		{
			Tool: mcp.NewTool(config.ToolCheckJobStatus,
				mcp.WithDescription("Checks the status of a submitted HPC job"),
				mcp.WithString("job_id", mcp.Required(), mcp.Description("Job ID returned by submit_slurm_job")),
			),
			Handler: h.Status,
		},
		{
			Tool: mcp.NewTool(config.ToolListClusters,
				mcp.WithDescription("Lists deployed HPC clusters"),
			),
			Handler: h.List,
		},
	}
}

// Deploy provisions a cluster
func (h *Handler) Deploy(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("cluster_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if !clusterNameRe.MatchString(name) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid cluster name %q: use lowercase letters, digits and hyphens", name)), nil
	}
	nodes := request.GetInt("node_count", 4)
	if nodes < 1 || nodes > maxNodes {
		return mcp.NewToolResultError(fmt.Sprintf("node_count must be between 1 and %d, got %d", maxNodes, nodes)), nil
	}
	machine := request.GetString("machine_type", defaultType)

	h.mu.Lock()
	if _, exists := h.clusters[name]; exists {
		h.mu.Unlock()
		return mcp.NewToolResultError(fmt.Sprintf("cluster %q already exists", name)), nil
	}
	h.clusters[name] = Cluster{Name: name, Nodes: nodes, MachineType: machine}
	h.mu.Unlock()

	h.logger.InfoContext(ctx, "Deploying HPC cluster",
		"cluster", name,
		"nodes", nodes,
		"machine_type", machine,
	)
	return mcp.NewToolResultText(fmt.Sprintf(
		"SUCCESS: HPC Cluster '%s' deployed.\n"+
			"   - Nodes: %d\n"+
			"   - Type: %s\n"+
			"   - Status: READY\n"+
			"   - Connection: gcloud compute ssh %s-master",
		name, nodes, machine, name,
	)), nil
}

// Submit queues a job on an existing cluster
func (h *Handler) Submit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("cluster_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	script, err := request.RequireString("job_script")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name = strings.ToLower(strings.TrimSpace(name))

	h.mu.Lock()
	if _, ok := h.clusters[name]; !ok {
		h.mu.Unlock()
		return mcp.NewToolResultError(fmt.Sprintf("cluster %q not found; deploy it first", name)), nil
	}
	id := strconv.Itoa(h.nextJob)
	h.nextJob++
	h.jobs[id] = name
	h.mu.Unlock()

	h.logger.InfoContext(ctx, "Submitting Slurm job", "cluster", name, "job_id", id, "script", script)
	return mcp.NewToolResultText(fmt.Sprintf("Job submitted to %s. Job ID: %s. Status: PENDING.", name, id)), nil
}

// Status reports a job as completed with its result location
func (h *Handler) Status(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id = strings.TrimSpace(id)
	return mcp.NewToolResultText(fmt.Sprintf("Job %s: COMPLETED. Results available in %s", id, h.ResultPath(id))), nil
}

// List returns the deployed clusters sorted by name
func (h *Handler) List(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	clusters := make([]Cluster, 0, len(h.clusters))
	for _, c := range h.clusters {
		clusters = append(clusters, c)
	}
	h.mu.Unlock()

	if len(clusters) == 0 {
		return mcp.NewToolResultText("No clusters deployed."), nil
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Name < clusters[j].Name })
	lines := make([]string, 0, len(clusters))
	for _, c := range clusters {
		lines = append(lines, fmt.Sprintf("- %s: %d x %s (READY)", c.Name, c.Nodes, c.MachineType))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

// ResultPath is where a job's results are written
func (h *Handler) ResultPath(jobID string) string {
	return fmt.Sprintf("gs://%s/results/%s/", h.bucket, jobID)
}
