package specialist

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
	"github.com/AltairaLabs/discovery-agent/internal/normalize"
	"github.com/AltairaLabs/discovery-agent/internal/types"
)

// Cluster defaults
const (
	DefaultClusterName = "hpc-cluster-01"
	DefaultNodeCount   = 4
	DefaultMachineType = "c2-standard-60"
	DefaultJobScript   = "sbatch job.sh"
)

var (
	namedRe   = regexp.MustCompile(`(?i)\b(?:named|called)\s+([a-z0-9][a-z0-9-]*)`)
	clusterRe = regexp.MustCompile(`(?i)\bcluster\s+([a-z0-9][a-z0-9-]*)`)
	nodesRe   = regexp.MustCompile(`(?i)\b(\d+)\s*(?:x\s*)?nodes?\b`)
	machineRe = regexp.MustCompile(`(?i)\b([a-z]\d[a-z]?-(?:standard|highmem|highcpu|ultramem|megamem)-\d+)\b`)
	jobIDRe   = regexp.MustCompile(`(?i)\bjob\s+(?:id\s+)?#?([a-z0-9][a-z0-9-]*)`)
	quotedRe  = regexp.MustCompile("[\"'`]([^\"'`]+)[\"'`]")
	sbatchRe  = regexp.MustCompile(`(?i)\bsbatch\s+\S+`)
	webRe     = regexp.MustCompile(`(?i)\b(?:search|look up|google)\s+(?:the\s+)?(?:web|online|internet)\b(?:\s+for)?\s*(.*)`)
)

var clusterStopwords = map[string]bool{
	"named": true, "called": true, "with": true, "of": true, "for": true, "and": true, "to": true,
}

// Infrastructure provisions HPC clusters and manages Slurm jobs
type Infrastructure struct {
	Service string
}

// Plan picks one infrastructure operation from the query wording
func (in *Infrastructure) Plan(q normalize.Query) []types.ToolCall {
	lower := q.Lower()
	call := func(tool string, args map[string]any) []types.ToolCall {
		return []types.ToolCall{{Service: in.Service, Tool: tool, Arguments: args}}
	}

	if m := webRe.FindStringSubmatch(q.Text); m != nil {
		query := strings.TrimSpace(strings.TrimRight(m[1], "?."))
		if query == "" {
			query = q.Text
		}
		return call(config.ToolSearchWeb, map[string]any{"query": query})
	}

	switch {
	case strings.Contains(lower, "status"):
		if id := jobID(q.Text); id != "" {
			return call(config.ToolCheckJobStatus, map[string]any{"job_id": id})
		}
		return call(config.ToolListClusters, map[string]any{})
	case strings.Contains(lower, "submit"):
		return call(config.ToolSubmitSlurmJob, map[string]any{
			"cluster_name": clusterName(q.Text),
			"job_script":   jobScript(q.Text),
		})
	case strings.Contains(lower, "list"):
		return call(config.ToolListClusters, map[string]any{})
	default:
		return call(config.ToolDeployHPCCluster, map[string]any{
			"cluster_name": clusterName(q.Text),
			"node_count":   nodeCount(q.Text),
			"machine_type": machineType(q.Text),
		})
	}
}

// Synthesize reports the operation outcome
func (in *Infrastructure) Synthesize(q normalize.Query, trace []Step) string {
	return summarize("Infrastructure", trace)
}

func clusterName(text string) string {
	if m := namedRe.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[1])
	}
	for _, m := range clusterRe.FindAllStringSubmatch(text, -1) {
		if !clusterStopwords[strings.ToLower(m[1])] {
			return strings.ToLower(m[1])
		}
	}
	return DefaultClusterName
}

func nodeCount(text string) int {
	if m := nodesRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	return DefaultNodeCount
}

func machineType(text string) string {
	if m := machineRe.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[1])
	}
	return DefaultMachineType
}

func jobID(text string) string {
	m := jobIDRe.FindStringSubmatch(text)
	if m == nil || m[1] == "status" {
		return ""
	}
	return m[1]
}

func jobScript(text string) string {
	if m := quotedRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := sbatchRe.FindString(text); m != "" {
		return m
	}
	return DefaultJobScript
}
