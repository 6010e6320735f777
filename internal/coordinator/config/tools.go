package config

// Tool host services and the tools each of them exposes
const (
	// ServiceHPC is the cluster and job scheduling service
	ServiceHPC = "hpc"
	// ServiceChem is the compound lookup service
	ServiceChem = "chem"
	// ServiceLiterature is the literature search service
	ServiceLiterature = "literature"

	// ToolDeployHPCCluster provisions a Slurm cluster
	ToolDeployHPCCluster = "deploy_hpc_cluster"
	// ToolSubmitSlurmJob submits a batch job to a cluster
	ToolSubmitSlurmJob = "submit_slurm_job"
	// ToolCheckJobStatus reports on a submitted job
	ToolCheckJobStatus = "check_job_status"
	// ToolListClusters lists provisioned clusters
	ToolListClusters = "list_clusters"
	// ToolSearchWeb searches the web for infrastructure documentation
	ToolSearchWeb = "search_web"
	// ToolSearchPubChem looks up compound properties
	ToolSearchPubChem = "search_pubchem"
	// ToolPredictToxicity estimates clinical toxicity for a compound
	ToolPredictToxicity = "predict_clinical_toxicity"
	// ToolSearchPubMed searches PubMed
	ToolSearchPubMed = "search_pubmed"
)

// Facade tools exposed by the coordinator's own MCP server
const (
	// FacadeCreateSession creates a session
	FacadeCreateSession = "create_session"
	// FacadeListSessions lists a user's sessions
	FacadeListSessions = "list_sessions"
	// FacadeGetSession fetches one session with its history
	FacadeGetSession = "get_session"
	// FacadeDeleteSession removes a session
	FacadeDeleteSession = "delete_session"
	// FacadeQuery runs one conversational turn
	FacadeQuery = "query"
)

// ServiceTools returns the tool names each built-in service exposes
func ServiceTools() map[string][]string {
	return map[string][]string{
		ServiceHPC:        {ToolDeployHPCCluster, ToolSubmitSlurmJob, ToolCheckJobStatus, ToolListClusters, ToolSearchWeb},
		ServiceChem:       {ToolSearchPubChem, ToolPredictToxicity},
		ServiceLiterature: {ToolSearchPubMed},
	}
}

// FacadeTools returns all tool names exposed by the coordinator facade
func FacadeTools() []string {
	return []string{
		FacadeCreateSession,
		FacadeListSessions,
		FacadeGetSession,
		FacadeDeleteSession,
		FacadeQuery,
	}
}
