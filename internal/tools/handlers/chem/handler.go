// Package chem provides the compound lookup and toxicity tools
package chem

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
	"github.com/AltairaLabs/discovery-agent/internal/tools"
)

// Toxicity risk levels
const (
	RiskLow      = "LOW"
	RiskModerate = "MODERATE"
	RiskHigh     = "HIGH"
)

// knownToxicants are flagged regardless of their properties
var knownToxicants = map[string]bool{
	"arsenic":      true,
	"benzene":      true,
	"cyanide":      true,
	"formaldehyde": true,
	"lead":         true,
	"mercury":      true,
	"ricin":        true,
	"strychnine":   true,
	"thalidomide":  true,
}

// Handler serves the chem tools
type Handler struct {
	pubchem *PubChemClient
}

var _ tools.Provider = (*Handler)(nil)

// NewHandler creates a chem handler
func NewHandler(pubchem *PubChemClient) *Handler {
	return &Handler{pubchem: pubchem}
}

// Entries implements tools.Provider
func (h *Handler) Entries() []tools.Entry {
	return []tools.Entry{
		{
			Tool: mcp.NewTool(config.ToolSearchPubChem,
				mcp.WithDescription("Looks up a compound on PubChem and returns formula, weight, SMILES and IUPAC name"),
				mcp.WithString("query", mcp.Required(), mcp.Description("Compound name, e.g. aspirin")),
			),
			Handler: h.Search,
		},
		{
			Tool: mcp.NewTool(config.ToolPredictToxicity,
				mcp.WithDescription("Estimates clinical toxicity risk for a compound"),
				mcp.WithString("compound", mcp.Required(), mcp.Description("Compound name")),
			),
			Handler: h.Toxicity,
		},
	}
}

// Search returns the PubChem properties of a compound
func (h *Handler) Search(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	props, err := h.pubchem.Lookup(ctx, strings.TrimSpace(name))
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Compound: %s (CID %d)\nFormula: %s\nMolecular weight: %s g/mol\nSMILES: %s\nIUPAC name: %s",
		name, props.CID, props.MolecularFormula, props.MolecularWeight, props.Smiles(), props.IUPACName,
	)), nil
}

// Toxicity rates a compound from a toxicant list and its PubChem properties
func (h *Handler) Toxicity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("compound")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name = strings.TrimSpace(name)
	if knownToxicants[strings.ToLower(name)] {
		return mcp.NewToolResultText(fmt.Sprintf("Predicted clinical toxicity for %s: %s (known toxicant)", name, RiskHigh)), nil
	}

	props, err := h.pubchem.Lookup(ctx, name)
	if err != nil {
		return toolError(err), nil
	}
	risk, reason := Assess(props)
	return mcp.NewToolResultText(fmt.Sprintf("Predicted clinical toxicity for %s: %s (%s)", name, risk, reason)), nil
}

// Assess applies Lipinski-style thresholds to the compound properties
func Assess(p *Properties) (risk, reason string) {
	var flags []string
	if p.XLogP != nil && *p.XLogP > 5 {
		flags = append(flags, fmt.Sprintf("XLogP %.1f > 5", *p.XLogP))
	}
	if w := p.Weight(); w > 500 {
		flags = append(flags, fmt.Sprintf("molecular weight %.1f > 500", w))
	}
	switch len(flags) {
	case 0:
		return RiskLow, "within drug-likeness thresholds"
	case 1:
		return RiskModerate, flags[0]
	default:
		return RiskHigh, strings.Join(flags, ", ")
	}
}

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, ErrCompoundNotFound) {
		return mcp.NewToolResultError(err.Error() + " on PubChem")
	}
	return mcp.NewToolResultError(err.Error())
}
