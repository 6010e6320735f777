package chem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrCompoundNotFound is returned when PubChem has no record for a name
var ErrCompoundNotFound = errors.New("compound not found")

// Properties are the PubChem properties the chem tools report
type Properties struct {
	CID              int         `json:"CID"`
	MolecularFormula string      `json:"MolecularFormula"`
	MolecularWeight  json.Number `json:"MolecularWeight"`
	CanonicalSMILES  string      `json:"CanonicalSMILES"`
	SMILES           string      `json:"SMILES"`
	IUPACName        string      `json:"IUPACName"`
	XLogP            *float64    `json:"XLogP"`
}

// Smiles returns whichever SMILES form PubChem supplied
func (p Properties) Smiles() string {
	if p.CanonicalSMILES != "" {
		return p.CanonicalSMILES
	}
	return p.SMILES
}

// Weight returns the molecular weight, or 0 when it is missing
func (p Properties) Weight() float64 {
	w, err := p.MolecularWeight.Float64()
	if err != nil {
		return 0
	}
	return w
}

const propertyList = "MolecularFormula,MolecularWeight,CanonicalSMILES,IUPACName,XLogP"

// PubChemClient queries the PubChem PUG REST API
type PubChemClient struct {
	baseURL string
	client  *http.Client
}

// NewPubChemClient creates a client for baseURL
func NewPubChemClient(baseURL string, timeout time.Duration) *PubChemClient {
	return &PubChemClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Lookup fetches the properties of the first compound matching name
func (c *PubChemClient) Lookup(ctx context.Context, name string) (*Properties, error) {
	u := fmt.Sprintf("%s/compound/name/%s/property/%s/JSON", c.baseURL, url.PathEscape(name), propertyList)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pubchem request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %q", ErrCompoundNotFound, name)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("pubchem returned %d %s: %s", resp.StatusCode, http.StatusText(resp.StatusCode), body)
	}

	var payload struct {
		PropertyTable struct {
			Properties []Properties `json:"Properties"`
		} `json:"PropertyTable"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode pubchem response: %w", err)
	}
	if len(payload.PropertyTable.Properties) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrCompoundNotFound, name)
	}
	return &payload.PropertyTable.Properties[0], nil
}
