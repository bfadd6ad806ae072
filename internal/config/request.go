package config

import (
	"fmt"
	"os"

	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
)

// requestFile is the on-disk shape of a deployment request. Components
// name their provider kind either api_form, as the provisioning forms do,
// or provider_kind, as fleetpipe prints it.
type requestFile struct {
	ID            domain.DeploymentID `yaml:"id"`
	RequesterName string              `yaml:"requester_name"`
	RequesterMail string              `yaml:"requester_mail"`
	CI            string              `yaml:"ci"`
	Components    []componentFile     `yaml:"components"`
	CommonValues  domain.Values       `yaml:"common_values"`
}

type componentFile struct {
	Name         string                   `yaml:"name"`
	APIForm      domain.ProviderKind      `yaml:"api_form"`
	ProviderKind domain.ProviderKind      `yaml:"provider_kind"`
	Order        int                      `yaml:"order"`
	Input        domain.Values            `yaml:"input"`
	Identity     domain.ComponentIdentity `yaml:"identity"`
}

func (c componentFile) component(i int) (domain.Component, error) {
	kind := c.ProviderKind
	if c.APIForm != "" {
		if kind != "" && kind != c.APIForm {
			return domain.Component{}, fmt.Errorf("component %d: api_form %q and provider_kind %q disagree", i, c.APIForm, kind)
		}
		kind = c.APIForm
	}
	return domain.Component{
		Name:         c.Name,
		ProviderKind: kind,
		Order:        c.Order,
		Input:        c.Input,
		Identity:     c.Identity,
	}, nil
}

// LoadRequest reads a deployment request from a YAML or JSON file.
func LoadRequest(path string) (domain.DeployRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.DeployRequest{}, fmt.Errorf("read request: %w", err)
	}
	var f requestFile
	if err := decodeStrict(raw, &f); err != nil {
		return domain.DeployRequest{}, fmt.Errorf("parse request %s: %w", path, err)
	}

	req := domain.DeployRequest{
		ID:            f.ID,
		RequesterName: f.RequesterName,
		RequesterMail: f.RequesterMail,
		CI:            f.CI,
		CommonValues:  f.CommonValues,
	}
	for i, fc := range f.Components {
		c, err := fc.component(i)
		if err != nil {
			return domain.DeployRequest{}, fmt.Errorf("parse request %s: %w", path, err)
		}
		req.Components = append(req.Components, c)
	}
	return req, nil
}
