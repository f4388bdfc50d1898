// Package team holds the static registry of delivery teams: their GitLab
// integration branch and their Jira team id.
package team

import (
	"errors"
	"fmt"
	"strings"
)

// TargetBranch is the branch every team's main branch is delivered into.
const TargetBranch = "develop"

// DefaultName is the team used when none is given on the command line.
const DefaultName = Foundations

var ErrUnsupportedTeam = errors.New("unsupported team")

type Name string

const (
	Core            Name = "core"
	CustomerService Name = "customer-service"
	Foundations     Name = "foundations"
	Integrations    Name = "integrations"
	Lead            Name = "lead"
	Sales           Name = "sales"
)

var names = []Name{Core, CustomerService, Foundations, Integrations, Lead, Sales}

type Team struct {
	Name       Name
	MainBranch string
	TrackerID  string
}

// Parse resolves a team by name.
func Parse(raw string) (Team, error) {
	name := Name(strings.TrimSpace(raw))
	mainBranch, ok := mainBranchOf(name)
	if !ok {
		return Team{}, fmt.Errorf("%w: %q", ErrUnsupportedTeam, raw)
	}
	trackerID, _ := trackerIDOf(name)
	return Team{Name: name, MainBranch: mainBranch, TrackerID: trackerID}, nil
}

func MainBranch(raw string) (string, error) {
	t, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return t.MainBranch, nil
}

func TrackerID(raw string) (string, error) {
	t, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return t.TrackerID, nil
}

// All returns every team in declaration order.
func All() []Team {
	teams := make([]Team, 0, len(names))
	for _, name := range names {
		t, _ := Parse(string(name))
		teams = append(teams, t)
	}
	return teams
}

// Names returns the valid team names, for help text and error messages.
func Names() []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = string(name)
	}
	return out
}

func mainBranchOf(name Name) (string, bool) {
	switch name {
	case Core:
		return "team/core/main", true
	case CustomerService:
		return "team/customer-service/main", true
	case Foundations:
		return "team/foundations/deliver", true
	case Integrations:
		return "team/integrations/main", true
	case Lead:
		return "team/lead/main", true
	case Sales:
		return "team/sales/main", true
	}
	return "", false
}

func trackerIDOf(name Name) (string, bool) {
	switch name {
	case Core:
		return "57ea6b80-2c07-4e1a-a4ab-d26a2e61bbc6", true
	case CustomerService:
		return "9464e27b-b5e9-4f29-a2b6-25d5e9a2887f", true
	case Foundations:
		return "0fc06100-c837-4594-a6bc-17cce1b139ca", true
	case Integrations:
		return "343c54c9-e470-4573-9d1a-01d07846036c", true
	case Lead:
		return "5c15795b-5717-43ff-a028-a69e7127bfee", true
	case Sales:
		return "8944628a-262c-401d-b9ac-18dfc9a45387", true
	}
	return "", false
}
