package delivery

import "sort"

// State is the three-way split of the issue keys seen in GitLab commits and
// the keys Jira considers ready to deliver.
type State struct {
	// GitLabReady are referenced by commits but not ready in Jira.
	GitLabReady []string `json:"gitlab-ready" yaml:"gitlab-ready"`
	// JiraReady are ready in Jira but not referenced by any commit.
	JiraReady []string `json:"jira-ready" yaml:"jira-ready"`
	Ready     []string `json:"ready" yaml:"ready"`
}

// Partition computes gitlab\jira, jira\gitlab and their intersection. Inputs
// may contain duplicates; outputs are sets sorted ascending.
func Partition(gitlab, jira []string) State {
	inGitLab := toSet(gitlab)
	inJira := toSet(jira)

	state := State{
		GitLabReady: []string{},
		JiraReady:   []string{},
		Ready:       []string{},
	}
	for key := range inGitLab {
		if _, ok := inJira[key]; ok {
			state.Ready = append(state.Ready, key)
		} else {
			state.GitLabReady = append(state.GitLabReady, key)
		}
	}
	for key := range inJira {
		if _, ok := inGitLab[key]; !ok {
			state.JiraReady = append(state.JiraReady, key)
		}
	}

	sort.Strings(state.GitLabReady)
	sort.Strings(state.JiraReady)
	sort.Strings(state.Ready)
	return state
}

// Empty reports whether no issue was found on either side.
func (s State) Empty() bool {
	return len(s.GitLabReady) == 0 && len(s.JiraReady) == 0 && len(s.Ready) == 0
}

func toSet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		set[key] = struct{}{}
	}
	return set
}
