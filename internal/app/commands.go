package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/Ilia01/deliver/internal/config"
	"github.com/Ilia01/deliver/internal/delivery"
	"github.com/Ilia01/deliver/internal/git"
	"github.com/Ilia01/deliver/internal/gitlab"
	"github.com/Ilia01/deliver/internal/issuekey"
	"github.com/Ilia01/deliver/internal/jira"
	"github.com/Ilia01/deliver/internal/report"
	"github.com/Ilia01/deliver/internal/team"
	"github.com/Ilia01/deliver/internal/telemetry"
	"github.com/Ilia01/deliver/internal/utils"
)

const (
	stateFormatJSON = "json"
	stateFormatYAML = "yaml"
)

type jiraService interface {
	delivery.Tracker
	BrowseURL(key string) string
	TestConnection(ctx context.Context) error
}

type gitLabService interface {
	delivery.SourceControl
	TestConnection(ctx context.Context) error
}

var (
	jiraFactory = func(url, email string, auth config.AuthMethod) jiraService {
		return jira.NewClient(url, email, auth)
	}

	gitLabFactory = func(baseURL, token string) gitLabService {
		return gitlab.NewClient(baseURL, token)
	}

	projectPathFromGit = func() (string, error) {
		client, err := git.NewClient()
		if err != nil {
			return "", err
		}
		return client.ProjectPath()
	}

	openURL = utils.OpenURL
)

type runOptions struct {
	Project      string
	MergeRequest int64
	Team         string
	Output       string
	Preview      bool
	Open         bool
	PrintState   string
}

func handleRun(ctx context.Context, opts runOptions) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	teamName := strings.TrimSpace(opts.Team)
	if teamName == "" {
		teamName = settings.Delivery.Team
	}
	tm, err := team.Parse(teamName)
	if err != nil {
		return fmt.Errorf("%w (expected one of: %s)", err, strings.Join(team.Names(), ", "))
	}

	project := strings.TrimSpace(opts.Project)
	if project == "" {
		project, err = projectPathFromGit()
		if err != nil {
			return fmt.Errorf("--project not given and %w", err)
		}
	}

	extractor, err := issuekey.New(settings.Jira.ProjectKey)
	if err != nil {
		return err
	}

	output := opts.Output
	if output == "" {
		output = settings.Delivery.ReportPath
	}

	// Progress goes to stderr when stdout carries the printed state.
	out := io.Writer(os.Stdout)
	if opts.PrintState != "" {
		out = os.Stderr
	}

	jiraClient := jiraFactory(settings.Jira.URL, settings.Jira.Email, settings.Jira.AuthMethod)
	tracker := telemetry.WrapTracker(jiraClient)
	scm := telemetry.WrapSourceControl(gitLabFactory(settings.GitLab.BaseURL, settings.GitLab.Token))
	renderer := report.NewRenderer(tracker, jiraClient.BrowseURL, settings.Delivery.Concurrency)
	engine := delivery.NewEngine(scm, tracker, renderer, tm, extractor, delivery.Options{
		Concurrency: settings.Delivery.Concurrency,
		PageSize:    settings.Delivery.PageSize,
		Logger:      slog.Default(),
	})

	fmt.Fprintln(out, utils.Cyan(utils.Bold(fmt.Sprintf("Reconciling %s!%d for team %s...", project, opts.MergeRequest, tm.Name))))
	fmt.Fprintln(out, utils.Dim(fmt.Sprintf("  %s → %s", tm.MainBranch, team.TargetBranch)))

	ctx, span := telemetry.Tracer("").Start(ctx, "deliver.run", trace.WithAttributes(
		attribute.String("deliver.team", string(tm.Name)),
		attribute.String("gitlab.project", project),
		attribute.Int64("gitlab.merge_request.iid", opts.MergeRequest),
	))
	defer span.End()

	outcome, err := engine.Run(ctx, project, opts.MergeRequest)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := report.Write(output, outcome.Report); err != nil {
		return err
	}

	printSummary(out, outcome.State, output)

	if opts.Preview {
		fmt.Fprintln(out)
		fmt.Fprintln(out, utils.RenderMarkdown(outcome.Report))
	}

	if opts.PrintState != "" {
		if err := printState(os.Stdout, outcome.State, opts.PrintState); err != nil {
			return err
		}
	}

	if opts.Open {
		if outcome.MergeRequest.WebURL == "" {
			fmt.Fprintln(out, utils.Yellow("  Merge request has no web URL"))
			return nil
		}
		fmt.Fprintln(out, utils.Dim(fmt.Sprintf("  Opening %s", outcome.MergeRequest.WebURL)))
		return openURL(outcome.MergeRequest.WebURL)
	}

	return nil
}

func printSummary(w io.Writer, state delivery.State, output string) {
	fmt.Fprintln(w)
	if state.Empty() {
		fmt.Fprintln(w, utils.Dim("  No issue found in GitLab or Jira"))
	}
	if n := len(state.GitLabReady); n > 0 {
		fmt.Fprintf(w, "  %s %d issue(s) only in GitLab: %s\n", utils.Yellow("⚠"), n, strings.Join(state.GitLabReady, ", "))
	}
	if n := len(state.JiraReady); n > 0 {
		fmt.Fprintf(w, "  %s %d issue(s) only in Jira: %s\n", utils.Yellow("⚠"), n, strings.Join(state.JiraReady, ", "))
	}
	if n := len(state.Ready); n > 0 {
		fmt.Fprintf(w, "  %s %d issue(s) ready\n", utils.Green("✓"), n)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s\n", utils.Bold("Report:"), utils.BrightWhite(output))
}

func printState(w io.Writer, state delivery.State, format string) error {
	switch format {
	case stateFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	case stateFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(state); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown state format: %s", format)
	}
}

func handleTeams() error {
	fmt.Println(utils.Cyan(utils.Bold("Teams")))
	fmt.Println()
	for _, t := range team.All() {
		fmt.Printf("  %s %-34s %s\n",
			utils.BrightWhite(fmt.Sprintf("%-18s", t.Name)),
			t.MainBranch,
			utils.Dim(t.TrackerID),
		)
	}
	fmt.Println()
	fmt.Println(utils.Dim(fmt.Sprintf("  Delivery merge requests go from the team branch into %s", team.TargetBranch)))
	return nil
}

func handleCheck(ctx context.Context) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	fmt.Println(utils.Cyan(utils.Bold("Checking connections...")))
	fmt.Println()
	return checkConnections(ctx, settings)
}

func checkConnections(ctx context.Context, settings *config.Settings) error {
	var errs []error

	fmt.Print(utils.Dim("  Testing Jira connection... "))
	jiraClient := jiraFactory(settings.Jira.URL, settings.Jira.Email, settings.Jira.AuthMethod)
	if err := jiraClient.TestConnection(ctx); err != nil {
		fmt.Println(utils.Red("✗"))
		fmt.Println(utils.Yellow(fmt.Sprintf("  Jira: %v", err)))
		errs = append(errs, fmt.Errorf("jira: %w", err))
	} else {
		fmt.Println(utils.Green("✓"))
	}

	fmt.Print(utils.Dim("  Testing GitLab connection... "))
	gitLabClient := gitLabFactory(settings.GitLab.BaseURL, settings.GitLab.Token)
	if err := gitLabClient.TestConnection(ctx); err != nil {
		fmt.Println(utils.Red("✗"))
		fmt.Println(utils.Yellow(fmt.Sprintf("  GitLab: %v", err)))
		errs = append(errs, fmt.Errorf("gitlab: %w", err))
	} else {
		fmt.Println(utils.Green("✓"))
	}

	return errors.Join(errs...)
}

func handleConfigInit(ctx context.Context) error {
	fmt.Println(utils.Cyan(utils.Bold("deliver configuration setup")))
	fmt.Println()
	fmt.Println(utils.Dim("This will store your credentials in ~/.deliver/config.toml"))
	fmt.Println(utils.Dim("The file will be created with read-only permissions (600)"))
	fmt.Println()

	jiraURL, err := utils.Prompt("Jira URL (e.g., https://<company>.atlassian.net)")
	if err != nil {
		return err
	}
	jiraEmail, err := utils.Prompt("Jira email")
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(utils.Bold("Select authentication method:"))
	fmt.Println(utils.Dim("  1. Personal Access Token (for Jira Data Center/Server)"))
	fmt.Println(utils.Dim("  2. API Token (for Jira Cloud)"))
	authChoice, err := utils.PromptWithDefault("Choice (1/2)", "2")
	if err != nil {
		return err
	}

	auth := config.AuthMethod{Type: config.AuthAPIToken}
	if authChoice == "1" {
		auth.Type = config.AuthPersonalAccessToken
		auth.Token, err = utils.PromptPassword("Personal Access Token")
	} else {
		fmt.Println(utils.Dim("  Create one at https://id.atlassian.com/manage-profile/security/api-tokens"))
		auth.Token, err = utils.PromptPassword("Jira API token")
	}
	if err != nil {
		return err
	}

	projectKey, err := utils.PromptWithDefault("Jira project key of issue references", config.DefaultProjectKey)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(utils.Bold("=== GitLab ==="))
	gitLabURL, err := utils.Prompt("GitLab base URL (e.g., https://gitlab.<company>.com)")
	if err != nil {
		return err
	}
	fmt.Println(utils.Dim("  Create a token in Settings > Access Tokens with the read_api scope"))
	gitLabToken, err := utils.PromptPassword("GitLab token")
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(utils.Bold("=== Delivery ==="))
	teamName, err := utils.PromptWithDefault("Team ("+strings.Join(team.Names(), "/")+")", config.DefaultTeam)
	if err != nil {
		return err
	}
	if _, err := team.Parse(teamName); err != nil {
		return err
	}
	reportPath, err := utils.PromptWithDefault("Report path", config.DefaultReportPath)
	if err != nil {
		return err
	}

	settings := &config.Settings{
		Jira: config.JiraConfig{
			URL:        strings.TrimSpace(jiraURL),
			Email:      strings.TrimSpace(jiraEmail),
			ProjectKey: strings.TrimSpace(projectKey),
			AuthMethod: auth,
		},
		GitLab: config.GitLabConfig{
			BaseURL: strings.TrimSpace(gitLabURL),
			Token:   strings.TrimSpace(gitLabToken),
		},
		Delivery: config.DeliveryConfig{
			Team:        strings.TrimSpace(teamName),
			ReportPath:  strings.TrimSpace(reportPath),
			Concurrency: config.DefaultConcurrency,
			PageSize:    config.DefaultPageSize,
		},
	}

	if err := settings.Save(); err != nil {
		return err
	}

	configPath, err := config.ConfigPath()
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(utils.Green(utils.Bold("Configuration saved!")))
	fmt.Printf("  Location: %s\n\n", utils.BrightWhite(configPath))

	// Reload so hosts are normalized the same way a run sees them.
	loaded, err := config.Load()
	if err != nil {
		return err
	}
	if err := checkConnections(ctx, loaded); err != nil {
		fmt.Println()
		fmt.Println(utils.Dim("  This may be expected if VPN/network restrictions apply."))
	}

	fmt.Println()
	fmt.Println(utils.Green(utils.Bold("Setup complete!")))
	fmt.Println(utils.Yellow("Keep your API tokens secure!"))
	fmt.Println(utils.Dim("  Never commit config.toml to git"))
	return nil
}

func handleConfigShow() error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	printConfig(settings)
	return nil
}

func handleConfigSet(key, value string) error {
	settings, err := loadSettings()
	if err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		return err
	}
	if settings == nil {
		settings = &config.Settings{}
	}
	if err := updateConfigValue(settings, key, value); err != nil {
		return err
	}
	if err := settings.Save(); err != nil {
		return err
	}
	fmt.Println(utils.Green(utils.Bold(fmt.Sprintf("✓ Updated %s", key))))
	return nil
}

func handleConfigValidate(ctx context.Context) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	fmt.Println(utils.Cyan(utils.Bold("Validating configuration...")))
	fmt.Println()
	if err := settings.Validate(); err != nil {
		fmt.Println(utils.Red("  ✗ Missing or invalid settings:"))
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Println(utils.Yellow("    " + line))
		}
		return err
	}
	if _, err := team.Parse(settings.Delivery.Team); err != nil {
		return err
	}
	fmt.Println(utils.Green("  ✓ Settings complete"))
	return checkConnections(ctx, settings)
}

func handleConfigPath() error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func loadSettings() (*config.Settings, error) {
	settings, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			return nil, fmt.Errorf("%w. Run 'deliver config init' first or set JIRA_HOST and GITLAB_HOST", err)
		}
		return nil, err
	}
	return settings, nil
}

func printConfig(settings *config.Settings) {
	fmt.Println(utils.Cyan(utils.Bold("Current Configuration")))
	fmt.Println()

	fmt.Println(utils.Bold("[jira]"))
	fmt.Printf("  %s %s\n", utils.Dim("url:"), utils.BrightWhite(settings.Jira.URL))
	fmt.Printf("  %s %s\n", utils.Dim("email:"), utils.BrightWhite(settings.Jira.Email))
	fmt.Printf("  %s %s\n", utils.Dim("project_key:"), utils.BrightWhite(settings.Jira.ProjectKey))
	fmt.Printf("  %s %s\n", utils.Dim("auth_method:"), utils.BrightWhite(settings.Jira.AuthMethod.Type))
	fmt.Printf("  %s %s\n", utils.Dim("token:"), utils.Yellow(config.MaskToken(settings.Jira.AuthMethod.Token)))

	fmt.Println()
	fmt.Println(utils.Bold("[gitlab]"))
	fmt.Printf("  %s %s\n", utils.Dim("base_url:"), utils.BrightWhite(settings.GitLab.BaseURL))
	fmt.Printf("  %s %s\n", utils.Dim("token:"), utils.Yellow(config.MaskToken(settings.GitLab.Token)))

	fmt.Println()
	fmt.Println(utils.Bold("[delivery]"))
	fmt.Printf("  %s %s\n", utils.Dim("team:"), utils.BrightWhite(settings.Delivery.Team))
	fmt.Printf("  %s %s\n", utils.Dim("report_path:"), utils.BrightWhite(settings.Delivery.ReportPath))
	fmt.Printf("  %s %d\n", utils.Dim("concurrency:"), settings.Delivery.Concurrency)
	fmt.Printf("  %s %d\n", utils.Dim("page_size:"), settings.Delivery.PageSize)
}

func updateConfigValue(settings *config.Settings, key, value string) error {
	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return errors.New("invalid key format. Use section.field (e.g., jira.email)")
	}

	section, field := parts[0], parts[1]
	switch section {
	case "jira":
		switch field {
		case "url":
			settings.Jira.URL = value
		case "email":
			settings.Jira.Email = value
		case "project_key":
			settings.Jira.ProjectKey = value
		case "token":
			settings.Jira.AuthMethod.Token = value
		case "auth_method":
			if value != config.AuthAPIToken && value != config.AuthPersonalAccessToken {
				return fmt.Errorf("jira.auth_method must be %s or %s", config.AuthAPIToken, config.AuthPersonalAccessToken)
			}
			settings.Jira.AuthMethod.Type = value
		default:
			return fmt.Errorf("unknown jira field: %s", field)
		}
	case "gitlab":
		switch field {
		case "base_url":
			settings.GitLab.BaseURL = value
		case "token":
			settings.GitLab.Token = value
		default:
			return fmt.Errorf("unknown gitlab field: %s", field)
		}
	case "delivery":
		switch field {
		case "team":
			if _, err := team.Parse(value); err != nil {
				return err
			}
			settings.Delivery.Team = value
		case "report_path":
			settings.Delivery.ReportPath = value
		case "concurrency", "page_size":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return fmt.Errorf("delivery.%s must be a positive integer", field)
			}
			if field == "concurrency" {
				settings.Delivery.Concurrency = n
			} else {
				settings.Delivery.PageSize = n
			}
		default:
			return fmt.Errorf("unknown delivery field: %s", field)
		}
	default:
		return fmt.Errorf("unknown configuration section: %s", section)
	}

	return nil
}
