package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fpp-125/warren/internal/env"
	"github.com/fpp-125/warren/internal/github"
	"github.com/fpp-125/warren/internal/registry"
)

func runCreate(args []string, logger zerolog.Logger) int {
	args = reorderFlags(args, map[string]bool{"-r": true, "--repo": true, "-repo": true})
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	var repoSpecs stringListFlag
	var noFetch, noTemplates bool
	fs.Var(&repoSpecs, "r", "repository to include, as repo or repo:branch (repeatable)")
	fs.Var(&repoSpecs, "repo", "alias for -r")
	fs.BoolVar(&noFetch, "no-fetch", false, "skip fetching remotes before branch resolution")
	fs.BoolVar(&noTemplates, "no-templates", false, "skip template rendering")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}
	remaining := fs.Args()
	if len(remaining) != 1 {
		fmt.Fprintln(os.Stderr, "usage: warren create <name> -r repo[:branch] [-r ...] [--no-fetch] [--no-templates]")
		return exitInvalidInput
	}
	name := remaining[0]

	repos := make(map[string]string, len(repoSpecs.Values()))
	for _, spec := range repoSpecs.Values() {
		repo, branch, err := parseRepoSpec(spec, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitInvalidInput
		}
		if _, dup := repos[repo]; dup {
			fmt.Fprintf(os.Stderr, "error: repository %q given twice\n", repo)
			return exitInvalidInput
		}
		repos[repo] = branch
	}

	m, code := openManager(logger)
	if code != exitOK {
		return code
	}
	defer m.Close()

	rec, err := m.Create(context.Background(), env.CreateOptions{
		Name:            name,
		Repos:           repos,
		Fetch:           !noFetch,
		RenderTemplates: !noTemplates,
	})
	if err != nil {
		return fail(err)
	}
	printEnvironment(rec)
	return exitOK
}

func runReview(args []string, logger zerolog.Logger) int {
	args = reorderFlags(args, map[string]bool{"--name": true, "-name": true})
	fs := flag.NewFlagSet("review", flag.ContinueOnError)
	var name string
	var noTemplates bool
	fs.StringVar(&name, "name", "", "environment name (default pr-<number>)")
	fs.BoolVar(&noTemplates, "no-templates", false, "skip template rendering")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}
	remaining := fs.Args()
	if len(remaining) != 1 {
		fmt.Fprintln(os.Stderr, "usage: warren review <pr-url|owner/repo#N|repo#N> [--name=env-name]")
		return exitInvalidInput
	}

	cfg, _, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailure
	}
	repoURLs := make(map[string]string, len(cfg.Repositories))
	for rname, rc := range cfg.Repositories {
		repoURLs[rname] = rc.URL
	}

	ref, ok := github.ParsePRReference(remaining[0], repoURLs)
	if !ok {
		fmt.Fprintf(os.Stderr, "error: cannot parse pull-request reference %q\n", remaining[0])
		return exitInvalidInput
	}
	repoName := catalogNameFor(repoURLs, ref)
	if repoName == "" {
		fmt.Fprintf(os.Stderr, "error: no configured repository matches %s\n", ref.FullName())
		return exitNotFound
	}

	meta, err := github.NewClient().PRMetadata(ref)
	if err != nil {
		if errors.Is(err, github.ErrUnavailable) {
			fmt.Fprintln(os.Stderr, "error: the gh CLI is required for review environments")
			return exitFailure
		}
		return fail(err)
	}
	if name == "" {
		name = fmt.Sprintf("pr-%d", meta.Number)
	}

	m, code := openManager(logger)
	if code != exitOK {
		return code
	}
	defer m.Close()

	rec, err := m.Create(context.Background(), env.CreateOptions{
		Name:            name,
		Repos:           map[string]string{repoName: meta.HeadRef},
		Fetch:           true,
		RenderTemplates: !noTemplates,
		PR: &registry.PRInfo{
			Number:   meta.Number,
			URL:      meta.URL,
			Title:    meta.Title,
			Author:   meta.Author.Login,
			HeadRef:  meta.HeadRef,
			RepoName: repoName,
		},
	})
	if err != nil {
		return fail(err)
	}
	fmt.Printf("review environment for #%d: %s\n", meta.Number, meta.Title)
	printEnvironment(rec)
	return exitOK
}

func runList(args []string, logger zerolog.Logger) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	var asJSON, pathOnly, nameOnly bool
	fs.BoolVar(&asJSON, "json", false, "json output")
	fs.BoolVar(&pathOnly, "path-only", false, "print environment paths only")
	fs.BoolVar(&nameOnly, "name-only", false, "print environment names only")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}

	m, code := openManager(logger)
	if code != exitOK {
		return code
	}
	defer m.Close()

	envs, err := m.List()
	if err != nil {
		return fail(err)
	}
	switch {
	case asJSON:
		b, _ := json.MarshalIndent(envs, "", "  ")
		fmt.Println(string(b))
	case pathOnly:
		for _, e := range envs {
			fmt.Println(e.Path)
		}
	case nameOnly:
		for _, e := range envs {
			fmt.Println(e.Name)
		}
	default:
		for _, e := range envs {
			repos := make([]string, len(e.Repos))
			for i, r := range e.Repos {
				repos[i] = r.Name + ":" + r.Branch
			}
			fmt.Printf("%s\t%s\t%s\n", e.Name, strings.Join(repos, ","), e.Path)
		}
	}
	return exitOK
}

func runInfo(args []string, logger zerolog.Logger) int {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	var asJSON bool
	fs.BoolVar(&asJSON, "json", false, "json output")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}
	remaining := fs.Args()
	if len(remaining) != 1 {
		fmt.Fprintln(os.Stderr, "usage: warren info <name> [--json]")
		return exitInvalidInput
	}

	m, code := openManager(logger)
	if code != exitOK {
		return code
	}
	defer m.Close()

	rec, err := m.Info(remaining[0])
	if err != nil {
		return fail(err)
	}
	statuses := m.Report(context.Background(), rec)
	if asJSON {
		payload := map[string]any{"environment": rec, "status": statusPayload(statuses)}
		b, _ := json.MarshalIndent(payload, "", "  ")
		fmt.Println(string(b))
		return exitOK
	}
	printEnvironment(rec)
	for _, st := range statuses {
		fmt.Printf("  %s\t%s\t%s", st.Name, st.Branch, env.Classify(st))
		if st.Err != nil {
			fmt.Printf("\t%v", st.Err)
		} else if st.Uncommitted > 0 || st.Ahead > 0 || st.Behind > 0 {
			fmt.Printf("\t%d uncommitted, %d ahead, %d behind", st.Uncommitted, st.Ahead, st.Behind)
		}
		fmt.Println()
	}
	return exitOK
}

func runDelete(args []string, logger zerolog.Logger) int {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	var force bool
	fs.BoolVar(&force, "force", false, "delete even with uncommitted or unpushed work")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}
	names := fs.Args()
	if len(names) == 0 {
		fmt.Fprintln(os.Stderr, "usage: warren delete <name> [<name> ...] [--force]")
		return exitInvalidInput
	}

	m, code := openManager(logger)
	if code != exitOK {
		return code
	}
	defer m.Close()

	worst := exitOK
	for _, name := range names {
		if err := m.Delete(context.Background(), name, force); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			if c := exitCode(err); c > worst {
				worst = c
			}
			continue
		}
		fmt.Printf("deleted %s\n", name)
	}
	return worst
}

func runPath(args []string, logger zerolog.Logger) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: warren path <name>")
		return exitInvalidInput
	}
	m, code := openManager(logger)
	if code != exitOK {
		return code
	}
	defer m.Close()

	path, err := m.Path(args[0])
	if err != nil {
		return fail(err)
	}
	fmt.Println(path)
	return exitOK
}

// parseRepoSpec splits a repo or repo:branch argument. A bare repo name
// checks out a branch named after the environment.
func parseRepoSpec(spec, envName string) (string, string, error) {
	if spec == "" {
		return "", "", errors.New("empty repository argument")
	}
	repo, branch, found := strings.Cut(spec, ":")
	if !found {
		return spec, envName, nil
	}
	if repo == "" || branch == "" {
		return "", "", fmt.Errorf("malformed repository argument %q: want repo or repo:branch", spec)
	}
	return repo, branch, nil
}

// catalogNameFor maps an owner/repo pair back to its configured
// repository name by comparing clone URLs.
func catalogNameFor(repoURLs map[string]string, ref github.PRRef) string {
	want := ref.FullName()
	for name, url := range repoURLs {
		if github.ParseRepoURL(url) == want {
			return name
		}
	}
	return ""
}

func printEnvironment(rec registry.Environment) {
	fmt.Printf("%s\t%s\n", rec.Name, rec.Path)
	for _, r := range rec.Repos {
		fmt.Printf("  %s\t%s\t%s\n", r.Name, r.Branch, r.WorktreePath)
	}
	if rec.PR != nil {
		fmt.Printf("  pr #%d by %s: %s\n", rec.PR.Number, rec.PR.Author, rec.PR.Title)
	}
}

func statusPayload(statuses []env.RepoStatus) []map[string]any {
	out := make([]map[string]any, len(statuses))
	for i, st := range statuses {
		entry := map[string]any{
			"name":        st.Name,
			"branch":      st.Branch,
			"state":       env.Classify(st).String(),
			"uncommitted": st.Uncommitted,
			"ahead":       st.Ahead,
			"behind":      st.Behind,
		}
		if st.Err != nil {
			entry["error"] = st.Err.Error()
		}
		out[i] = entry
	}
	return out
}
