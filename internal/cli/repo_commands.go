package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/fpp-125/warren/internal/config"
)

func runInit(args []string) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	var force bool
	fs.BoolVar(&force, "force", false, "overwrite an existing configuration")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}
	path, err := config.Init(force)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailure
	}
	fmt.Printf("created %s\n", path)
	fmt.Println("edit it to add your repositories, then run 'warren create'")
	return exitOK
}

func runBranches(args []string, logger zerolog.Logger) int {
	m, code := openManager(logger)
	if code != exitOK {
		return code
	}
	defer m.Close()

	repos := args
	if len(repos) == 0 {
		repos = m.RepoNames()
	}
	if len(repos) == 0 {
		fmt.Fprintln(os.Stderr, "no repositories configured")
		return exitFailure
	}
	ctx := context.Background()
	if err := m.EnsureBases(ctx, repos); err != nil {
		return fail(err)
	}
	worst := exitOK
	for _, res := range m.FetchAllBranches(ctx, repos) {
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", res.Repo, res.Err)
			worst = exitFailure
			continue
		}
		for _, b := range res.Branches {
			fmt.Printf("%s\t%s\n", res.Repo, b)
		}
	}
	return worst
}

func runHistory(args []string, logger zerolog.Logger) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	var limit int
	fs.IntVar(&limit, "limit", 20, "max rows")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}

	m, code := openManager(logger)
	if code != exitOK {
		return code
	}
	defer m.Close()

	records, err := m.History(limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailure
	}
	for _, r := range records {
		fmt.Printf("%s\t%s\t%s\t%s\t%s\n", r.StartedAt, r.Action, r.EnvName, r.Status, r.Detail)
	}
	return exitOK
}

func runConfig(_ []string) int {
	cfg, path, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailure
	}
	fmt.Printf("# %s\n", path)
	b, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailure
	}
	os.Stdout.Write(b)
	return exitOK
}
