package main

import (
	"path/filepath"

	"github.com/porgproject/porg"
	"github.com/porgproject/porg/internal/audit"
	"github.com/porgproject/porg/internal/bootstrap"
	"github.com/porgproject/porg/internal/config"
	"github.com/porgproject/porg/internal/db"
	"github.com/porgproject/porg/internal/depgraph"
	"github.com/porgproject/porg/internal/fetch"
	"github.com/porgproject/porg/internal/plog"
	"github.com/porgproject/porg/internal/ports"
	"github.com/porgproject/porg/internal/remove"
	"github.com/porgproject/porg/internal/sandbox"
	"github.com/porgproject/porg/internal/sync"
	"github.com/porgproject/porg/internal/upgrade"
)

// env bundles every component one verb invocation might need, built once
// from the loaded Config. Components are cheap value/pointer wrappers
// around shared state (the DB path, the ports tree index), so building
// all of them up front costs nothing a verb doesn't already pay for the
// ones it actually uses.
type env struct {
	cfg *config.Config
	log *plog.Session

	ports   *ports.Tree
	db      *db.DB
	graph   *depgraph.Graph
	fetcher *fetch.Fetcher
	builder *sandbox.Builder
	remover *remove.Remover
	syncer  *sync.Syncer

	upgrader   *upgrade.Upgrader
	bootstrapr *bootstrap.Orchestrator
	auditor    *audit.Auditor
}

func newEnv() (*env, error) {
	cfg, err := config.Load(*confPath)
	if err != nil {
		return nil, runtimeErr(err)
	}

	logSession, err := plog.New(plog.Options{
		Dir:      cfg.LogDir,
		Quiet:    false,
		JSON:     cfg.LogJSON,
		MinLevel: parseLevel(cfg.LogLevel),
		NoColor:  !cfg.LogColor,
	})
	if err != nil {
		return nil, runtimeErr(err)
	}
	porg.RegisterAtExit(logSession.Close)

	tree := ports.New(cfg.PortsDir)

	database := db.Open(cfg.InstalledDB)
	graph := depgraph.New(tree, database)
	fetcher := fetch.New(cfg.CacheDir, cfg.GPGKeyring, logSession)
	builder := sandbox.New(cfg, logSession, fetcher, database, graph)
	remover := remove.New(database, graph, logSession)
	syncer := sync.New(cfg.PortsDir, cfg.GitRepo, cfg.GitBranch, logSession)

	stateDir := filepath.Join(cfg.WorkDir, "state")
	upgrader := upgrade.New(database, graph, builder, remover, tree, logSession, stateDir)

	bootstrapStateDir := filepath.Join(cfg.WorkDir, "bootstrap")
	bootstrapr := bootstrap.New(builder, tree, logSession, bootstrapStateDir)

	auditor := &audit.Auditor{
		DB: database, Graph: graph, Builder: builder, Remover: remover,
		Recipes: tree, Log: logSession,
	}

	return &env{
		cfg: cfg, log: logSession,
		ports: tree, db: database, graph: graph, fetcher: fetcher,
		builder: builder, remover: remover, syncer: syncer,
		upgrader: upgrader, bootstrapr: bootstrapr, auditor: auditor,
	}, nil
}

func parseLevel(s string) plog.Level {
	switch s {
	case "DEBUG":
		return plog.DEBUG
	case "WARN":
		return plog.WARN
	case "ERROR":
		return plog.ERROR
	case "STAGE":
		return plog.STAGE
	default:
		return plog.INFO
	}
}
