package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/synapsed/biem/pkg/biem"
	"github.com/synapsed/biem/pkg/embed"
	"github.com/synapsed/biem/pkg/knowledge"
	"github.com/synapsed/biem/pkg/kv"
	"github.com/synapsed/biem/pkg/llm"
	"github.com/synapsed/biem/pkg/relstore"
	"github.com/synapsed/biem/pkg/vecstore"
)

// engineSep is the KV separator for biemctl's node store. Using ASCII Unit
// Separator (0x1F) so scope/id components can contain ':'.
const engineSep byte = 0x1F

// env bundles the engines and backing stores for one biemctl invocation.
type env struct {
	Memory    *biem.MemoryManager
	Knowledge *knowledge.Engine
	cfg       biem.Config

	store   *kv.Badger
	rel     *relstore.Store
	dataDir string
}

func (e *env) Close() {
	if e.store != nil {
		_ = e.store.Close()
	}
	if e.rel != nil {
		_ = e.rel.Close()
	}
}

func resolveDataDir() (string, error) {
	dir := dataDir
	if dir == "" {
		dir = os.Getenv("BIEMCTL_DATA_DIR")
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home dir: %w", err)
		}
		dir = filepath.Join(home, ".local", "share", "biemctl")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return dir, nil
}

func resolveEmbedder() embed.Embedder {
	key := embedAPIKey
	if key == "" {
		if embedBackend == "openai" {
			key = os.Getenv("OPENAI_API_KEY")
		} else {
			key = os.Getenv("DASHSCOPE_API_KEY")
		}
	}
	if key == "" {
		return nil
	}
	if embedBackend == "openai" {
		return embed.NewOpenAI(key)
	}
	return embed.NewDashScope(key)
}

func resolveLLMProvider() llm.Provider {
	key := llmAPIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil
	}
	return llm.NewOpenAIProvider(key, llmModel, llmBaseURL)
}

// openEnv opens the badger kv store, the sqlite relational store, and wires
// both the episodic (pkg/biem) and structured-fact (pkg/knowledge) engines
// on top of them.
//
// The vector indexes start empty on each invocation. Node records (vector
// included) persist in kv and triples in sqlite, but neither is re-inserted
// into a fresh index on startup, so vector search only sees nodes and
// triples written during the current invocation.
func openEnv() (*env, error) {
	dir, err := resolveDataDir()
	if err != nil {
		return nil, err
	}

	kvOpts := &kv.Options{Separator: engineSep}
	store, err := kv.NewBadger(kv.BadgerOptions{
		Dir:     filepath.Join(dir, "nodes"),
		Options: kvOpts,
		Logger:  silentLogger{},
	})
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	rel, err := relstore.Open(context.Background(), filepath.Join(dir, "relstore.db"))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open relstore: %w", err)
	}

	embedder := resolveEmbedder()
	llmProv := resolveLLMProvider()
	cfg := biem.DefaultConfig()

	newIndex := func() vecstore.Index {
		return vecstore.NewMemory()
	}

	mem := biem.NewEngine(cfg, store, newIndex, embedder, llmProv, rel, nil)
	know := knowledge.NewEngine(rel, newIndex(), embedder, llmProv,
		cfg.ConfMin, cfg.AutoStore, secondsToDuration(cfg.PendingTTLSeconds), nil)

	return &env{Memory: mem, Knowledge: know, cfg: cfg, store: store, rel: rel, dataDir: dir}, nil
}

// silentLogger suppresses BadgerDB's own log output; biemctl reports errors
// itself at each call site instead.
type silentLogger struct{}

func (silentLogger) Errorf(string, ...any)   {}
func (silentLogger) Warningf(string, ...any) {}
func (silentLogger) Infof(string, ...any)    {}
func (silentLogger) Debugf(string, ...any)   {}
