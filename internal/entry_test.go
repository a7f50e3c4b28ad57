package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/linkorder/internal/linkservice"
	"github.com/starford/linkorder/internal/models"
	"github.com/starford/linkorder/internal/ordering"
	"github.com/starford/linkorder/internal/seed"
	"github.com/starford/linkorder/internal/store"
	"github.com/starford/linkorder/internal/testutil"
)

const entrySeed = `
linkTypes:
  - id: has-song
entityTypes:
  - id: playlist
    outgoingLinks:
      - {linkType: has-song, array: true, ordered: true}
  - id: song
entities:
  - {key: mix, type: playlist}
  - {key: a, type: song}
  - {key: b, type: song}
links:
  - {source: mix, linkType: has-song, target: a}
  - {source: mix, linkType: has-song, target: b, index: 0}
`

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Seed.Dir = filepath.Join(dir, "seed")
	cfg.SQLite.Path = filepath.Join(dir, "linkorder.db")
	return cfg
}

func TestRunSeedThenCheck(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	// RunSeed creates the seed dir; write the document after a first run.
	var out bytes.Buffer
	if err := RunSeed(ctx, WithConfig(cfg), WithOutput(&out)); err != nil {
		t.Fatalf("RunSeed (empty): %v", err)
	}
	testutil.WriteFile(t, cfg.Seed.Dir, "music.yaml", entrySeed)

	out.Reset()
	if err := RunSeed(ctx, WithConfig(cfg), WithOutput(&out)); err != nil {
		t.Fatalf("RunSeed: %v", err)
	}
	var res seed.Result
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	if res.Files != 1 || res.LinksCreated != 2 {
		t.Errorf("result = %+v", res)
	}

	out.Reset()
	if err := RunCheck(ctx, WithConfig(cfg), WithOutput(&out)); err != nil {
		t.Fatalf("RunCheck: %v", err)
	}
	var reports []linkservice.GroupReport
	if err := json.Unmarshal(out.Bytes(), &reports); err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 || !reports[0].OK() || reports[0].Size != 2 {
		t.Errorf("reports = %+v", reports)
	}
}

func TestRunCheck_ReportsBrokenGroup(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	if err := RunSeed(ctx, WithConfig(cfg), WithOutput(&bytes.Buffer{})); err != nil {
		t.Fatal(err)
	}
	testutil.WriteFile(t, cfg.Seed.Dir, "music.yaml", entrySeed)
	if err := RunSeed(ctx, WithConfig(cfg), WithOutput(&bytes.Buffer{})); err != nil {
		t.Fatal(err)
	}

	// Open a second handle on the same database to break the group.
	deps, err := openServices(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	if err != nil {
		t.Fatal(err)
	}
	mix, err := deps.svc.EntityByKey(ctx, "mix")
	if err != nil {
		t.Fatal(err)
	}
	key := models.GroupKey{SourceEntityID: mix.ID, LinkTypeID: "has-song"}
	g, err := deps.svc.GetGroup(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	err = deps.store.InTx(ctx, func(tx store.GroupTx) error {
		return tx.ApplyIndexDelta(ctx, key, ordering.Changes{g.Links[1].ID: 6})
	})
	if err != nil {
		t.Fatal(err)
	}
	deps.store.Close()

	err = RunCheck(ctx, WithConfig(cfg), WithOutput(&bytes.Buffer{}))
	if !errors.Is(err, ErrGroupsNotContiguous) {
		t.Errorf("err = %v, want ErrGroupsNotContiguous", err)
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := RunCheck(context.Background()); err == nil {
		t.Fatal("missing config should fail")
	}
}
