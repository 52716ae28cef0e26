package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/domainposture/posture-cli/internal/gate"
	"github.com/domainposture/posture-cli/internal/probes"
	"github.com/domainposture/posture-cli/internal/scan"
	"github.com/domainposture/posture-cli/internal/store"
)

// appEnv bundles the long-lived collaborators a command needs: the probe
// orchestrator, the scan-start gate, the aggregate cache and the on-disk
// store. Commands build one per invocation and close it when done.
type appEnv struct {
	orch  *scan.Orchestrator
	gate  *gate.Gate
	cache *gate.Cache
	store *store.AggregateStore
}

func newAppEnv() (*appEnv, error) {
	scansDir, err := getScansDir()
	if err != nil {
		return nil, err
	}

	st, err := store.NewAggregateStore(scansDir)
	if err != nil {
		return nil, fmt.Errorf("open aggregate store: %w", err)
	}

	probeCfg := probes.Defaults()
	if len(cliConfig.Scan.Nameservers) > 0 {
		probeCfg.Nameservers = cliConfig.Scan.Nameservers
	}

	overrides, err := parseProbeTimeouts(cliConfig.Scan.ProbeTimeouts)
	if err != nil {
		return nil, err
	}

	probeSet := probes.All(probeCfg)
	ids := make([]string, 0, len(probeSet))
	for i, p := range probeSet {
		id := p.Definition().ID
		ids = append(ids, id)
		if d, ok := overrides[id]; ok {
			probeSet[i] = scan.WithTimeout(p, d)
			delete(overrides, id)
		}
	}
	if len(overrides) > 0 {
		unknown := make([]string, 0, len(overrides))
		for id := range overrides {
			unknown = append(unknown, id)
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown probe %q in probe timeouts (known probes: %s)", unknown[0], strings.Join(ids, ", "))
	}

	registry, err := scan.NewRegistry(probeSet...)
	if err != nil {
		return nil, fmt.Errorf("build probe registry: %w", err)
	}

	orch := scan.NewOrchestrator(registry, scan.Config{
		DefaultTimeout: time.Duration(cliConfig.Scan.TimeoutSecs) * time.Second,
		Logger:         logger.Desugar(),
	})

	ttl := time.Duration(cliConfig.Scan.CacheTTLMinutes) * time.Minute

	return &appEnv{
		orch:  orch,
		gate:  gate.NewGate(cliConfig.Scan.ScansPerMinute, cliConfig.Scan.ScanBurst),
		cache: gate.NewCache(ttl),
		store: st,
	}, nil
}

// Close releases background resources. Safe to call once per env.
func (e *appEnv) Close() {
	e.cache.Close()
}
