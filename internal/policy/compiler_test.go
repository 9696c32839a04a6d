package policy

import (
	"testing"
	"time"

	"github.com/mzizi/muundo/model"
)

func TestCompile_onLoadDefaults(t *testing.T) {
	cfg := Compile(&model.CachePolicy{Strategy: model.StrategyOnLoad}, nil)

	if cfg.Staleness != 0 {
		t.Errorf("staleness = %v, want 0", cfg.Staleness)
	}
	if !cfg.RefetchOnForeground || !cfg.RefetchOnReconnect {
		t.Error("onLoad must refetch on foreground and reconnect")
	}
	if cfg.Retention <= 0 {
		t.Errorf("retention = %v, want positive", cfg.Retention)
	}
	if cfg.Retries == 0 {
		t.Error("retries must default to a positive count")
	}
}

func TestCompile_staticDefaults(t *testing.T) {
	cfg := Compile(&model.CachePolicy{Strategy: model.StrategyStatic}, nil)

	if cfg.Staleness != model.Forever || cfg.Retention != model.Forever {
		t.Errorf("static windows = %v/%v, want forever", cfg.Staleness, cfg.Retention)
	}
	if cfg.RefetchOnForeground || cfg.RefetchOnReconnect {
		t.Error("static must never revalidate")
	}
}

func TestCompile_pollDefaults(t *testing.T) {
	cfg := Compile(&model.CachePolicy{
		Strategy:       model.StrategyPoll,
		PollIntervalMs: 15_000,
	}, nil)

	if cfg.PollInterval != 15*time.Second {
		t.Errorf("poll interval = %v", cfg.PollInterval)
	}
	if cfg.Staleness != 15*time.Second {
		t.Errorf("staleness = %v, want poll interval", cfg.Staleness)
	}
	if cfg.RefetchOnForeground {
		t.Error("polling supersedes refetch-on-foreground")
	}
	if !cfg.Polls() {
		t.Error("Polls() = false")
	}
}

func TestCompile_pollIntervalFromAdaptiveMin(t *testing.T) {
	cfg := Compile(&model.CachePolicy{
		Strategy: model.StrategyPoll,
		AdaptivePoll: &model.AdaptivePollConfig{
			MinIntervalMs: 10_000,
			MaxIntervalMs: 60_000,
		},
	}, nil)
	if cfg.PollInterval != 10*time.Second {
		t.Errorf("poll interval = %v, want adaptive min", cfg.PollInterval)
	}
}

func TestCompile_nilPolicyIsOnLoad(t *testing.T) {
	cfg := Compile(nil, nil)
	if cfg.Strategy != model.StrategyOnLoad {
		t.Errorf("strategy = %q", cfg.Strategy)
	}
}

func TestCompile_explicitOverridesBeatBaseline(t *testing.T) {
	staleness := int64(45_000)
	refg := true
	cfg := Compile(&model.CachePolicy{
		Strategy:            model.StrategyPoll,
		PollIntervalMs:      10_000,
		StalenessMs:         &staleness,
		RefetchOnForeground: &refg,
	}, nil)

	if cfg.Staleness != 45*time.Second {
		t.Errorf("staleness = %v", cfg.Staleness)
	}
	if !cfg.RefetchOnForeground {
		t.Error("explicit refetch_on_foreground override ignored")
	}
}

func TestCompile_documentDefaultsMergeUnderSection(t *testing.T) {
	retention := int64(600_000)
	retries := 5
	persist := true
	docDefaults := &model.CachePolicy{
		RetentionMs: &retention,
		Retries:     &retries,
		Persist:     &persist,
	}
	cfg := Compile(&model.CachePolicy{Strategy: model.StrategyOnLoad}, docDefaults)

	if cfg.Retention != 10*time.Minute {
		t.Errorf("retention = %v, want document default", cfg.Retention)
	}
	if cfg.Retries != 5 {
		t.Errorf("retries = %d, want 5", cfg.Retries)
	}
	if !cfg.Persist {
		t.Error("persist default not inherited")
	}
}

func TestCompile_sectionWinsOverDocumentDefaults(t *testing.T) {
	docStaleness := int64(60_000)
	sectionStaleness := int64(5_000)
	cfg := Compile(
		&model.CachePolicy{Strategy: model.StrategyOnLoad, StalenessMs: &sectionStaleness},
		&model.CachePolicy{StalenessMs: &docStaleness},
	)
	if cfg.Staleness != 5*time.Second {
		t.Errorf("staleness = %v, want section value", cfg.Staleness)
	}
}

func TestCompile_zeroRetriesIsAnOverride(t *testing.T) {
	docRetries := 5
	sectionRetries := 0
	cfg := Compile(
		&model.CachePolicy{Strategy: model.StrategyOnLoad, Retries: &sectionRetries},
		&model.CachePolicy{Retries: &docRetries},
	)
	if cfg.Retries != 0 {
		t.Errorf("retries = %d, want explicit 0", cfg.Retries)
	}
}

func TestCompile_sectionCanDisableDocumentPersist(t *testing.T) {
	docPersist := true
	sectionPersist := false
	cfg := Compile(
		&model.CachePolicy{Strategy: model.StrategyOnLoad, Persist: &sectionPersist},
		&model.CachePolicy{Persist: &docPersist},
	)
	if cfg.Persist {
		t.Error("section persist=false must override the document default")
	}
}

func TestCompile_retentionNeverBelowStaleness(t *testing.T) {
	staleness := int64(600_000)
	cfg := Compile(&model.CachePolicy{
		Strategy:    model.StrategyOnLoad,
		StalenessMs: &staleness,
	}, nil)
	if cfg.Retention < cfg.Staleness {
		t.Errorf("retention %v < staleness %v", cfg.Retention, cfg.Staleness)
	}
}
