package app

import (
	"os"
	"testing"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/config"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/matching"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/oracle"
)

func TestMatchingConfig_DefaultsMatchFunnelDefaults(t *testing.T) {
	got := MatchingConfig(config.Defaults().Matching)
	if got != matching.DefaultConfig() {
		t.Fatalf("config defaults diverge from funnel defaults:\n got %+v\nwant %+v", got, matching.DefaultConfig())
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestCategories(t *testing.T) {
	cats := Categories(config.Defaults().Categories)
	if len(cats) != 1 {
		t.Fatalf("len=%d want 1", len(cats))
	}
	c := cats[0]
	if c.PolymarketTag != "crypto" || c.KalshiCategory != "Crypto" || len(c.KalshiTags) != 3 {
		t.Fatalf("unexpected category: %+v", c)
	}
}

func TestNewPersister(t *testing.T) {
	tests := []struct {
		backend string
		wantErr bool
		wantNil bool
	}{
		{backend: "file"},
		{backend: "FILE"},
		{backend: "none", wantNil: true},
		{backend: "redis", wantErr: true},
		{backend: "s3", wantErr: true},
		{backend: "memcached", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := config.Defaults()
			cfg.Cache.Backend = tt.backend
			p, err := newPersister(&cfg, nil, nil, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.wantNil {
				if p != nil {
					t.Fatalf("want nil persister, got %T", p)
				}
				return
			}
			fp, ok := p.(oracle.FilePersister)
			if !ok || fp.Path != cfg.Cache.Path {
				t.Fatalf("got %#v", p)
			}
		})
	}
}

func TestReportWriter(t *testing.T) {
	if reportWriter("scan") != os.Stdout || reportWriter("watch") != os.Stdout {
		t.Fatalf("interactive modes should print the report")
	}
	if reportWriter("server") != nil {
		t.Fatalf("server mode should not print the report")
	}
}
