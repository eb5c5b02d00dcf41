package matching

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rec(title, close string, ex domain.Exchange, lower, upper *float64) domain.MarketRecord {
	return domain.MarketRecord{
		Title:       title,
		CloseTime:   close,
		Exchange:    ex,
		StrikeLower: lower,
		StrikeUpper: upper,
		YesPrice:    0.5,
		NoPrice:     0.5,
	}
}

func records(rs ...domain.MarketRecord) map[string]domain.MarketRecord {
	out := make(map[string]domain.MarketRecord, len(rs))
	for _, r := range rs {
		out[r.Title] = r
	}
	return out
}

// fakeEmbedder returns fixed vectors per title; titles absent from vecs come
// back nil.
type fakeEmbedder struct {
	vecs  map[string][]float32
	err   error
	calls int
	seen  []string
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, titles []string) ([][]float32, error) {
	f.calls++
	f.seen = append(f.seen, titles...)
	out := make([][]float32, len(titles))
	for i, t := range titles {
		out[i] = f.vecs[t]
	}
	return out, f.err
}

type fakeJudge struct {
	verdict bool
	err     error
	calls   int
}

func (f *fakeJudge) Adjudicate(context.Context, string, string) (bool, error) {
	f.calls++
	return f.verdict, f.err
}

func TestParseCloseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2025-01-01T12:00:00Z", time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC), true},
		{"2025-01-01T12:00:00.123Z", time.Date(2025, 1, 1, 12, 0, 0, 123e6, time.UTC), true},
		{"2025-01-01T14:00:00+02:00", time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC), true},
		{"2025-01-01T12:00:00", time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC), true},
		{"2025-01-01T12:00:00+0000", time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC), true},
		{"2025-01-01T13:30:00.5+0130", time.Date(2025, 1, 1, 12, 0, 0, 5e8, time.UTC), true},
		{"2025-01-01T12:00", time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC), true},
		{"2025-01-01T14:00+02:00", time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC), true},
		{"2025-01-01", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"tomorrow", time.Time{}, false},
	}
	for _, tt := range tests {
		got, err := ParseCloseTime(tt.in)
		if (err == nil) != tt.ok {
			t.Fatalf("ParseCloseTime(%q) err=%v want ok=%v", tt.in, err, tt.ok)
		}
		if tt.ok && !got.Equal(tt.want) {
			t.Fatalf("ParseCloseTime(%q)=%v want %v", tt.in, got, tt.want)
		}
	}
}

func TestMatchByCloseTime_Window(t *testing.T) {
	a := records(rec("a1", "2025-01-01T12:00:00Z", domain.ExchangePolymarket, nil, nil))
	b := records(
		rec("b-exact-edge", "2025-01-01T15:00:00Z", domain.ExchangeKalshi, nil, nil),
		rec("b-inside", "2025-01-01T10:30:00Z", domain.ExchangeKalshi, nil, nil),
		rec("b-outside", "2025-01-01T15:00:01Z", domain.ExchangeKalshi, nil, nil),
		rec("b-bad", "soon", domain.ExchangeKalshi, nil, nil),
	)
	got := MatchByCloseTime(a, b, 3*time.Hour)
	var titles []string
	for _, p := range got {
		titles = append(titles, p.B.Title)
	}
	want := []string{"b-exact-edge", "b-inside"}
	if !reflect.DeepEqual(titles, want) {
		t.Fatalf("got %v want %v", titles, want)
	}
}

func TestMatchByCloseTime_Symmetric(t *testing.T) {
	a := records(
		rec("a1", "2025-01-01T12:00:00Z", domain.ExchangePolymarket, nil, nil),
		rec("a2", "2025-01-02T00:00:00Z", domain.ExchangePolymarket, nil, nil),
		rec("a3", "garbage", domain.ExchangePolymarket, nil, nil),
	)
	b := records(
		rec("b1", "2025-01-01T13:00:00Z", domain.ExchangeKalshi, nil, nil),
		rec("b2", "2025-01-01T22:30:00Z", domain.ExchangeKalshi, nil, nil),
		rec("b3", "2025-01-05T00:00:00Z", domain.ExchangeKalshi, nil, nil),
	)

	key := func(x, y string) string { return x + "|" + y }
	var forward, backward []string
	for _, p := range MatchByCloseTime(a, b, 3*time.Hour) {
		forward = append(forward, key(p.A.Title, p.B.Title))
	}
	for _, p := range MatchByCloseTime(b, a, 3*time.Hour) {
		backward = append(backward, key(p.B.Title, p.A.Title))
	}
	sort.Strings(forward)
	sort.Strings(backward)
	if !reflect.DeepEqual(forward, backward) {
		t.Fatalf("not symmetric: %v vs %v", forward, backward)
	}
	if len(forward) != 2 {
		t.Fatalf("expected 2 pairs, got %v", forward)
	}
}

func TestWithinTolerance(t *testing.T) {
	tests := []struct {
		x, y float64
		want bool
	}{
		{49990, 50000, true},
		{100, 200, false},
		{0, 0, true},
		{100, 100.5, true},
		{100, 101, false},
		{-100, -100.2, true},
	}
	for _, tt := range tests {
		if got := WithinTolerance(tt.x, tt.y, 0.005); got != tt.want {
			t.Fatalf("WithinTolerance(%v, %v)=%v want %v", tt.x, tt.y, got, tt.want)
		}
		if got := WithinTolerance(tt.y, tt.x, 0.005); got != tt.want {
			t.Fatalf("WithinTolerance not symmetric for (%v, %v)", tt.x, tt.y)
		}
	}
}

func TestStrikesCompatible(t *testing.T) {
	f := domain.Float
	tests := []struct {
		name       string
		a, b       domain.MarketRecord
		allowCross bool
		want       bool
	}{
		{"neither side", domain.MarketRecord{}, domain.MarketRecord{}, true, false},
		{"only a", domain.MarketRecord{StrikeUpper: f(100)}, domain.MarketRecord{}, true, true},
		{"only b", domain.MarketRecord{}, domain.MarketRecord{StrikeLower: f(100)}, true, true},
		{"upper match", domain.MarketRecord{StrikeUpper: f(50000)}, domain.MarketRecord{StrikeUpper: f(49990)}, false, true},
		{"lower mismatch", domain.MarketRecord{StrikeLower: f(100)}, domain.MarketRecord{StrikeLower: f(200)}, true, false},
		{"cross allowed", domain.MarketRecord{StrikeLower: f(100)}, domain.MarketRecord{StrikeUpper: f(100)}, true, true},
		{"cross disabled", domain.MarketRecord{StrikeLower: f(100)}, domain.MarketRecord{StrikeUpper: f(100)}, false, false},
		{
			"cross blocked by opposite bound",
			domain.MarketRecord{StrikeLower: f(100), StrikeUpper: f(300)},
			domain.MarketRecord{StrikeUpper: f(100)},
			true, false,
		},
		{
			"range against range",
			domain.MarketRecord{StrikeLower: f(100), StrikeUpper: f(200)},
			domain.MarketRecord{StrikeLower: f(150), StrikeUpper: f(200)},
			false, true,
		},
		{"zero bounds", domain.MarketRecord{StrikeLower: f(0)}, domain.MarketRecord{StrikeLower: f(0)}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StrikesCompatible(tt.a, tt.b, 0.005, tt.allowCross); got != tt.want {
				t.Fatalf("got %v want %v", got, tt.want)
			}
		})
	}
}

func TestFunnel_HighScoreSkipsAdjudicator(t *testing.T) {
	a := records(rec("Bitcoin above $50,000 on Jan 1?", "2025-01-01T12:00:00Z", domain.ExchangePolymarket, nil, domain.Float(50000)))
	b := records(rec("BTC above 49990 Jan 1", "2025-01-01T13:00:00Z", domain.ExchangeKalshi, nil, domain.Float(49990)))

	emb := &fakeEmbedder{vecs: map[string][]float32{
		"Bitcoin above $50,000 on Jan 1?": {1, 0},
		"BTC above 49990 Jan 1":           {0.7, 0.71414284},
	}}
	judge := &fakeJudge{}
	f := NewFunnel(emb, judge, DefaultConfig(), testLogger())

	pairs, stats, err := f.Match(context.Background(), a, b)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("pairs=%d want 1 (stats %+v)", len(pairs), stats)
	}
	if judge.calls != 0 {
		t.Fatalf("adjudicator called %d times", judge.calls)
	}
	if pairs[0].Score == nil || *pairs[0].Score < 0.69 || *pairs[0].Score > 0.71 {
		t.Fatalf("score=%v want ~0.70", pairs[0].Score)
	}
	if stats.AutoAccepted != 1 || stats.Accepted != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestFunnel_EmbedsEachTitleOnce(t *testing.T) {
	a := records(
		rec("a1", "2025-01-01T12:00:00Z", domain.ExchangePolymarket, nil, domain.Float(10)),
		rec("a2", "2025-01-01T12:30:00Z", domain.ExchangePolymarket, nil, domain.Float(10)),
	)
	b := records(
		rec("b1", "2025-01-01T12:00:00Z", domain.ExchangeKalshi, nil, domain.Float(10)),
		rec("b2", "2025-01-01T13:00:00Z", domain.ExchangeKalshi, nil, domain.Float(10)),
	)
	emb := &fakeEmbedder{vecs: map[string][]float32{
		"a1": {1, 0}, "a2": {1, 0}, "b1": {1, 0}, "b2": {1, 0},
	}}
	f := NewFunnel(emb, &fakeJudge{}, DefaultConfig(), testLogger())

	pairs, _, err := f.Match(context.Background(), a, b)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(pairs) != 4 {
		t.Fatalf("pairs=%d want 4", len(pairs))
	}
	if emb.calls != 1 || len(emb.seen) != 4 {
		t.Fatalf("embedder calls=%d titles=%v", emb.calls, emb.seen)
	}
}

func TestFunnel_BorderlineGoesToJudge(t *testing.T) {
	a := records(rec("a", "2025-01-01T12:00:00Z", domain.ExchangePolymarket, domain.Float(5), nil))
	b := records(rec("b", "2025-01-01T12:00:00Z", domain.ExchangeKalshi, domain.Float(5), nil))
	emb := &fakeEmbedder{vecs: map[string][]float32{"a": {1, 0}, "b": {0.5, 0.8660254}}}

	for _, verdict := range []bool{true, false} {
		judge := &fakeJudge{verdict: verdict}
		pairs, stats, err := NewFunnel(emb, judge, DefaultConfig(), testLogger()).Match(context.Background(), a, b)
		if err != nil {
			t.Fatalf("Match: %v", err)
		}
		if judge.calls != 1 || stats.Adjudicated != 1 {
			t.Fatalf("judge calls=%d stats=%+v", judge.calls, stats)
		}
		if (len(pairs) == 1) != verdict {
			t.Fatalf("verdict %v produced %d pairs", verdict, len(pairs))
		}
	}
}

func TestFunnel_BelowThresholdDropped(t *testing.T) {
	a := records(rec("a", "2025-01-01T12:00:00Z", domain.ExchangePolymarket, domain.Float(5), nil))
	b := records(rec("b", "2025-01-01T12:00:00Z", domain.ExchangeKalshi, domain.Float(5), nil))
	emb := &fakeEmbedder{vecs: map[string][]float32{"a": {1, 0}, "b": {0, 1}}}
	judge := &fakeJudge{verdict: true}

	pairs, stats, err := NewFunnel(emb, judge, DefaultConfig(), testLogger()).Match(context.Background(), a, b)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(pairs) != 0 || stats.AfterSimilarity != 0 || judge.calls != 0 {
		t.Fatalf("orthogonal titles should not survive: pairs=%d stats=%+v", len(pairs), stats)
	}
}

func TestFunnel_FailurePolicies(t *testing.T) {
	a := records(rec("a", "2025-01-01T12:00:00Z", domain.ExchangePolymarket, domain.Float(5), nil))
	b := records(rec("b", "2025-01-01T12:00:00Z", domain.ExchangeKalshi, domain.Float(5), nil))
	borderline := map[string][]float32{"a": {1, 0}, "b": {0.5, 0.8660254}}
	oracleDown := errors.New("oracle down")

	tests := []struct {
		name      string
		vecs      map[string][]float32
		verdict   bool
		judgeErr  error
		nilJudge  bool
		policy    FailurePolicy
		wantPairs int
		wantCalls int
	}{
		{"embed failure default drops", map[string][]float32{"a": {1, 0}}, true, nil, false, DefaultFailurePolicy, 0, 0},
		{"embed failure accept goes to judge", map[string][]float32{"a": {1, 0}}, true, nil, false, FailurePolicy{PolicyAccept, PolicyAccept}, 1, 1},
		{"embed failure accept judge says no", map[string][]float32{"a": {1, 0}}, false, nil, false, FailurePolicy{PolicyAccept, PolicyAccept}, 0, 1},
		{"embed failure accept judge down", map[string][]float32{"a": {1, 0}}, false, oracleDown, false, FailurePolicy{PolicyAccept, PolicyAccept}, 1, 1},
		{"judge failure default accepts", borderline, false, oracleDown, false, DefaultFailurePolicy, 1, 1},
		{"judge failure drop", borderline, false, oracleDown, false, FailurePolicy{PolicyDrop, PolicyDrop}, 0, 1},
		{"nil judge default accepts", borderline, false, nil, true, DefaultFailurePolicy, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Failure = tt.policy
			judge := &fakeJudge{verdict: tt.verdict, err: tt.judgeErr}
			var f *Funnel
			if tt.nilJudge {
				f = NewFunnel(&fakeEmbedder{vecs: tt.vecs}, nil, cfg, testLogger())
			} else {
				f = NewFunnel(&fakeEmbedder{vecs: tt.vecs}, judge, cfg, testLogger())
			}
			pairs, _, err := f.Match(context.Background(), a, b)
			if err != nil {
				t.Fatalf("Match: %v", err)
			}
			if len(pairs) != tt.wantPairs {
				t.Fatalf("pairs=%d want %d", len(pairs), tt.wantPairs)
			}
			if judge.calls != tt.wantCalls {
				t.Fatalf("judge calls=%d want %d", judge.calls, tt.wantCalls)
			}
		})
	}
}

func TestFunnel_Idempotent(t *testing.T) {
	a := records(
		rec("a1", "2025-01-01T12:00:00Z", domain.ExchangePolymarket, nil, domain.Float(10)),
		rec("a2", "2025-01-01T12:30:00Z", domain.ExchangePolymarket, domain.Float(3), nil),
	)
	b := records(
		rec("b1", "2025-01-01T12:00:00Z", domain.ExchangeKalshi, nil, domain.Float(10)),
		rec("b2", "2025-01-01T13:00:00Z", domain.ExchangeKalshi, domain.Float(3), nil),
	)
	emb := &fakeEmbedder{vecs: map[string][]float32{
		"a1": {1, 0}, "a2": {0, 1}, "b1": {1, 0}, "b2": {0.6, 0.8},
	}}
	f := NewFunnel(emb, &fakeJudge{verdict: true}, DefaultConfig(), testLogger())

	first, _, err := f.Match(context.Background(), a, b)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	second, _, err := f.Match(context.Background(), a, b)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("runs differ:\n%+v\n%+v", first, second)
	}
}

func TestFunnel_ContextCanceled(t *testing.T) {
	a := records(rec("a", "2025-01-01T12:00:00Z", domain.ExchangePolymarket, domain.Float(5), nil))
	b := records(rec("b", "2025-01-01T12:00:00Z", domain.ExchangeKalshi, domain.Float(5), nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFunnel(&fakeEmbedder{vecs: map[string][]float32{"a": {1}, "b": {1}}}, &fakeJudge{}, DefaultConfig(), testLogger())
	if _, _, err := f.Match(ctx, a, b); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := DefaultConfig()
	bad.Failure.EmbedFailure = "maybe"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected unknown policy to fail")
	}
	bad = DefaultConfig()
	bad.SimilarityThreshold = 2
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected out-of-range threshold to fail")
	}
}
