package extract

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stalehq/staleness/internal/dateparse"
	"github.com/stalehq/staleness/internal/freshness"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

var testNow = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

func newTestParser() *dateparse.Parser {
	return dateparse.New(&fakeClock{now: testNow})
}

func mustDoc(t *testing.T, rawURL, body string, header http.Header) *Document {
	t.Helper()
	doc, err := NewDocumentFromString(rawURL, body, header)
	require.NoError(t, err)
	return doc
}

func TestMetaExtractor(t *testing.T) {
	t.Parallel()

	ext := NewMetaExtractor(newTestParser())

	t.Run("published and modified", func(t *testing.T) {
		t.Parallel()
		doc := mustDoc(t, "https://example.com/a", `<html><head>
			<meta property="article:published_time" content="2024-01-15T10:30:00Z">
			<meta property="article:modified_time" content="2024-02-01T08:00:00Z">
		</head><body></body></html>`, nil)

		c := ext.Extract(doc)
		require.NotNil(t, c)
		require.Equal(t, freshness.SourceStructuredMetadata, c.Source)
		require.InDelta(t, 0.95, c.Confidence, 1e-9)
		require.NotNil(t, c.Published)
		require.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), c.Published.UTC())
		require.NotNil(t, c.Modified)
		require.Equal(t, time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC), c.Modified.UTC())
	})

	t.Run("priority order", func(t *testing.T) {
		t.Parallel()
		// article:published_time outranks the generic date meta.
		doc := mustDoc(t, "https://example.com/a", `<html><head>
			<meta name="date" content="2023-01-01">
			<meta property="article:published_time" content="2024-01-15">
		</head><body></body></html>`, nil)

		c := ext.Extract(doc)
		require.NotNil(t, c)
		require.Equal(t, 2024, c.Published.Year())
	})

	t.Run("unparseable content skipped", func(t *testing.T) {
		t.Parallel()
		doc := mustDoc(t, "https://example.com/a", `<html><head>
			<meta property="article:published_time" content="not a date">
			<meta name="date" content="2024-03-10">
		</head><body></body></html>`, nil)

		c := ext.Extract(doc)
		require.NotNil(t, c)
		require.Equal(t, time.March, c.Published.Month())
	})

	t.Run("no meta tags", func(t *testing.T) {
		t.Parallel()
		doc := mustDoc(t, "https://example.com/a", `<html><body><p>hello</p></body></html>`, nil)
		require.Nil(t, ext.Extract(doc))
	})
}

func TestJSONLDExtractor(t *testing.T) {
	t.Parallel()

	ext := NewJSONLDExtractor(newTestParser())

	t.Run("article object", func(t *testing.T) {
		t.Parallel()
		doc := mustDoc(t, "https://example.com/a", `<html><head>
			<script type="application/ld+json">
			{"@type":"Article","datePublished":"2024-01-15T10:30:00Z","dateModified":"2024-02-01T08:00:00Z"}
			</script>
		</head><body></body></html>`, nil)

		c := ext.Extract(doc)
		require.NotNil(t, c)
		require.Equal(t, freshness.SourceLinkedData, c.Source)
		require.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), c.Published.UTC())
		require.Equal(t, time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC), c.Modified.UTC())
	})

	t.Run("nested graph", func(t *testing.T) {
		t.Parallel()
		doc := mustDoc(t, "https://example.com/a", `<html><head>
			<script type="application/ld+json">
			{"@graph":[{"@type":"WebSite"},{"@type":"NewsArticle","datePublished":"2023-11-02"}]}
			</script>
		</head><body></body></html>`, nil)

		c := ext.Extract(doc)
		require.NotNil(t, c)
		require.Equal(t, 2023, c.Published.Year())
		require.Equal(t, time.November, c.Published.Month())
	})

	t.Run("malformed json ignored", func(t *testing.T) {
		t.Parallel()
		doc := mustDoc(t, "https://example.com/a", `<html><head>
			<script type="application/ld+json">{not json at all</script>
			<script type="application/ld+json">{"dateCreated":"2024-03-01"}</script>
		</head><body></body></html>`, nil)

		c := ext.Extract(doc)
		require.NotNil(t, c)
		require.Equal(t, time.March, c.Published.Month())
	})

	t.Run("no scripts", func(t *testing.T) {
		t.Parallel()
		doc := mustDoc(t, "https://example.com/a", `<html><body></body></html>`, nil)
		require.Nil(t, ext.Extract(doc))
	})
}

func TestTimeElementExtractor(t *testing.T) {
	t.Parallel()

	ext := NewTimeElementExtractor(newTestParser())

	t.Run("single datetime", func(t *testing.T) {
		t.Parallel()
		doc := mustDoc(t, "https://example.com/a", `<html><body>
			<article><time datetime="2024-01-15T10:30:00Z">Jan 15</time></article>
		</body></html>`, nil)

		c := ext.Extract(doc)
		require.NotNil(t, c)
		require.Equal(t, freshness.SourceInlineTimeMarkup, c.Source)
		require.InDelta(t, 0.85, c.Confidence, 1e-9)
		require.NotNil(t, c.Published)
		require.Nil(t, c.Modified)
	})

	t.Run("modified keyword context", func(t *testing.T) {
		t.Parallel()
		doc := mustDoc(t, "https://example.com/a", `<html><body><article>
			<p>Published <time datetime="2024-01-15">Jan 15</time></p>
			<p>Updated <time datetime="2024-02-01">Feb 1</time></p>
		</article></body></html>`, nil)

		c := ext.Extract(doc)
		require.NotNil(t, c)
		require.Equal(t, time.January, c.Published.Month())
		require.NotNil(t, c.Modified)
		require.Equal(t, time.February, c.Modified.Month())
	})

	t.Run("two plain times treat later as modified", func(t *testing.T) {
		t.Parallel()
		doc := mustDoc(t, "https://example.com/a", `<html><body><article>
			<time datetime="2024-01-15">a</time>
			<time datetime="2024-03-01">b</time>
		</article></body></html>`, nil)

		c := ext.Extract(doc)
		require.NotNil(t, c)
		require.Equal(t, time.January, c.Published.Month())
		require.NotNil(t, c.Modified)
		require.Equal(t, time.March, c.Modified.Month())
	})

	t.Run("no time elements", func(t *testing.T) {
		t.Parallel()
		doc := mustDoc(t, "https://example.com/a", `<html><body><p>text</p></body></html>`, nil)
		require.Nil(t, ext.Extract(doc))
	})
}

func TestHeuristicExtractor(t *testing.T) {
	t.Parallel()

	ext := NewHeuristicExtractor(newTestParser())

	t.Run("byline date", func(t *testing.T) {
		t.Parallel()
		doc := mustDoc(t, "https://example.com/a", `<html><body>
			<div class="byline">By Ada Lovelace, Published January 15, 2024</div>
		</body></html>`, nil)

		c := ext.Extract(doc)
		require.NotNil(t, c)
		require.Equal(t, freshness.SourceHeuristicText, c.Source)
		require.InDelta(t, 0.50, c.Confidence, 1e-9)
		require.NotNil(t, c.Published)
		require.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), c.Published.UTC())
	})

	t.Run("modified keyword classifies match", func(t *testing.T) {
		t.Parallel()
		doc := mustDoc(t, "https://example.com/a", `<html><body>
			<div id="footer-info-lastmod">This page was last edited on 12 March 2024</div>
		</body></html>`, nil)

		c := ext.Extract(doc)
		require.NotNil(t, c)
		require.Nil(t, c.Published)
		require.NotNil(t, c.Modified)
		require.Equal(t, time.March, c.Modified.Month())
	})

	t.Run("oversized block skipped", func(t *testing.T) {
		t.Parallel()
		big := make([]byte, 0, 3000)
		for len(big) < 2500 {
			big = append(big, "lorem ipsum "...)
		}
		doc := mustDoc(t, "https://example.com/a",
			`<html><body><article>`+string(big)+` January 15, 2024</article></body></html>`, nil)
		require.Nil(t, ext.Extract(doc))
	})

	t.Run("no dates", func(t *testing.T) {
		t.Parallel()
		doc := mustDoc(t, "https://example.com/a",
			`<html><body><header>Welcome to the site</header></body></html>`, nil)
		require.Nil(t, ext.Extract(doc))
	})
}

func TestURLPathExtractor(t *testing.T) {
	t.Parallel()

	ext := NewURLPathExtractor(&fakeClock{now: testNow})

	cases := []struct {
		name string
		url  string
		want *time.Time
	}{
		{
			name: "full date",
			url:  "https://blog.example.com/2024/01/15/some-post",
			want: timePtr(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)),
		},
		{
			name: "year and month only",
			url:  "https://blog.example.com/2023/11/some-post",
			want: timePtr(time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC)),
		},
		{
			name: "numbers that are not a date",
			url:  "https://example.com/products/1234/56/view",
			want: nil,
		},
		{
			name: "year before floor",
			url:  "https://example.com/1987/06/01/old",
			want: nil,
		},
		{
			name: "month out of range",
			url:  "https://example.com/2024/13/01/post",
			want: nil,
		},
		{
			name: "no path date",
			url:  "https://example.com/about",
			want: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			doc := mustDoc(t, tc.url, `<html><body></body></html>`, nil)
			c := ext.Extract(doc)
			if tc.want == nil {
				require.Nil(t, c)
				return
			}
			require.NotNil(t, c)
			require.Equal(t, freshness.SourceURLPath, c.Source)
			require.Equal(t, *tc.want, c.Published.UTC())
		})
	}
}

func TestHeaderExtractor(t *testing.T) {
	t.Parallel()

	ext := NewHeaderExtractor(newTestParser())

	t.Run("last modified header", func(t *testing.T) {
		t.Parallel()
		h := http.Header{}
		h.Set("Last-Modified", "Mon, 15 Jan 2024 10:30:00 GMT")
		doc := mustDoc(t, "https://example.com/a", `<html></html>`, h)

		c := ext.Extract(doc)
		require.NotNil(t, c)
		require.Equal(t, freshness.SourceHTTPHeader, c.Source)
		require.Nil(t, c.Published)
		require.NotNil(t, c.Modified)
		require.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), c.Modified.UTC())
	})

	t.Run("missing header", func(t *testing.T) {
		t.Parallel()
		doc := mustDoc(t, "https://example.com/a", `<html></html>`, http.Header{})
		require.Nil(t, ext.Extract(doc))
	})

	t.Run("nil header", func(t *testing.T) {
		t.Parallel()
		doc := mustDoc(t, "https://example.com/a", `<html></html>`, nil)
		require.Nil(t, ext.Extract(doc))
	})
}

func timePtr(t time.Time) *time.Time { return &t }

type stubExtractor struct {
	name      string
	candidate *freshness.DateCandidate
	panics    bool
}

func (s *stubExtractor) Name() string { return s.name }

func (s *stubExtractor) Extract(_ *Document) *freshness.DateCandidate {
	if s.panics {
		panic("boom")
	}
	return s.candidate
}

func TestPipelineMerge(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, "https://example.com/a", `<html></html>`, nil)

	t.Run("highest confidence wins", func(t *testing.T) {
		t.Parallel()
		jan := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
		dec := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
		p := NewPipeline([]Extractor{
			&stubExtractor{name: "low", candidate: &freshness.DateCandidate{
				Published: &dec, Confidence: 0.50, Source: freshness.SourceHeuristicText}},
			&stubExtractor{name: "high", candidate: &freshness.DateCandidate{
				Published: &jan, Confidence: 0.95, Source: freshness.SourceStructuredMetadata}},
		}, DefaultPipelineConfig(), zap.NewNop())

		c := p.Run(doc)
		require.NotNil(t, c)
		require.Equal(t, freshness.SourceStructuredMetadata, c.Source)
		require.Equal(t, jan, c.Published.UTC())
	})

	t.Run("corroboration boost within window", func(t *testing.T) {
		t.Parallel()
		a := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
		b := a.Add(6 * time.Hour)
		p := NewPipeline([]Extractor{
			&stubExtractor{name: "meta", candidate: &freshness.DateCandidate{
				Published: &a, Confidence: 0.85, Source: freshness.SourceInlineTimeMarkup}},
			&stubExtractor{name: "heuristic", candidate: &freshness.DateCandidate{
				Published: &b, Confidence: 0.50, Source: freshness.SourceHeuristicText}},
		}, DefaultPipelineConfig(), zap.NewNop())

		c := p.Run(doc)
		require.NotNil(t, c)
		require.InDelta(t, 0.90, c.Confidence, 1e-9)
	})

	t.Run("boost capped at max", func(t *testing.T) {
		t.Parallel()
		a := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
		p := NewPipeline([]Extractor{
			&stubExtractor{name: "a", candidate: &freshness.DateCandidate{
				Published: &a, Confidence: 0.95, Source: freshness.SourceStructuredMetadata}},
			&stubExtractor{name: "b", candidate: &freshness.DateCandidate{
				Published: &a, Confidence: 0.95, Source: freshness.SourceLinkedData}},
			&stubExtractor{name: "c", candidate: &freshness.DateCandidate{
				Published: &a, Confidence: 0.85, Source: freshness.SourceInlineTimeMarkup}},
		}, DefaultPipelineConfig(), zap.NewNop())

		c := p.Run(doc)
		require.NotNil(t, c)
		require.InDelta(t, 1.0, c.Confidence, 1e-9)
	})

	t.Run("no boost outside window", func(t *testing.T) {
		t.Parallel()
		a := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
		far := a.AddDate(0, 0, -30)
		p := NewPipeline([]Extractor{
			&stubExtractor{name: "a", candidate: &freshness.DateCandidate{
				Published: &a, Confidence: 0.95, Source: freshness.SourceStructuredMetadata}},
			&stubExtractor{name: "b", candidate: &freshness.DateCandidate{
				Published: &far, Confidence: 0.50, Source: freshness.SourceHeuristicText}},
		}, DefaultPipelineConfig(), zap.NewNop())

		c := p.Run(doc)
		require.NotNil(t, c)
		require.InDelta(t, 0.95, c.Confidence, 1e-9)
	})

	t.Run("modified backfill from weaker candidate", func(t *testing.T) {
		t.Parallel()
		pub := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
		mod := time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)
		p := NewPipeline([]Extractor{
			&stubExtractor{name: "meta", candidate: &freshness.DateCandidate{
				Published: &pub, Confidence: 0.95, Source: freshness.SourceStructuredMetadata}},
			&stubExtractor{name: "header", candidate: &freshness.DateCandidate{
				Modified: &mod, Confidence: 0.40, Source: freshness.SourceHTTPHeader}},
		}, DefaultPipelineConfig(), zap.NewNop())

		c := p.Run(doc)
		require.NotNil(t, c)
		require.Equal(t, freshness.SourceStructuredMetadata, c.Source)
		require.NotNil(t, c.Modified)
		require.Equal(t, mod, c.Modified.UTC())
	})

	t.Run("panicking extractor is skipped", func(t *testing.T) {
		t.Parallel()
		pub := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
		p := NewPipeline([]Extractor{
			&stubExtractor{name: "bad", panics: true},
			&stubExtractor{name: "good", candidate: &freshness.DateCandidate{
				Published: &pub, Confidence: 0.85, Source: freshness.SourceInlineTimeMarkup}},
		}, DefaultPipelineConfig(), zap.NewNop())

		c := p.Run(doc)
		require.NotNil(t, c)
		require.Equal(t, freshness.SourceInlineTimeMarkup, c.Source)
	})

	t.Run("no candidates", func(t *testing.T) {
		t.Parallel()
		p := NewPipeline([]Extractor{
			&stubExtractor{name: "empty"},
		}, DefaultPipelineConfig(), zap.NewNop())
		require.Nil(t, p.Run(doc))
	})
}

func TestPipelineEndToEnd(t *testing.T) {
	t.Parallel()

	parser := newTestParser()
	p := NewPipeline(DefaultExtractors(parser), DefaultPipelineConfig(), zap.NewNop())

	doc := mustDoc(t, "https://example.com/old-article", `<html><head>
		<script type="application/ld+json">{"@type":"Article","datePublished":"2020-01-01"}</script>
	</head><body><article><p>Some old article body.</p></article></body></html>`, nil)

	c := p.Run(doc)
	require.NotNil(t, c)
	require.Equal(t, freshness.SourceLinkedData, c.Source)
	require.GreaterOrEqual(t, c.Confidence, 0.95)
	require.NotNil(t, c.Published)

	f := freshness.Classify(c.Published, c.Modified, freshness.DefaultThresholds(), testNow)
	require.Equal(t, freshness.TierRed, f.Tier)
}
