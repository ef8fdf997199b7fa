package cms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writePost(t *testing.T, dir, lang, name, content string) {
	t.Helper()
	path := filepath.Join(dir, "blog", lang)
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, name), []byte(content), 0o644))
}

func TestListPostsFromLocalMarkdown(t *testing.T) {
	dir := t.TempDir()
	writePost(t, dir, "en", "eu-vs-national.md", `---
title: EU or national filing?
published_at: 2026-03-01
tags: [eu, strategy]
---
## Coverage

One **EU trade mark** covers all member states. <script>alert(1)</script>
`)
	writePost(t, dir, "en", "madrid-system.md", `---
published_at: 2026-04-01
summary: Filing in many countries at once.
---
The Madrid system bundles filings.
`)
	writePost(t, dir, "en", "draft.md", "---\ndraft: true\n---\nSecret.\n")
	writePost(t, dir, "en", "future.md", "---\npublished_at: 2099-01-01\n---\nLater.\n")

	c := NewClient(Options{ContentDir: dir})
	posts, err := c.ListPosts(context.Background(), "de-DE")
	require.NoError(t, err)
	require.Len(t, posts, 2)

	require.Equal(t, "madrid-system", posts[0].Slug)
	require.Equal(t, "Madrid System", posts[0].Title)
	require.Equal(t, "Filing in many countries at once.", posts[0].Excerpt)

	eu := posts[1]
	require.Equal(t, "EU or national filing?", eu.Title)
	require.Equal(t, []string{"eu", "strategy"}, eu.Tags)
	require.Contains(t, string(eu.HTML), `<h2 id="coverage">Coverage</h2>`)
	require.Contains(t, string(eu.HTML), "<strong>EU trade mark</strong>")
	require.NotContains(t, string(eu.HTML), "<script>")
	require.Equal(t, 1, eu.ReadingMinutes)
	require.True(t, strings.HasPrefix(eu.Excerpt, "Coverage One EU trade mark"))

	got, err := c.GetPost(context.Background(), "EU-vs-National", "en")
	require.NoError(t, err)
	require.Equal(t, eu.Title, got.Title)

	_, err = c.GetPost(context.Background(), "../etc/passwd", "en")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = c.GetPost(context.Background(), "draft", "en")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListPostsPrefersRemoteAndFallsBack(t *testing.T) {
	dir := t.TempDir()
	writePost(t, dir, "en", "local.md", "---\npublished_at: 2026-02-01\n---\nLocal post body.\n")

	var healthy atomic.Bool
	healthy.Store(true)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/content/posts", r.URL.Path)
		require.Equal(t, "en", r.URL.Query().Get("lang"))
		if !healthy.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"slug":"remote","title":"Remote","body":"From the CMS.","published_at":"2026-01-01T00:00:00Z"}]}`))
	}))
	t.Cleanup(ts.Close)

	c := NewClient(Options{BaseURL: ts.URL, ContentDir: dir, HTTP: ts.Client(), CacheTTL: time.Minute})
	clock := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	posts, err := c.ListPosts(context.Background(), "en")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, "remote", posts[0].Slug)

	healthy.Store(false)
	posts, err = c.ListPosts(context.Background(), "en")
	require.NoError(t, err)
	require.Equal(t, "remote", posts[0].Slug, "served from cache")

	clock = clock.Add(2 * time.Minute)
	posts, err = c.ListPosts(context.Background(), "en")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, "local", posts[0].Slug)
}

func TestPlainTextAndExcerpt(t *testing.T) {
	text := PlainText(`<h2>Title</h2><p>First&nbsp;para.</p><style>p{}</style><p>Second</p>`)
	require.Equal(t, "Title First para. Second", text)

	require.Equal(t, "one two…", Excerpt("one two three", 9))
	require.Equal(t, "short", Excerpt("short", 10))
	require.Equal(t, 2, ReadingMinutes(strings.Repeat("word ", 221)))
	require.Equal(t, 1, ReadingMinutes(""))
}

func TestSplitFrontMatter(t *testing.T) {
	fm, body := splitFrontMatter("\ufeff---\ntitle: x\n---\n\nbody\n")
	require.Equal(t, "title: x", fm)
	require.Equal(t, "body\n", body)

	fm, body = splitFrontMatter("no front matter")
	require.Empty(t, fm)
	require.Equal(t, "no front matter", body)
}
