// Package cms serves blog posts from an optional remote CMS with a local
// markdown fallback.
package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a post cannot be located.
var ErrNotFound = errors.New("cms: not found")

const (
	defaultContentDir = "content"
	defaultLang       = "en"
	blogKind          = "blog"
	excerptRunes      = 180
)

// Post is a rendered blog article.
type Post struct {
	Slug           string
	Lang           string
	Title          string
	Summary        string
	Author         string
	Tags           []string
	HeroImage      string
	PublishedAt    time.Time
	UpdatedAt      time.Time
	Body           string
	Format         string
	HTML           template.HTML
	Excerpt        string
	ReadingMinutes int
	SEO            SEO
}

// SEO holds optional metadata overrides.
type SEO struct {
	Title       string
	Description string
	OGImage     string
}

type frontMatter struct {
	Title       string   `yaml:"title"`
	Summary     string   `yaml:"summary"`
	Author      string   `yaml:"author"`
	Tags        []string `yaml:"tags"`
	HeroImage   string   `yaml:"hero_image"`
	Lang        string   `yaml:"lang"`
	Format      string   `yaml:"format"`
	PublishedAt string   `yaml:"published_at"`
	UpdatedAt   string   `yaml:"updated_at"`
	Draft       bool     `yaml:"draft"`
	SEO         struct {
		Title       string `yaml:"title"`
		Description string `yaml:"description"`
		OGImage     string `yaml:"og_image"`
	} `yaml:"seo"`
}

// HTTPClient matches the subset of http.Client used by Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	ContentDir string
	HTTP       HTTPClient
	CacheTTL   time.Duration
	Logger     *zap.Logger
}

// Client loads posts. Results are cached per language for CacheTTL.
type Client struct {
	baseURL    string
	contentDir string
	http       HTTPClient
	ttl        time.Duration
	logger     *zap.Logger
	renderer   *Renderer
	now        func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	posts   []Post
	expires time.Time
}

// NewClient constructs a Client.
func NewClient(opts Options) *Client {
	if strings.TrimSpace(opts.ContentDir) == "" {
		opts.ContentDir = defaultContentDir
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{Timeout: 5 * time.Second}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		contentDir: opts.ContentDir,
		http:       opts.HTTP,
		ttl:        opts.CacheTTL,
		logger:     opts.Logger,
		renderer:   NewRenderer(),
		now:        time.Now,
		cache:      make(map[string]cacheEntry),
	}
}

// ListPosts returns published posts for lang, newest first.
func (c *Client) ListPosts(ctx context.Context, lang string) ([]Post, error) {
	lang = normalizeLang(lang)
	if posts, ok := c.cached(lang); ok {
		return posts, nil
	}

	var posts []Post
	if c.baseURL != "" {
		remote, err := c.fetchRemote(ctx, lang)
		if err != nil {
			c.logger.Warn("cms remote unavailable; using local posts", zap.String("lang", lang), zap.Error(err))
		} else {
			posts = remote
		}
	}
	if posts == nil {
		local, err := c.readLocal(lang)
		if err != nil {
			return nil, err
		}
		posts = local
	}

	now := c.now()
	published := posts[:0]
	for _, p := range posts {
		if p.PublishedAt.IsZero() || !p.PublishedAt.After(now) {
			published = append(published, p)
		}
	}
	sort.SliceStable(published, func(i, j int) bool {
		return published[i].PublishedAt.After(published[j].PublishedAt)
	})
	c.store(lang, published)
	return clonePosts(published), nil
}

// GetPost returns one post by slug.
func (c *Client) GetPost(ctx context.Context, slug, lang string) (Post, error) {
	slug = sanitizeSlug(slug)
	if slug == "" {
		return Post{}, ErrNotFound
	}
	posts, err := c.ListPosts(ctx, lang)
	if err != nil {
		return Post{}, err
	}
	for _, p := range posts {
		if p.Slug == slug {
			return p, nil
		}
	}
	return Post{}, ErrNotFound
}

func (c *Client) fetchRemote(ctx context.Context, lang string) ([]Post, error) {
	endpoint, err := url.JoinPath(c.baseURL, "content", "posts")
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+url.Values{"lang": {lang}}.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("cms: remote status %d", resp.StatusCode)
	}

	var payload struct {
		Items []struct {
			Slug        string    `json:"slug"`
			Lang        string    `json:"lang"`
			Title       string    `json:"title"`
			Summary     string    `json:"summary"`
			Author      string    `json:"author"`
			Tags        []string  `json:"tags"`
			HeroImage   string    `json:"hero_image"`
			Body        string    `json:"body"`
			Format      string    `json:"format"`
			PublishedAt time.Time `json:"published_at"`
			UpdatedAt   time.Time `json:"updated_at"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("cms: decode posts: %w", err)
	}
	posts := make([]Post, 0, len(payload.Items))
	for _, item := range payload.Items {
		slug := sanitizeSlug(item.Slug)
		if slug == "" || strings.TrimSpace(item.Body) == "" {
			continue
		}
		p := Post{
			Slug:        slug,
			Lang:        firstNonEmpty(item.Lang, lang),
			Title:       firstNonEmpty(item.Title, prettifySlug(slug)),
			Summary:     item.Summary,
			Author:      item.Author,
			Tags:        item.Tags,
			HeroImage:   item.HeroImage,
			Body:        item.Body,
			Format:      firstNonEmpty(item.Format, "markdown"),
			PublishedAt: item.PublishedAt,
			UpdatedAt:   item.UpdatedAt,
		}
		if err := c.finish(&p); err != nil {
			c.logger.Warn("skipping remote post", zap.String("slug", slug), zap.Error(err))
			continue
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// readLocal reads content/blog/<lang>/*.md, falling back to English.
func (c *Client) readLocal(lang string) ([]Post, error) {
	candidates := []string{lang}
	if lang != defaultLang {
		candidates = append(candidates, defaultLang)
	}
	for _, candidate := range candidates {
		dir := filepath.Join(c.contentDir, blogKind, candidate)
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("cms: read %s: %w", dir, err)
		}
		posts := make([]Post, 0, len(entries))
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".md" {
				continue
			}
			p, ok, err := c.readMarkdown(filepath.Join(dir, entry.Name()), candidate)
			if err != nil {
				return nil, err
			}
			if ok {
				posts = append(posts, p)
			}
		}
		if len(posts) > 0 {
			return posts, nil
		}
	}
	return []Post{}, nil
}

func (c *Client) readMarkdown(file, lang string) (Post, bool, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return Post{}, false, fmt.Errorf("cms: read %s: %w", file, err)
	}
	fm, body := splitFrontMatter(string(data))
	front := frontMatter{}
	if strings.TrimSpace(fm) != "" {
		if err := yaml.Unmarshal([]byte(fm), &front); err != nil {
			return Post{}, false, fmt.Errorf("cms: parse front matter %s: %w", file, err)
		}
	}
	if front.Draft {
		return Post{}, false, nil
	}
	slug := sanitizeSlug(strings.TrimSuffix(filepath.Base(file), ".md"))
	p := Post{
		Slug:        slug,
		Lang:        firstNonEmpty(strings.TrimSpace(front.Lang), lang),
		Title:       firstNonEmpty(strings.TrimSpace(front.Title), prettifySlug(slug)),
		Summary:     strings.TrimSpace(front.Summary),
		Author:      strings.TrimSpace(front.Author),
		Tags:        front.Tags,
		HeroImage:   strings.TrimSpace(front.HeroImage),
		Body:        body,
		Format:      firstNonEmpty(strings.TrimSpace(front.Format), "markdown"),
		PublishedAt: parseContentDate(front.PublishedAt),
		UpdatedAt:   parseContentDate(front.UpdatedAt),
		SEO: SEO{
			Title:       strings.TrimSpace(front.SEO.Title),
			Description: strings.TrimSpace(front.SEO.Description),
			OGImage:     strings.TrimSpace(front.SEO.OGImage),
		},
	}
	if p.UpdatedAt.IsZero() {
		if info, err := os.Stat(file); err == nil {
			p.UpdatedAt = info.ModTime()
		}
	}
	if err := c.finish(&p); err != nil {
		return Post{}, false, fmt.Errorf("cms: render %s: %w", file, err)
	}
	return p, true, nil
}

func (c *Client) finish(p *Post) error {
	rendered, err := c.renderer.Render(p.Body, p.Format)
	if err != nil {
		return err
	}
	p.HTML = rendered
	text := PlainText(string(rendered))
	p.ReadingMinutes = ReadingMinutes(text)
	p.Excerpt = p.Summary
	if p.Excerpt == "" {
		p.Excerpt = Excerpt(text, excerptRunes)
	}
	if p.PublishedAt.IsZero() {
		p.PublishedAt = p.UpdatedAt
	}
	return nil
}

func (c *Client) cached(lang string) ([]Post, bool) {
	c.mu.RLock()
	entry, ok := c.cache[lang]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expires) {
		return nil, false
	}
	return clonePosts(entry.posts), true
}

func (c *Client) store(lang string, posts []Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[lang] = cacheEntry{posts: clonePosts(posts), expires: c.now().Add(c.ttl)}
}

func clonePosts(src []Post) []Post {
	out := make([]Post, len(src))
	for i, p := range src {
		p.Tags = append([]string(nil), p.Tags...)
		out[i] = p
	}
	return out
}

func splitFrontMatter(input string) (string, string) {
	input = strings.TrimLeft(input, "\ufeff")
	lines := strings.Split(input, "\n")
	if strings.TrimSpace(lines[0]) != "---" {
		return "", input
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], "\n"), strings.TrimLeft(strings.Join(lines[i+1:], "\n"), "\n\r")
		}
	}
	return "", input
}

func parseContentDate(v string) time.Time {
	v = strings.TrimSpace(v)
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006/01/02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func prettifySlug(slug string) string {
	parts := strings.Split(strings.TrimSpace(slug), "-")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, " ")
}

func sanitizeSlug(slug string) string {
	slug = strings.Trim(strings.TrimSpace(strings.ToLower(slug)), "/")
	if slug == "" || strings.Contains(slug, "..") || strings.ContainsAny(slug, `/\`) {
		return ""
	}
	return slug
}

func normalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if lang == "" {
		return defaultLang
	}
	return lang
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
