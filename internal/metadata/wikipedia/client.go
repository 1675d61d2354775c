package wikipedia

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"golang.org/x/time/rate"

	"softdex/internal/detect"
	"softdex/internal/logging"
	"softdex/internal/metadata"
	"softdex/internal/software"
	"softdex/internal/textutil"
)

// Name identifies this provider in logs and stored attributes.
const Name = "wikipedia"

const (
	maxBodyBytes = 1 << 20
	// minTitleSimilarity is the lowest score at which a returned page title is
	// accepted as describing the requested software.
	minTitleSimilarity = 0.6
)

// ErrUserAgentPolicy is returned when Wikimedia rejects the configured
// User-Agent. Every further request would be rejected too.
var ErrUserAgentPolicy = errors.New("wikipedia rejected the user agent")

// Client reads page summaries from the Wikipedia REST API.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

var _ metadata.Provider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "wikipedia")
	}
}

// New creates a summary client limited to requestsPerSecond. A non-positive
// rate disables limiting.
func New(baseURL, userAgent string, timeout time.Duration, requestsPerSecond float64, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("wikipedia base url required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = int(math.Max(1, math.Ceil(requestsPerSecond)))
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  buildUserAgent(userAgent),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// buildUserAgent appends the HTTP library token Wikimedia's robot policy asks
// for, e.g. "softdex/1.0 (+https://...) Go-HTTP-Client/go1.26".
func buildUserAgent(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "softdex/unknown"
	}
	return fmt.Sprintf("%s Go-HTTP-Client/%s", base, runtime.Version())
}

// Name returns the provider name.
func (c *Client) Name() string { return Name }

// Supports accepts any titled request.
func (c *Client) Supports(req metadata.Request) bool {
	return strings.TrimSpace(req.Name) != ""
}

// Fetch resolves the title to a page summary. The plain title is tried first;
// when it lands on a disambiguation page or a different topic, a qualified
// title such as "Portal (video game)" is tried next.
func (c *Client) Fetch(ctx context.Context, req metadata.Request) (software.Attributes, bool, error) {
	if !c.Supports(req) {
		return software.Attributes{}, false, nil
	}
	for _, title := range candidateTitles(req) {
		page, err := c.summary(ctx, title)
		if err != nil {
			return software.Attributes{}, false, err
		}
		if page == nil {
			continue
		}
		if kind, _ := page.GetString("type"); kind == "disambiguation" {
			c.logger.Debug("disambiguation page", logging.String("title", title))
			continue
		}
		pageTitle, _ := page.GetString("title")
		score := textutil.TitleSimilarity(stripQualifier(pageTitle), req.Name)
		if score < minTitleSimilarity {
			c.logger.Debug("summary title mismatch",
				logging.String("requested", req.Name),
				logging.String("returned", pageTitle),
				logging.Any("score", score),
			)
			continue
		}
		return summaryAttributes(page), true, nil
	}
	return software.Attributes{}, false, nil
}

// summary returns the page object, or nil when the page does not exist.
func (c *Client) summary(ctx context.Context, title string) (*jason.Object, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}
	endpoint := c.baseURL + "/page/summary/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	requestStart := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read wikipedia response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusForbidden && strings.Contains(strings.ToLower(string(body)), "user-agent"):
		return nil, fmt.Errorf("%w: %s", ErrUserAgentPolicy, c.userAgent)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("wikipedia summary returned %d (latency=%v)", resp.StatusCode, latency)
	}

	page, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("decode wikipedia response: %w", err)
	}
	c.logger.Debug("wikipedia summary",
		logging.String("title", title),
		logging.Duration("latency", latency),
	)
	return page, nil
}

func candidateTitles(req metadata.Request) []string {
	name := strings.TrimSpace(req.Name)
	qualifier := "software"
	if isGameSource(req.Source) {
		qualifier = "video game"
	}
	return []string{name, fmt.Sprintf("%s (%s)", name, qualifier)}
}

func isGameSource(source string) bool {
	for _, s := range []string{detect.SourceSteam, detect.SourceEpic, detect.SourceGOG} {
		if strings.EqualFold(source, s) {
			return true
		}
	}
	return false
}

// stripQualifier drops a trailing parenthetical such as " (video game)".
func stripQualifier(title string) string {
	title = strings.TrimSpace(title)
	if strings.HasSuffix(title, ")") {
		if idx := strings.LastIndex(title, " ("); idx > 0 {
			return title[:idx]
		}
	}
	return title
}

func summaryAttributes(page *jason.Object) software.Attributes {
	attrs := software.Attributes{Provider: Name}
	attrs.Description, _ = page.GetString("extract")
	attrs.Description = strings.TrimSpace(attrs.Description)
	if image, err := page.GetString("originalimage", "source"); err == nil {
		attrs.CoverImageURL = image
	} else if thumb, err := page.GetString("thumbnail", "source"); err == nil {
		attrs.CoverImageURL = thumb
	}
	desc, _ := page.GetString("description")
	attrs.Category = categoryForDescription(desc)
	if raw, err := page.Marshal(); err == nil {
		attrs.MetadataJSON = string(raw)
	}
	return attrs
}

// categoryForDescription maps the short Wikidata description ("2007 video
// game", "web browser") to a category.
func categoryForDescription(desc string) software.Category {
	desc = strings.ToLower(desc)
	switch {
	case desc == "":
		return software.CategoryUnknown
	case strings.Contains(desc, "video game"):
		return software.CategoryGame
	case strings.Contains(desc, "programming"), strings.Contains(desc, "integrated development"),
		strings.Contains(desc, "source-code editor"), strings.Contains(desc, "compiler"):
		return software.CategoryDevelopment
	case strings.Contains(desc, "media player"), strings.Contains(desc, "audio"), strings.Contains(desc, "video editing"):
		return software.CategoryMedia
	case strings.Contains(desc, "operating system"), strings.Contains(desc, "device driver"):
		return software.CategorySystem
	case strings.Contains(desc, "utility"), strings.Contains(desc, "file archiver"):
		return software.CategoryUtility
	case strings.Contains(desc, "software"), strings.Contains(desc, "web browser"), strings.Contains(desc, "application"):
		return software.CategoryApplication
	default:
		return software.CategoryUnknown
	}
}
