package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/time/rate"
)

const (
	telegraphAPI     = "https://api.telegra.ph"
	telegraphRetries = 3
)

var floodWaitRe = regexp.MustCompile(`FLOOD_WAIT_(\d+)`)

// Telegraph publishes markdown as Telegraph pages. It enforces a one
// request per second floor and honors FLOOD_WAIT_N errors.
type Telegraph struct {
	token   string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	log     *slog.Logger

	// sleep is swappable for tests.
	sleep func(context.Context, time.Duration) error
}

// NewTelegraph builds the publisher. An empty token disables publishing;
// Publish then returns the raw markdown unchanged.
func NewTelegraph(token string) *Telegraph {
	return &Telegraph{
		token:   token,
		baseURL: telegraphAPI,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(1), 1),
		log:     slog.Default().With("component", "telegraph"),
		sleep:   sleepCtx,
	}
}

// Publish creates a Telegraph page and returns its URL. On persistent
// failure the caller decides the fallback; the formatter keeps long text
// inline when no page could be created.
func (t *Telegraph) Publish(title, markdown string) (string, error) {
	if t.token == "" {
		return "", fmt.Errorf("telegraph token not configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	nodes, err := markdownToNodes(markdown)
	if err != nil {
		return "", fmt.Errorf("render telegraph nodes: %w", err)
	}
	content, err := json.Marshal(nodes)
	if err != nil {
		return "", fmt.Errorf("marshal telegraph nodes: %w", err)
	}

	form := url.Values{
		"access_token": {t.token},
		"title":        {truncate(title, 256)},
		"content":      {string(content)},
	}

	var lastErr error
	for attempt := 0; attempt < telegraphRetries; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return "", err
		}
		pageURL, err := t.createPage(ctx, form)
		if err == nil {
			return pageURL, nil
		}
		lastErr = err

		if m := floodWaitRe.FindStringSubmatch(err.Error()); m != nil {
			n, _ := strconv.Atoi(m[1])
			wait := time.Duration(n+1) * time.Second
			t.log.Warn("telegraph flood wait", "seconds", n, "attempt", attempt+1)
			if serr := t.sleep(ctx, wait); serr != nil {
				return "", serr
			}
			continue
		}
		break
	}
	return "", fmt.Errorf("telegraph publish failed: %w", lastErr)
}

func (t *Telegraph) createPage(ctx context.Context, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/createPage", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed struct {
		OK     bool   `json:"ok"`
		Error  string `json:"error"`
		Result struct {
			URL string `json:"url"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if !parsed.OK {
		return "", fmt.Errorf("api error: %s", parsed.Error)
	}
	return parsed.Result.URL, nil
}

// CreateAccount obtains a fresh access token for the given short name.
func CreateAccount(ctx context.Context, shortName string) (string, error) {
	form := url.Values{"short_name": {shortName}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		telegraphAPI+"/createAccount", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := (&http.Client{Timeout: 30 * time.Second}).Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed struct {
		OK     bool   `json:"ok"`
		Error  string `json:"error"`
		Result struct {
			AccessToken string `json:"access_token"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if !parsed.OK {
		return "", fmt.Errorf("telegraph createAccount: %s", parsed.Error)
	}
	return parsed.Result.AccessToken, nil
}

// node is one Telegraph content node: a bare string or a tagged element.
type node any

type element struct {
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []node            `json:"children,omitempty"`
}

// markdownToNodes parses markdown and converts the AST into the Telegraph
// node format. Telegraph supports a limited tag set; headings collapse to
// h3/h4 and anything unsupported degrades to its text content.
func markdownToNodes(markdown string) ([]node, error) {
	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var out []node
	for child := doc.FirstChild(); child != nil; child = child.NextSibling() {
		if n := convertNode(child, source); n != nil {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		out = append(out, element{Tag: "p", Children: []node{markdown}})
	}
	return out, nil
}

func convertNode(n ast.Node, source []byte) node {
	switch v := n.(type) {
	case *ast.Heading:
		tag := "h3"
		if v.Level >= 3 {
			tag = "h4"
		}
		return element{Tag: tag, Children: convertChildren(n, source)}
	case *ast.Paragraph, *ast.TextBlock:
		return element{Tag: "p", Children: convertChildren(n, source)}
	case *ast.Blockquote:
		return element{Tag: "blockquote", Children: convertChildren(n, source)}
	case *ast.ThematicBreak:
		return element{Tag: "hr"}
	case *ast.List:
		tag := "ul"
		if v.IsOrdered() {
			tag = "ol"
		}
		return element{Tag: tag, Children: convertChildren(n, source)}
	case *ast.ListItem:
		return element{Tag: "li", Children: convertChildren(n, source)}
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		return element{Tag: "pre", Children: []node{blockText(n, source)}}
	case *ast.Emphasis:
		tag := "em"
		if v.Level == 2 {
			tag = "strong"
		}
		return element{Tag: tag, Children: convertChildren(n, source)}
	case *ast.Link:
		return element{
			Tag:      "a",
			Attrs:    map[string]string{"href": string(v.Destination)},
			Children: convertChildren(n, source),
		}
	case *ast.AutoLink:
		u := string(v.URL(source))
		return element{Tag: "a", Attrs: map[string]string{"href": u}, Children: []node{u}}
	case *ast.CodeSpan:
		return element{Tag: "code", Children: convertChildren(n, source)}
	case *ast.Text:
		txt := string(v.Segment.Value(source))
		if v.SoftLineBreak() || v.HardLineBreak() {
			txt += "\n"
		}
		return txt
	case *ast.String:
		return string(v.Value)
	default:
		children := convertChildren(n, source)
		if len(children) == 0 {
			return nil
		}
		return element{Tag: "p", Children: children}
	}
}

func convertChildren(n ast.Node, source []byte) []node {
	var out []node
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if c := convertNode(child, source); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func blockText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
