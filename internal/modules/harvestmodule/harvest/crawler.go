package harvest

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mantonx/harvester/internal/logger"
)

// Crawler discovers target files behind an HTTP(S) directory listing. Server
// software renders listings differently, so parsing tries a sequence of
// strategies and the first one that yields links wins.
type Crawler struct {
	client *http.Client
}

// NewCrawler creates a crawler with the given HTTP client; a nil client gets
// a 30s-timeout default.
func NewCrawler(client *http.Client) *Crawler {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Crawler{client: client}
}

var yearPattern = regexp.MustCompile(`^(19|20)\d{2}$`)

var monthNames = map[string]bool{
	"january": true, "february": true, "march": true, "april": true,
	"may": true, "june": true, "july": true, "august": true,
	"september": true, "october": true, "november": true, "december": true,
	"jan": true, "feb": true, "mar": true, "apr": true, "jun": true,
	"jul": true, "aug": true, "sep": true, "oct": true, "nov": true, "dec": true,
	"01": true, "02": true, "03": true, "04": true, "05": true, "06": true,
	"07": true, "08": true, "09": true, "10": true, "11": true, "12": true,
}

type crawlState struct {
	root       *url.URL
	rootPath   string
	match      map[string]bool
	maxDepth   int
	fileCap    int
	visited    map[string]bool
	sources    []Source
	capReached bool
}

// Crawl walks the listing tree under root and returns discovered files in
// traversal order. Individual page failures are logged and treated as empty
// branches; only an unreachable root fails the crawl.
func (c *Crawler) Crawl(root string, extensions []string, maxDepth, fileCap int) ([]Source, error) {
	rootURL, err := url.Parse(root)
	if err != nil {
		return nil, fmt.Errorf("invalid root URL: %w", err)
	}
	if rootURL.Scheme != "http" && rootURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", rootURL.Scheme)
	}
	if !strings.HasSuffix(rootURL.Path, "/") {
		rootURL.Path += "/"
	}

	state := &crawlState{
		root:     rootURL,
		rootPath: rootURL.Path,
		match:    extensionSet(extensions),
		maxDepth: maxDepth,
		fileCap:  fileCap,
		visited:  make(map[string]bool),
	}

	if err := c.crawlDir(rootURL, 0, state, true); err != nil {
		return nil, err
	}

	return state.sources, nil
}

// crawlDir fetches one listing page and either collects its files or descends
// into its subdirectories. Once a directory yields target files its
// subdirectories are not descended; parallel trees of derivatives do not get
// crawled for nothing.
func (c *Crawler) crawlDir(dir *url.URL, depth int, state *crawlState, isRoot bool) error {
	if state.capReached || depth > state.maxDepth {
		return nil
	}

	key := dir.Scheme + "://" + dir.Host + dir.Path
	if state.visited[key] {
		return nil
	}
	state.visited[key] = true

	doc, err := c.fetchListing(dir)
	if err != nil {
		if isRoot {
			return fmt.Errorf("root unreachable: %w", err)
		}
		logger.Warn("Skipping unreadable listing %s: %v", dir.String(), err)
		return nil
	}

	files, subdirs := c.classifyLinks(dir, doc, state)

	if len(files) > 0 {
		for _, f := range files {
			if state.fileCap > 0 && len(state.sources) >= state.fileCap {
				if !state.capReached {
					state.capReached = true
					logger.Warn("File cap of %d reached, halting crawl", state.fileCap)
				}
				return nil
			}
			state.sources = append(state.sources, Source{Locator: f.String(), Kind: SourceRemote})
		}
		return nil
	}

	sort.SliceStable(subdirs, func(i, j int) bool {
		return dirPriority(subdirs[i]) < dirPriority(subdirs[j])
	})

	for _, sub := range subdirs {
		if state.capReached {
			return nil
		}
		if err := c.crawlDir(sub, depth+1, state, false); err != nil {
			return err
		}
	}

	return nil
}

func (c *Crawler) fetchListing(dir *url.URL) (*goquery.Document, error) {
	resp, err := c.client.Get(dir.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return goquery.NewDocumentFromReader(resp.Body)
}

// classifyLinks extracts candidate hrefs with the strategy sequence, resolves
// them against the page URL, enforces containment, and splits them into files
// and subdirectories.
func (c *Crawler) classifyLinks(page *url.URL, doc *goquery.Document, state *crawlState) (files, subdirs []*url.URL) {
	hrefs := extractListingHrefs(doc)

	for _, href := range hrefs {
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}

		resolved := page.ResolveReference(ref)
		resolved.RawQuery = ""
		resolved.Fragment = ""

		if !state.contained(resolved) {
			logger.Debug("Discarding link outside root: %s", resolved.String())
			continue
		}

		if strings.HasSuffix(resolved.Path, "/") {
			// Self-links resolve to the page itself; the visited set catches
			// them, no need to special-case here.
			subdirs = append(subdirs, resolved)
		} else if matchesExtension(pathBase(resolved.Path), state.match) {
			files = append(files, resolved)
		}
	}

	return files, subdirs
}

// contained enforces the containment invariant: same origin as the root and
// a path under the root's path prefix.
func (s *crawlState) contained(u *url.URL) bool {
	if u.Scheme != s.root.Scheme || u.Host != s.root.Host {
		return false
	}
	return strings.HasPrefix(u.Path, s.rootPath)
}

// extractListingHrefs tries the parsing strategies in order: Apache-style
// table indexes, nginx/IIS preformatted listings, then a generic anchor scan.
// The first strategy producing any usable link wins.
func extractListingHrefs(doc *goquery.Document) []string {
	strategies := []func(*goquery.Document) []string{
		parseTableListing,
		parsePreListing,
		parseAnchorListing,
	}

	for _, strategy := range strategies {
		if hrefs := strategy(doc); len(hrefs) > 0 {
			return hrefs
		}
	}
	return nil
}

func parseTableListing(doc *goquery.Document) []string {
	return collectHrefs(doc.Find("table tr td a"))
}

func parsePreListing(doc *goquery.Document) []string {
	return collectHrefs(doc.Find("pre a"))
}

func parseAnchorListing(doc *goquery.Document) []string {
	return collectHrefs(doc.Find("a"))
}

func collectHrefs(sel *goquery.Selection) []string {
	var hrefs []string
	sel.Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		if !usableHref(href) {
			return
		}
		hrefs = append(hrefs, href)
	})
	return hrefs
}

// usableHref drops parent links, anchors, and the sort-order query links
// Apache puts in fancy-index headers.
func usableHref(href string) bool {
	href = strings.TrimSpace(href)
	if href == "" || href == "/" || href == "../" || href == ".." {
		return false
	}
	if strings.HasPrefix(href, "#") || strings.HasPrefix(href, "?") {
		return false
	}
	if strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
		return false
	}
	return true
}

// dirPriority orders subdirectory descent: explicit "processed" directories
// first, then year-named, then month-named, then everything else.
func dirPriority(u *url.URL) int {
	name := strings.ToLower(strings.Trim(pathBase(strings.TrimSuffix(u.Path, "/")), "/"))
	switch {
	case strings.Contains(name, "processed"):
		return 0
	case yearPattern.MatchString(name):
		return 1
	case monthNames[name]:
		return 2
	default:
		return 3
	}
}

func pathBase(p string) string {
	p = strings.TrimSuffix(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
