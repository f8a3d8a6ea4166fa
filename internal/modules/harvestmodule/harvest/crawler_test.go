package harvest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apacheListing = `<html><head><title>Index of /archive/</title></head><body>
<h1>Index of /archive/</h1>
<table>
<tr><th><a href="?C=N;O=D">Name</a></th><th><a href="?C=M;O=A">Last modified</a></th></tr>
<tr><td><a href="../">Parent Directory</a></td><td></td></tr>
<tr><td><a href="photo1.jpg">photo1.jpg</a></td><td>2024-01-05 10:00</td></tr>
<tr><td><a href="photo2.JPG">photo2.JPG</a></td><td>2024-01-06 11:30</td></tr>
<tr><td><a href="notes.txt">notes.txt</a></td><td>2024-01-06 11:31</td></tr>
</table>
</body></html>`

const nginxListing = `<html><head><title>Index of /archive/</title></head><body>
<h1>Index of /archive/</h1><hr><pre><a href="../">../</a>
<a href="2023/">2023/</a>   05-Jan-2024 10:00   -
<a href="misc/">misc/</a>   05-Jan-2024 10:00   -
</pre><hr></body></html>`

func serveListings(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCrawlApacheTableListing(t *testing.T) {
	srv := serveListings(t, map[string]string{
		"/archive/": apacheListing,
	})

	crawler := NewCrawler(srv.Client())
	sources, err := crawler.Crawl(srv.URL+"/archive/", []string{"jpg"}, 8, 0)
	require.NoError(t, err)

	require.Len(t, sources, 2)
	assert.Equal(t, srv.URL+"/archive/photo1.jpg", sources[0].Locator)
	assert.Equal(t, srv.URL+"/archive/photo2.JPG", sources[1].Locator)
	for _, s := range sources {
		assert.Equal(t, SourceRemote, s.Kind)
	}
}

func TestCrawlIISAnchorListing(t *testing.T) {
	// IIS renders bare anchors with absolute paths, no table or pre wrapper.
	srv := serveListings(t, map[string]string{
		"/images/": `<html><head><title>host - /images/</title></head><body>
<H1>host - /images/</H1><hr>
<A HREF="/">[To Parent Directory]</A><br>
<A HREF="/images/raw/">raw/</A><br>
<A HREF="/images/scan1.jpg">scan1.jpg</A><br>
<A HREF="/images/scan2.jpg">scan2.jpg</A><br>
<hr></body></html>`,
	})

	crawler := NewCrawler(srv.Client())
	sources, err := crawler.Crawl(srv.URL+"/images/", []string{"jpg"}, 8, 0)
	require.NoError(t, err)

	require.Len(t, sources, 2)
	assert.Equal(t, srv.URL+"/images/scan1.jpg", sources[0].Locator)
	assert.Equal(t, srv.URL+"/images/scan2.jpg", sources[1].Locator)
}

func TestCrawlDescendsNginxListing(t *testing.T) {
	srv := serveListings(t, map[string]string{
		"/archive/":      nginxListing,
		"/archive/2023/": `<pre><a href="../">../</a><a href="a.tif">a.tif</a></pre>`,
		"/archive/misc/": `<pre><a href="../">../</a><a href="b.tif">b.tif</a></pre>`,
	})

	crawler := NewCrawler(srv.Client())
	sources, err := crawler.Crawl(srv.URL+"/archive/", []string{"tif"}, 8, 0)
	require.NoError(t, err)

	require.Len(t, sources, 2)
	// Year directories are visited before other names.
	assert.Equal(t, srv.URL+"/archive/2023/a.tif", sources[0].Locator)
	assert.Equal(t, srv.URL+"/archive/misc/b.tif", sources[1].Locator)
}

func TestCrawlStopsDescendingOnceFilesFound(t *testing.T) {
	visited := make(map[string]int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		visited[r.URL.Path]++
		switch r.URL.Path {
		case "/root/":
			fmt.Fprint(w, `<pre><a href="img.jpg">img.jpg</a><a href="derivatives/">derivatives/</a></pre>`)
		case "/root/derivatives/":
			fmt.Fprint(w, `<pre><a href="thumb.jpg">thumb.jpg</a></pre>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	crawler := NewCrawler(srv.Client())
	sources, err := crawler.Crawl(srv.URL+"/root/", []string{"jpg"}, 8, 0)
	require.NoError(t, err)

	require.Len(t, sources, 1)
	assert.Equal(t, srv.URL+"/root/img.jpg", sources[0].Locator)
	assert.Zero(t, visited["/root/derivatives/"])
}

func TestCrawlContainment(t *testing.T) {
	srv := serveListings(t, map[string]string{
		"/inside/": `<pre>
<a href="/outside/escape.jpg">escape.jpg</a>
<a href="http://evil.example.com/x.jpg">x.jpg</a>
<a href="ok.jpg">ok.jpg</a>
<a href="../inside2/other.jpg">other.jpg</a>
</pre>`,
	})

	crawler := NewCrawler(srv.Client())
	sources, err := crawler.Crawl(srv.URL+"/inside/", []string{"jpg"}, 8, 0)
	require.NoError(t, err)

	require.Len(t, sources, 1)
	assert.True(t, strings.HasPrefix(sources[0].Locator, srv.URL+"/inside/"))
}

func TestCrawlSelfReferentialListingTerminates(t *testing.T) {
	srv := serveListings(t, map[string]string{
		"/loop/":      `<pre><a href="./">./</a><a href="self/">self/</a></pre>`,
		"/loop/self/": `<pre><a href="../">../</a><a href="./">./</a></pre>`,
	})

	crawler := NewCrawler(srv.Client())
	sources, err := crawler.Crawl(srv.URL+"/loop/", []string{"jpg"}, 8, 0)
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestCrawlDirectoryPriorityOrder(t *testing.T) {
	srv := serveListings(t, map[string]string{
		"/r/": `<pre>
<a href="zfinal/">zfinal/</a>
<a href="2024/">2024/</a>
<a href="processed/">processed/</a>
<a href="march/">march/</a>
</pre>`,
		"/r/processed/": `<pre><a href="p.jpg">p.jpg</a></pre>`,
		"/r/2024/":      `<pre><a href="y.jpg">y.jpg</a></pre>`,
		"/r/march/":     `<pre><a href="m.jpg">m.jpg</a></pre>`,
		"/r/zfinal/":    `<pre><a href="z.jpg">z.jpg</a></pre>`,
	})

	crawler := NewCrawler(srv.Client())
	sources, err := crawler.Crawl(srv.URL+"/r/", []string{"jpg"}, 8, 0)
	require.NoError(t, err)

	require.Len(t, sources, 4)
	assert.Contains(t, sources[0].Locator, "/processed/")
	assert.Contains(t, sources[1].Locator, "/2024/")
	assert.Contains(t, sources[2].Locator, "/march/")
	assert.Contains(t, sources[3].Locator, "/zfinal/")
}

func TestCrawlFileCap(t *testing.T) {
	var links strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&links, `<a href="f%d.jpg">f%d.jpg</a>`, i, i)
	}
	srv := serveListings(t, map[string]string{
		"/cap/": "<pre>" + links.String() + "</pre>",
	})

	crawler := NewCrawler(srv.Client())
	sources, err := crawler.Crawl(srv.URL+"/cap/", []string{"jpg"}, 8, 3)
	require.NoError(t, err)
	assert.Len(t, sources, 3)
}

func TestCrawlDepthBound(t *testing.T) {
	srv := serveListings(t, map[string]string{
		"/d/":       `<pre><a href="a/">a/</a></pre>`,
		"/d/a/":     `<pre><a href="b/">b/</a></pre>`,
		"/d/a/b/":   `<pre><a href="c/">c/</a></pre>`,
		"/d/a/b/c/": `<pre><a href="deep.jpg">deep.jpg</a></pre>`,
	})

	crawler := NewCrawler(srv.Client())

	sources, err := crawler.Crawl(srv.URL+"/d/", []string{"jpg"}, 2, 0)
	require.NoError(t, err)
	assert.Empty(t, sources)

	sources, err = crawler.Crawl(srv.URL+"/d/", []string{"jpg"}, 3, 0)
	require.NoError(t, err)
	assert.Len(t, sources, 1)
}

func TestCrawlBrokenBranchIsSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/p/":
			fmt.Fprint(w, `<pre><a href="bad/">bad/</a><a href="good/">good/</a></pre>`)
		case "/p/good/":
			fmt.Fprint(w, `<pre><a href="ok.jpg">ok.jpg</a></pre>`)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	crawler := NewCrawler(srv.Client())
	sources, err := crawler.Crawl(srv.URL+"/p/", []string{"jpg"}, 8, 0)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Contains(t, sources[0].Locator, "/good/ok.jpg")
}

func TestCrawlRootUnreachable(t *testing.T) {
	srv := serveListings(t, map[string]string{})

	crawler := NewCrawler(srv.Client())
	_, err := crawler.Crawl(srv.URL+"/missing/", []string{"jpg"}, 8, 0)
	assert.Error(t, err)
}
