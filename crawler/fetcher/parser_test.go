package fetcher

import (
	"bytes"
	"net/url"
	"reflect"
	"testing"
)

func TestGoqueryParserParse(t *testing.T) {
	parser := NewGoqueryParser()
	expected := []*url.URL{
		mustParse("https://example.com/sample-page/"),
		mustParse("http://localhost:8787/sample-page/"),
		mustParse("http://localhost:8787/foo/bar"),
	}
	content := bytes.NewBufferString(
		`<head>
			<link rel="canonical" href="https://example.com/sample-page/" />
			<link rel="canonical" href="http://localhost:8787/sample-page/" />
		 </head>
		 <body>
			<a href="foo/bar"><img src="/baz.png"></a>
		 </body>`,
	)
	res, err := parser.Parse("http://localhost:8787", content)
	if err != nil {
		t.Fatalf("GoqueryParser#Parse failed: %v", err)
	}
	if !reflect.DeepEqual(res, expected) {
		t.Errorf("GoqueryParser#Parse failed: expected %v got %v", expected, res)
	}
}

func TestGoqueryParserStripsFragmentAndCdnCgi(t *testing.T) {
	parser := NewGoqueryParser()
	content := bytes.NewBufferString(
		`<body>
			<a href="/foo/bar#section-2">keep, fragment stripped</a>
			<a href="/cdn-cgi/l/email-protection">dropped</a>
		 </body>`,
	)
	res, err := parser.Parse("http://localhost:8787", content)
	if err != nil {
		t.Fatalf("GoqueryParser#Parse failed: %v", err)
	}
	if len(res) != 1 {
		t.Fatalf("GoqueryParser#Parse failed: expected 1 link got %d (%v)", len(res), res)
	}
	if res[0].Fragment != "" {
		t.Errorf("GoqueryParser#Parse failed: expected stripped fragment, got %q", res[0].Fragment)
	}
	if res[0].String() != "http://localhost:8787/foo/bar" {
		t.Errorf("GoqueryParser#Parse failed: expected http://localhost:8787/foo/bar got %s", res[0].String())
	}
}

func TestGoqueryParserExcludeExtensions(t *testing.T) {
	parser := NewGoqueryParser()
	parser.ExcludeExtensions(".pdf")
	content := bytes.NewBufferString(
		`<body>
			<a href="/report.pdf">skip</a>
			<a href="/index.html">keep</a>
		 </body>`,
	)
	res, err := parser.Parse("http://localhost:8787", content)
	if err != nil {
		t.Fatalf("GoqueryParser#Parse failed: %v", err)
	}
	if len(res) != 1 || res[0].String() != "http://localhost:8787/index.html" {
		t.Errorf("GoqueryParser#Parse failed: expected only /index.html, got %v", res)
	}
}

func mustParse(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
