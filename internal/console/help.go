// ABOUTME: Help page rendering embedded markdown documents with goldmark
// ABOUTME: Each document under docs/help becomes one tab of the help page

package console

import (
	"bytes"
	"html/template"
	"io/fs"
	"net/http"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// helpOrder puts the topics in reading order; unknown topics sort last.
var helpOrder = map[string]int{
	"getting-started": 1,
	"api-session":     2,
	"pricing":         3,
	"billing":         4,
	"users":           5,
	"testing":         6,
	"operators":       7,
	"troubleshooting": 8,
}

var helpMarkdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// helpView is one rendered help document.
type helpView struct {
	Topic   string
	Content template.HTML
}

// helpTabs lists the embedded help documents.
func helpTabs() []tab {
	entries, err := fs.ReadDir(helpDocsFS, "docs/help")
	if err != nil {
		return []tab{{"getting-started", "Getting Started"}}
	}

	var tabs []tab
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		slug := strings.TrimSuffix(e.Name(), ".md")
		tabs = append(tabs, tab{Key: slug, Label: helpTitle(slug)})
	}

	rank := func(slug string) int {
		if n, ok := helpOrder[slug]; ok {
			return n
		}
		return 100
	}
	sort.Slice(tabs, func(i, j int) bool {
		ri, rj := rank(tabs[i].Key), rank(tabs[j].Key)
		if ri != rj {
			return ri < rj
		}
		return tabs[i].Key < tabs[j].Key
	})
	return tabs
}

// helpTitle turns a slug into a title: "api-session" -> "Api Session".
func helpTitle(slug string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(slug, "-", " "))
}

func loadHelp(c *Console, _ *http.Request, topic string) (any, error) {
	md, err := helpDocsFS.ReadFile("docs/help/" + topic + ".md")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := helpMarkdown.Convert(md, &buf); err != nil {
		return nil, err
	}
	// The documents are embedded at build time, so the HTML is trusted.
	return &helpView{Topic: topic, Content: template.HTML(buf.String())}, nil
}
