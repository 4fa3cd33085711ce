package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/browser"

	"github.com/acwooding/dmp-test-ci/internal/scenario"
)

// HTMLFile is the HTML report's name inside the results directory
const HTMLFile = "index.html"

var funcs = template.FuncMap{
	"ms": func(d time.Duration) string { return d.Round(time.Millisecond).String() },
	"images": func(artifacts []string) []string {
		var out []string
		for _, a := range artifacts {
			if strings.HasSuffix(a, ".png") {
				out = append(out, filepath.ToSlash(a))
			}
		}
		return out
	},
	"others": func(artifacts []string) []string {
		var out []string
		for _, a := range artifacts {
			if !strings.HasSuffix(a, ".png") {
				out = append(out, filepath.ToSlash(a))
			}
		}
		return out
	},
}

var page = template.Must(template.New("report").Funcs(funcs).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Suite}}</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; color: #222; }
.passed { color: #1a7f37; } .failed { color: #cf222e; }
section { border-top: 1px solid #ddd; padding: .75rem 0; }
pre { background: #f6f8fa; padding: .5rem; white-space: pre-wrap; }
figure { display: inline-block; margin: .5rem; } img { max-width: 420px; border: 1px solid #ccc; }
</style>
</head>
<body>
<h1>{{.Suite}}</h1>
<p>{{.URL}} &middot; started {{.StartedAt.Format "2006-01-02 15:04:05"}} &middot; {{ms .Duration}}</p>
<p><span class="passed">{{.Passed}} passed</span>{{if .Failed}}, <span class="failed">{{.Failed}} failed</span>{{end}}</p>
{{range .Results}}
<section>
<h2 class="{{.Status}}">{{.Scenario}}</h2>
<p>{{.Status}} in {{ms .Duration}} of {{ms .Timeout}}{{if .Slow}} (slow){{end}}</p>
{{with .Failure}}<p><strong>{{.Kind}}</strong> during {{.Phase}}{{with .Step}} at {{.}}{{end}}</p>{{end}}
{{with .Error}}<pre>{{.}}</pre>{{end}}
{{range images .Artifacts}}<figure><img src="{{.}}" alt="{{.}}"><figcaption>{{.}}</figcaption></figure>{{end}}
{{range others .Artifacts}}<p><a href="{{.}}">{{.}}</a></p>{{end}}
{{with .UpdatedBaselines}}<p>Baselines written: {{range $i, $b := .}}{{if $i}}, {{end}}{{$b}}{{end}}</p>{{end}}
</section>
{{end}}
</body>
</html>
`))

// RenderHTML renders r as a standalone page. Artifact links are relative to
// the results directory.
func RenderHTML(r *scenario.Report) ([]byte, error) {
	var buf bytes.Buffer
	if err := page.Execute(&buf, r); err != nil {
		return nil, fmt.Errorf("rendering report: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteHTML writes index.html into dir and returns its path
func WriteHTML(dir string, r *scenario.Report) (string, error) {
	data, err := RenderHTML(r)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating results dir: %w", err)
	}
	path := filepath.Join(dir, HTMLFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing html report: %w", err)
	}
	return path, nil
}

// Open shows the HTML report in the system browser
func Open(path string) error {
	if err := browser.OpenFile(path); err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	return nil
}
