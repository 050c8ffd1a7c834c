package briefing

import (
	"bytes"
	"html/template"
	"time"
)

var packTemplate = template.Must(template.New("pack").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).Parse(packTemplateText))

// labels carries the section headings for the chosen language.
type labels struct {
	Brief       string
	KeyPoints   string
	Engagements string
	Assignments string
	Timeline    string
	GeneratedAt string
	Untitled    string
}

var labelsEN = labels{
	Brief:       "Analytical Brief",
	KeyPoints:   "Key Points",
	Engagements: "Engagements",
	Assignments: "Open Assignments",
	Timeline:    "Recent Activity",
	GeneratedAt: "Generated",
	Untitled:    "Untitled",
}

var labelsAR = labels{
	Brief:       "الموجز التحليلي",
	KeyPoints:   "النقاط الرئيسية",
	Engagements: "الارتباطات",
	Assignments: "المهام المفتوحة",
	Timeline:    "النشاط الأخير",
	GeneratedAt: "تاريخ الإنشاء",
	Untitled:    "بدون عنوان",
}

// templateData holds data for pack template rendering. Direction is "rtl"
// for Arabic output.
type templateData struct {
	Lang        string
	Direction   string
	Labels      labels
	Title       string
	Subtitle    string
	Summary     string
	Status      string
	BriefTitle  string
	BriefBody   string
	KeyPoints   []string
	Engagements []templateEngagement
	Assignments []templateAssignment
	Events      []templateEvent
	GeneratedAt time.Time
}

type templateEngagement struct {
	Title    string
	Kind     string
	Location string
	Date     string
}

type templateAssignment struct {
	Title    string
	Assignee string
	Status   string
	Priority string
	Deadline string
}

type templateEvent struct {
	Type string
	Date string
}

func renderPackHTML(data templateData) (string, error) {
	var buf bytes.Buffer
	if err := packTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const packTemplateText = `<!DOCTYPE html>
<html lang="{{.Lang}}" dir="{{.Direction}}">
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, "Noto Naskh Arabic", sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #1d3557; padding-bottom: 0.5rem; }
    h2 { color: #1d3557; margin-top: 2rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #ccc; padding: 0.4rem 0.6rem; text-align: start; }
    th { background: #f1f5f9; }
    .status { text-transform: uppercase; font-size: 0.8em; letter-spacing: 0.05em; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  {{if .Subtitle}}<p>{{.Subtitle}}</p>{{end}}
  <div class="meta"><span class="status">{{.Status}}</span> | {{.Labels.GeneratedAt}}: {{formatDate .GeneratedAt "Jan 2, 2006 15:04"}}</div>
  {{if .Summary}}<p>{{.Summary}}</p>{{end}}

  {{if .BriefBody}}
  <h2>{{.Labels.Brief}}</h2>
  {{if .BriefTitle}}<h3>{{.BriefTitle}}</h3>{{end}}
  <p>{{.BriefBody}}</p>
  {{if .KeyPoints}}
  <h3>{{.Labels.KeyPoints}}</h3>
  <ul>{{range .KeyPoints}}<li>{{.}}</li>{{end}}</ul>
  {{end}}
  {{end}}

  {{if .Engagements}}
  <h2>{{.Labels.Engagements}}</h2>
  <table>
    <tr><th></th><th></th><th></th></tr>
    {{range .Engagements}}<tr><td>{{.Title}} ({{.Kind}})</td><td>{{.Location}}</td><td>{{.Date}}</td></tr>{{end}}
  </table>
  {{end}}

  {{if .Assignments}}
  <h2>{{.Labels.Assignments}}</h2>
  <table>
    <tr><th></th><th></th><th></th><th></th></tr>
    {{range .Assignments}}<tr><td>{{.Title}}</td><td>{{.Assignee}}</td><td>{{.Status}} / {{.Priority}}</td><td>{{.Deadline}}</td></tr>{{end}}
  </table>
  {{end}}

  {{if .Events}}
  <h2>{{.Labels.Timeline}}</h2>
  <ul>{{range .Events}}<li>{{.Date}}: {{.Type}}</li>{{end}}</ul>
  {{end}}
</body>
</html>`
