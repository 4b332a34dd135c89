package notification

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"sort"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/okieraised/thermostat-alerts/internal/models"
	"github.com/pkg/errors"
)

const chartKey = "temperature_chart"

// Message is a rendered email with plain text and HTML alternatives.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type detail struct {
	Label string
	Value string
	Items []detail
}

type view struct {
	Title     string
	Message   string
	Device    string
	Time      string
	Chart     string
	Details   []detail
	DeviceURL string
	AlertsURL string
	AppName   string
}

const textBody = `{{.Title}}

{{.Message}}

Device: {{.Device}}
Time: {{.Time}}
{{- if .Details}}

Details
{{- range .Details}}
{{- if .Items}}
{{.Label}}:
{{- range .Items}}
  - {{.Label}}: {{.Value}}
{{- end}}
{{- else}}
- {{.Label}}: {{.Value}}
{{- end}}
{{- end}}
{{- end}}
{{- if .Chart}}

Temperature chart: {{.Chart}}
{{- end}}
{{- if .DeviceURL}}

View device: {{.DeviceURL}}
{{- end}}
{{- if .AlertsURL}}
Manage your alert subscriptions: {{.AlertsURL}}
{{- end}}

Thanks,
{{.AppName}}
`

const htmlBody = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1f2933;">
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
<p><strong>Device:</strong> {{.Device}}<br><strong>Time:</strong> {{.Time}}</p>
{{- if or .Details .Chart}}
<h2>Details</h2>
{{- if .Chart}}
<p><img src="{{.Chart}}" alt="Temperature Chart" style="max-width: 100%;"></p>
{{- end}}
<ul>
{{- range .Details}}
{{- if .Items}}
<li><strong>{{.Label}}:</strong>
<ul>
{{- range .Items}}
<li>{{.Label}}: {{.Value}}</li>
{{- end}}
</ul>
</li>
{{- else}}
<li><strong>{{.Label}}:</strong> {{.Value}}</li>
{{- end}}
{{- end}}
</ul>
{{- end}}
{{- if .DeviceURL}}
<p><a href="{{.DeviceURL}}">View Device</a></p>
{{- end}}
{{- if .AlertsURL}}
<p>To manage your alert subscriptions, visit your <a href="{{.AlertsURL}}">alerts page</a>.</p>
{{- end}}
<p>Thanks,<br>{{.AppName}}</p>
</body>
</html>
`

var (
	textTmpl = texttemplate.Must(texttemplate.New("alert.txt").Parse(textBody))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("alert.html").Parse(htmlBody))
)

// Renderer turns an alert log into an email. Enqueued and immediate
// deliveries both go through it.
type Renderer struct {
	appName      string
	dashboardURL string
	loc          *time.Location
}

func NewRenderer(appName, dashboardURL string, loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{
		appName:      appName,
		dashboardURL: strings.TrimRight(dashboardURL, "/"),
		loc:          loc,
	}
}

// Subject is "Alert: " followed by the kind label.
func Subject(kind models.AlertKind) string {
	return "Alert: " + kind.Label()
}

// Render expects entry.Subscription to be loaded.
func (r *Renderer) Render(to string, entry *models.AlertLog) (Message, error) {
	subject := Subject(entry.Subscription.AlertKind)
	v := view{
		Title:   subject,
		Message: entry.Message,
		Device:  deviceName(entry),
		Time:    entry.TriggeredAt.In(r.loc).Format("Jan 2, 2006 3:04 PM"),
		Details: details(entry.Data),
		AppName: r.appName,
	}
	if chart, ok := entry.Data[chartKey].(string); ok {
		v.Chart = chart
	}
	if r.dashboardURL != "" {
		v.AlertsURL = r.dashboardURL + "/alerts"
		if entry.DeviceID != nil {
			v.DeviceURL = r.dashboardURL + "/dashboard/" + strconv.FormatUint(uint64(*entry.DeviceID), 10)
		}
	}

	var text, html bytes.Buffer
	if err := textTmpl.Execute(&text, v); err != nil {
		return Message{}, errors.Wrap(err, "failed to render text body")
	}
	if err := htmlTmpl.Execute(&html, v); err != nil {
		return Message{}, errors.Wrap(err, "failed to render html body")
	}
	return Message{To: to, Subject: subject, Text: text.String(), HTML: html.String()}, nil
}

func deviceName(entry *models.AlertLog) string {
	if entry.Device != nil && entry.Device.Name != "" {
		return entry.Device.Name
	}
	if name, ok := entry.Data["device_name"].(string); ok && name != "" {
		return name
	}
	return "All devices"
}

// humanize turns "avg_temperature" into "Avg temperature".
func humanize(key string) string {
	s := strings.ReplaceAll(key, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func details(data map[string]interface{}) []detail {
	keys := make([]string, 0, len(data))
	for k := range data {
		if k == chartKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]detail, 0, len(keys))
	for _, k := range keys {
		d := detail{Label: humanize(k)}
		if nested, ok := data[k].(map[string]interface{}); ok {
			d.Items = details(nested)
			if len(d.Items) == 0 {
				d.Value = "-"
			}
		} else {
			d.Value = formatValue(data[k])
		}
		out = append(out, d)
	}
	return out
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case string:
		return t
	case bool:
		if t {
			return "Yes"
		}
		return "No"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, formatValue(item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}
