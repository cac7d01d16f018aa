package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/irrigation-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		switch {
		case days > 0:
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		case h > 0:
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		case m > 0:
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Irrigation {{.Config.DeviceID}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unset { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Irrigation {{.Config.DeviceID}}</h1>

<h2>Pump</h2>
<table>
<tr><th>Relay</th><td id="relay" class="{{if .Relay.Active}}on{{else}}off{{end}}">{{if .Relay.Active}}ON{{else}}OFF{{end}}</td></tr>
<tr><th>Mode</th><td class="{{if eq .Mode.Mode.String "unset"}}unset{{end}}">{{.Mode.Mode}}</td></tr>
<tr><th>Schedule</th><td>{{range $i, $s := .Mode.Schedule}}{{if $i}}, {{end}}{{$s}}{{else}}none{{end}}</td></tr>
<tr><th>Next run</th><td>{{stamp .NextRun}}</td></tr>
{{with .LastEvent}}<tr><th>Last event</th><td>{{.Type}} ({{.Reason}}) {{stamp .Timestamp}}</td></tr>{{end}}
</table>

<h2>Readings</h2>
<table>
{{with .Climate}}<tr><th>Temperature</th><td>{{printf "%.1f" .Temperature}} &deg;C</td></tr>
<tr><th>Humidity</th><td>{{printf "%.1f" .Humidity}} %</td></tr>{{else}}<tr><th>Climate</th><td>no reading</td></tr>{{end}}
{{with .Moisture}}<tr><th>Soil moisture</th><td>{{.Percent}} %</td></tr>{{else}}<tr><th>Soil moisture</th><td>no reading</td></tr>{{end}}
<tr><th>Threshold</th><td>{{.Config.Threshold}} %</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
<tr><th>Telemetry</th><td>{{.Counts.TelemetryOK}} ok / {{.Counts.TelemetryFailed}} failed</td></tr>
<tr><th>Mode polls</th><td>{{.Counts.PollOK}} ok / {{.Counts.PollFailed}} failed, last {{stamp .LastPoll}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{stamp .StartTime}}</td></tr>
<tr><th>Clock offset</th><td>{{.ClockOffset}}</td></tr>
<tr><th>Pump runs</th><td>{{.Counts.PumpOn}} on / {{.Counts.PumpOff}} off</td></tr>
<tr><th>Telemetry every</th><td>{{.Config.TelemetryMs}}ms</td></tr>
<tr><th>Poll every</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Max on</th><td>{{.Config.MaxOnMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
