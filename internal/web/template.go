package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/breathing-led/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"orUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"duty": func(d float64) string {
		return fmt.Sprintf("%.1f", d)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Breathing LED</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.running { color: green; font-weight: bold; }
.stopped { color: red; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.bar { background: #eee; height: 12px; width: 100%; }
.bar div { background: #f5a623; height: 12px; }
.error { color: red; }
</style>
</head>
<body>
<h1>Breathing LED</h1>

<h2>Output</h2>
<table>
<tr><th>Lifecycle</th><td id="lifecycle" class="{{if eq (orUnknown .Lifecycle) "RUNNING"}}running{{else if eq (orUnknown .Lifecycle) "STOPPED"}}stopped{{else}}unknown{{end}}">{{orUnknown .Lifecycle}}</td></tr>
<tr><th>Duty</th><td><span id="duty">{{duty .State.Duty}}</span>%<div class="bar"><div id="duty-bar" style="width: {{duty .State.Duty}}%"></div></div></td></tr>
<tr><th>Direction</th><td id="direction">{{orUnknown (printf "%s" .State.Direction)}}</td></tr>
{{if .LastError}}<tr><th>Last error</th><td class="error">{{.LastError}}</td></tr>{{end}}
</table>

<h2>Board</h2>
<table>
<tr><th>Device</th><td>{{orUnknown .Board.DeviceID}}</td></tr>
<tr><th>Variant</th><td>{{orUnknown .Board.Variant}}</td></tr>
<tr><th>Channel</th><td>{{orUnknown .Board.Channel}}</td></tr>
</table>

<h2>Counts</h2>
<table>
<tr><th>Steps</th><td id="steps">{{.Counts.Steps}}</td></tr>
<tr><th>Peaks</th><td>{{.Counts.Peaks}}</td></tr>
<tr><th>Cycles</th><td>{{.Counts.Troughs}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Frequency</th><td>{{.Config.FrequencyHz}}Hz</td></tr>
<tr><th>Step</th><td>{{.Config.Step}}% every {{.Config.IntervalMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var duty = document.getElementById("duty");
  var bar = document.getElementById("duty-bar");
  var dir = document.getElementById("direction");
  var life = document.getElementById("lifecycle");
  var steps = document.getElementById("steps");

  function poll() {
    fetch("/index.json").then(function(r) { return r.json(); }).then(function(msg) {
      var s = msg.status;
      duty.textContent = s.duty.toFixed(1);
      bar.style.width = s.duty + "%";
      dir.textContent = s.direction;
      life.textContent = s.lifecycle;
      life.className = s.lifecycle === "RUNNING" ? "running" : s.lifecycle === "STOPPED" ? "stopped" : "unknown";
      steps.textContent = s.counts.steps;
    }).catch(function() {});
  }
  setInterval(poll, 500);
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
