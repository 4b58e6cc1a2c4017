package webui

import (
	"html/template"
)

// PageData is rendered into the overlay page
type PageData struct {
	StatusText string
	Status     string
	Listen     string
	Version    string
	Commit     string
	BuildDate  string
	Logs       []LogEntry
}

// Templates contains the HTML templates for the local overlay page
var Templates = template.Must(template.New("").Funcs(template.FuncMap{
	"levelClass": func(level string) string {
		switch level {
		case "error", "fatal", "panic":
			return "log-error"
		case "warn":
			return "log-warn"
		case "debug", "trace":
			return "log-debug"
		default:
			return "log-info"
		}
	},
}).Parse(`
{{define "overlay"}}
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Red Alert</title>
    <style>
        :root {
            --bg: #0d1117;
            --panel: #161b22;
            --border: #30363d;
            --text: #e6edf3;
            --muted: #8b949e;
            --red: #b91c1c;
            --red-dark: #7f1d1d;
            --green: #3fb950;
            --yellow: #d29922;
            --grey: #6e7681;
        }
        * { box-sizing: border-box; }
        body { margin: 0; background: var(--bg); color: var(--text); font-family: system-ui, sans-serif; }
        header { display: flex; justify-content: space-between; align-items: center; padding: 12px 20px; background: var(--panel); border-bottom: 1px solid var(--border); }
        .status { display: flex; align-items: center; gap: 8px; }
        .dot { width: 10px; height: 10px; border-radius: 50%; background: var(--grey); }
        .dot.connected { background: var(--green); }
        .dot.connecting { background: var(--yellow); }
        .dot.error { background: var(--red); }
        main { padding: 20px; }
        button { font: inherit; padding: 10px 18px; border-radius: 6px; border: 1px solid var(--border); background: var(--panel); color: var(--text); cursor: pointer; }
        button:disabled { opacity: .4; cursor: not-allowed; }
        #overlay { display: none; position: fixed; inset: 0; background: rgba(127, 29, 29, .92); align-items: center; justify-content: center; z-index: 10; }
        #overlay.visible { display: flex; }
        .card { background: var(--red); border: 2px solid #fff; border-radius: 12px; padding: 32px; max-width: 640px; width: 90%; box-shadow: 0 0 60px rgba(0,0,0,.6); }
        .card.urgent { border-width: 4px; animation: pulse 1s infinite alternate; }
        @keyframes pulse { from { box-shadow: 0 0 20px #fff; } to { box-shadow: 0 0 60px #ff0; } }
        .banner { display: none; font-weight: 700; letter-spacing: .2em; color: #fde047; margin-bottom: 12px; }
        .card.urgent .banner { display: block; }
        .card h1 { margin: 0 0 8px; font-size: 1.8rem; }
        .card .date { color: #fecaca; margin-bottom: 16px; }
        .card .actions { display: flex; gap: 12px; margin-top: 24px; flex-wrap: wrap; }
        .card .primary { background: #fff; color: var(--red-dark); font-weight: 600; }
        .logs { font-family: ui-monospace, monospace; font-size: 12px; background: var(--panel); border: 1px solid var(--border); border-radius: 6px; padding: 8px; max-height: 60vh; overflow: auto; }
        .log-error { color: #f85149; }
        .log-warn { color: var(--yellow); }
        .log-debug { color: var(--muted); }
        footer { color: var(--muted); font-size: 12px; padding: 12px 20px; }
    </style>
</head>
<body>
    <header>
        <div class="status"><span id="dot" class="dot {{.Status}}"></span><span id="status-text">{{.StatusText}}</span></div>
        <button id="reconnect">Reconnect</button>
    </header>
    <main>
        <h3>Recent activity</h3>
        <div class="logs" id="logs">
            {{range .Logs}}<div class="{{levelClass .Level}}">{{.Timestamp.Format "15:04:05"}} {{.Level}} {{.Message}}</div>{{end}}
        </div>
    </main>
    <footer>redalert {{.Version}} ({{.Commit}}, {{.BuildDate}}) listening on {{.Listen}}</footer>

    <div id="overlay">
        <div class="card" id="card">
            <div class="banner">URGENT</div>
            <h1 id="title"></h1>
            <div class="date" id="date"></div>
            <p id="description"></p>
            <div class="actions">
                <button class="primary" data-action="join">Join now</button>
                <button data-action="calendar">Add to calendar</button>
                <button data-action="dismiss">Dismiss</button>
            </div>
        </div>
    </div>
    <audio id="cue" src="/cue.wav" preload="auto"></audio>

    <script>
    let shown = null;

    async function refresh() {
        try {
            const res = await fetch('/alert');
            const data = await res.json();
            document.getElementById('status-text').textContent = data.status_text;
            document.getElementById('dot').className = 'dot ' + data.status;
            render(data);
        } catch (e) {
            document.getElementById('status-text').textContent = 'Local service unreachable';
        }
    }

    function render(data) {
        const overlay = document.getElementById('overlay');
        if (!data.alert) {
            overlay.classList.remove('visible');
            shown = null;
            return;
        }
        // every delivery has its own seq, repeats of the same payload included
        if (data.seq !== shown) {
            shown = data.seq;
            document.getElementById('cue').play().catch(() => {});
        }
        document.getElementById('card').classList.toggle('urgent', !!data.alert.isUrgent);
        document.getElementById('title').textContent = data.alert.title;
        document.getElementById('date').textContent = data.display_date;
        document.getElementById('description').textContent = data.alert.description || '';
        for (const a of data.actions) {
            const btn = document.querySelector('[data-action="' + a.kind + '"]');
            btn.disabled = !a.enabled;
            btn.textContent = a.label;
        }
        overlay.classList.add('visible');
    }

    document.querySelectorAll('[data-action]').forEach(btn => {
        btn.addEventListener('click', async () => {
            if (shown === null) return;
            await fetch('/alert/' + btn.dataset.action + '?seq=' + shown, { method: 'POST' });
            refresh();
        });
    });
    document.getElementById('reconnect').addEventListener('click', () => fetch('/api/reconnect', { method: 'POST' }));

    async function refreshLogs() {
        try {
            const res = await fetch('/api/logs?limit=100');
            const data = await res.json();
            const el = document.getElementById('logs');
            el.innerHTML = '';
            for (const e of data.entries) {
                const div = document.createElement('div');
                div.className = 'log-' + (e.level === 'error' || e.level === 'warn' || e.level === 'debug' ? e.level : 'info');
                div.textContent = new Date(e.timestamp).toLocaleTimeString() + ' ' + e.level + ' ' + e.message;
                el.appendChild(div);
            }
        } catch (e) {}
    }

    refresh();
    setInterval(refresh, 1000);
    setInterval(refreshLogs, 5000);
    </script>
</body>
</html>
{{end}}
`))
