package server

import (
	"fmt"
	"html"
	"strings"

	"github.com/singlet-dev/singlet/internal/config"
)

// liveReloadScript connects to the live-reload socket and reloads the page
// when a source change is broadcast.
const liveReloadScript = `<script>
(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var sock = new WebSocket(proto + location.host + "/ws");
  sock.onmessage = function (ev) {
    var msg = JSON.parse(ev.data);
    if (msg.type === "full_reload") {
      location.reload();
    }
  };
  sock.onclose = function () {
    setTimeout(function () { location.reload(); }, 1000);
  };
})();
</script>`

func indexPage(cfg *config.Config, names []string) string {
	var items strings.Builder
	if len(names) == 0 {
		items.WriteString("<li><em>No components registered.</em></li>")
	}
	for _, name := range names {
		escaped := html.EscapeString(name)
		fmt.Fprintf(&items, `<li><a href="/component/%s">&lt;%s&gt;</a></li>`, escaped, escaped)
	}
	reload := ""
	if cfg.Development.HotReload {
		reload = liveReloadScript
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Singlet Components</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 42rem; }
li { margin: .4rem 0; }
a { color: #0b5fff; text-decoration: none; }
</style>
</head>
<body>
<h1>Singlet Components</h1>
<ul>%s</ul>
%s
</body>
</html>`, items.String(), reload)
}

func previewPage(name, rendered string, hotReload bool) string {
	reload := ""
	if hotReload {
		reload = liveReloadScript
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s - Singlet Preview</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 42rem; }
.preview { border: 1px solid #ddd; border-radius: 6px; padding: 1.5rem; }
nav { margin-bottom: 1rem; }
</style>
</head>
<body>
<nav><a href="/">&larr; components</a></nav>
<div class="preview">%s</div>
%s
</body>
</html>`, html.EscapeString(name), rendered, reload)
}
