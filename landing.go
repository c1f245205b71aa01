package main

import (
	"html/template"
	"net/http"
)

const landingCSS = `*,*::before,*::after{box-sizing:border-box;margin:0;padding:0}
:root{
  --accent:#7B68EE;
  --bg:#FFFFFF;
  --text:#1C1C1E;
  --text-secondary:#8E8E93;
  --divider:#E5E5EA;
  --code-bg:#F2F2F7;
  --radius:10px;
}
@media(prefers-color-scheme:dark){
  :root{
    --bg:#1C1C1E;
    --text:#F2F2F7;
    --divider:#3A3A3C;
    --code-bg:#3A3A3C;
  }
}
body{
  font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Roboto,Helvetica,Arial,sans-serif;
  color:var(--text);
  background:var(--bg);
  line-height:1.6;
  font-size:16px;
  -webkit-font-smoothing:antialiased;
}
.container{max-width:760px;margin:0 auto;padding:48px 24px}
h1{font-size:28px;margin-bottom:4px}
.subtitle{color:var(--text-secondary);margin-bottom:32px}
h2{font-size:18px;margin:32px 0 12px}
code{background:var(--code-bg);padding:2px 6px;border-radius:4px;font-size:14px}
.endpoint{border:1px solid var(--divider);border-radius:var(--radius);padding:12px 16px;margin-bottom:8px}
.endpoint .path{font-weight:600}
.tool{padding:8px 0;border-bottom:1px solid var(--divider)}
.tool:last-child{border-bottom:none}
.tool .name{font-weight:600}
.tool .desc{color:var(--text-secondary);font-size:14px}
footer{margin-top:48px;color:var(--text-secondary);font-size:14px}
`

var landingTmpl = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>ClickUp MCP Server</title>
<style>{{.CSS}}</style>
</head>
<body>
<div class="container">
  <h1>ClickUp MCP Server</h1>
  <p class="subtitle">Model Context Protocol tools for ClickUp task management.</p>

  <h2>Endpoints</h2>
  <div class="endpoint"><span class="path">POST /mcp</span> &mdash; streamable MCP endpoint</div>
  <div class="endpoint"><span class="path">POST /functions/mcp</span> &mdash; serverless JSON-RPC endpoint</div>
  <div class="endpoint"><span class="path">GET /health</span> &mdash; liveness probe</div>

  <h2>Tools</h2>
  {{range .Tools}}<div class="tool">
    <div class="name"><code>{{.Name}}</code></div>
    <div class="desc">{{.Desc}}</div>
  </div>
  {{end}}
  <h2>Connect</h2>
  <p>Point your MCP client at <code>/mcp</code>. Authentication to ClickUp uses
  the server's <code>CLICKUP_API_KEY</code>; no client-side credentials are needed.</p>

  <footer>clickup-mcp</footer>
</div>
</body>
</html>
`))

type landingTool struct {
	Name string
	Desc string
}

func handleLandingPage(w http.ResponseWriter, _ *http.Request) {
	tools := make([]landingTool, 0, len(toolDefs))
	for _, def := range toolDefs {
		tools = append(tools, landingTool{Name: def.name, Desc: def.desc})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	landingTmpl.Execute(w, struct {
		CSS   template.CSS
		Tools []landingTool
	}{template.CSS(landingCSS), tools})
}
