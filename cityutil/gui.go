/*
Copyright © 2024 the cityscene authors.
This file is part of cityscene.

cityscene is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

cityscene is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with cityscene.  If not, see <http://www.gnu.org/licenses/>.
*/

package cityutil

import (
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/ctessum/gobra"
	"github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/cobra"
)

// GUIAddress is where StartWebServer listens.
const GUIAddress = "localhost:7272"

// configHandler reads the configuration file named in the "config" form
// value and responds with the resulting option values as JSON.
func configHandler(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	Root.PersistentFlags().Set("config", r.FormValue("config"))
	if err := setConfig(); err != nil {
		http.Error(w, err.Error(), http.StatusNoContent)
		return
	}
	config := make(map[string]interface{})
	for _, option := range options {
		config[option.name] = Cfg.Get(option.name)
	}
	if err := json.NewEncoder(w).Encode(config); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// StartWebServer serves a form for every command in the browser.
func StartWebServer() {
	setConfig() // Errors show up when a command runs.

	http.HandleFunc("/setConfig", configHandler)

	for _, cmd := range []*cobra.Command{Root, versionCmd, gmlCmd, objCmd, osmCmd, rewriteCmd} {
		cmd.SilenceUsage = true
	}

	const tmpl = `
<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<title>cityscene</title>
	<style>
		html, body {padding: 0; margin: 2% 0; font-family: sans-serif;}
		.container { max-width: 700px; margin: 0 auto; padding: 10px; }
		div[id^="gobra-"] blockquote { border-left: 3px solid #bbb; margin: .3em; color: #333; padding-left: 5px; font-size: 75%; }
		div[id^="gobra-"] code { font-weight: bold; }
		div[id^="gobra-"] input { font-family: monospace; margin-left: .2em; width: 50%; outline:none; }
	</style>
</head>
<body>
<div class="container">
	<h1>cityscene</h1>
	<p>Choose a city model source and configure the conversion below.</p>
	<div>
		{{.}}
	</div>
</div>
<script>
let allFlags = [...document.querySelectorAll('[data-name]')];
let configInput = allFlags.filter(x => x.dataset.name == "config")[0].children[0];
configInput.addEventListener("input", e => {
	fetch("http://` + GUIAddress + `/setConfig?config="+configInput.value)
		.then(res => {
			if (res.status !== 200) return;
			res.json().then(data => {
				for (let key in data)
					for (let f of allFlags)
						if (f.dataset.name == key)
							f.children[0].value = JSON.stringify(data[key]).replace(/^"+|"+$/g,'');
			})
		})
});
</script>
</body>
</html>`

	output := template.Must(template.New("").Parse(tmpl))
	server := gobra.Server{Root: Root, ServerAddress: GUIAddress, AllowCORS: false, HTML: output}
	logrus.Info("server starting")
	if err := open.Run("http://" + GUIAddress); err != nil {
		logrus.Infof("please visit http://%s", GUIAddress)
	}
	server.Start()
}
