package wifi

import (
	"bytes"
	"html/template"

	"github.com/charlie0129/saltlevel/pkg/locale"
)

// PortalPage is the data shown on the provisioning page.
type PortalPage struct {
	DeviceName string
	Networks   []Network
	// Message replaces the form, e.g. after saving.
	Message string
	// Error is shown above the form.
	Error string
}

var portalTemplate = template.Must(template.New("portal").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.T.Title}}</title>
<style>
body{font-family:sans-serif;max-width:28em;margin:2em auto;padding:0 1em}
input,select,button{width:100%;padding:.6em;margin:.3em 0;box-sizing:border-box}
.err{color:#b00}
small{color:#666}
</style>
</head>
<body>
<h1>{{.T.Title}}</h1>
<small>{{.Page.DeviceName}}</small>
{{if .Page.Message}}
<p>{{.Page.Message}}</p>
{{else}}
<p>{{.T.Intro}}</p>
{{if .Page.Error}}<p class="err">{{.Page.Error}}</p>{{end}}
<form method="post" action="/save">
<label>{{.T.Network}}
<input name="ssid" list="networks" required maxlength="32" autocomplete="off">
</label>
<datalist id="networks">
{{range .Page.Networks}}<option value="{{.SSID}}">{{.Strength}}%{{if .Secured}} &#128274;{{end}}</option>
{{end}}</datalist>
<label>{{.T.Password}}
<input name="password" type="password" maxlength="63">
</label>
<button type="submit">{{.T.Save}}</button>
</form>
<form method="get" action="/"><button type="submit">{{.T.Scan}}</button></form>
<form method="post" action="/reset"><button type="submit">{{.T.Reset}}</button></form>
{{end}}
</body>
</html>
`))

type portalStrings struct {
	Title, Intro, Network, Password, Save, Scan, Reset string
}

// RenderPortal renders the provisioning page in lang.
func RenderPortal(page PortalPage, lang string) ([]byte, error) {
	lang = locale.Match(lang)
	data := struct {
		Lang string
		Page PortalPage
		T    portalStrings
	}{
		Lang: lang,
		Page: page,
		T: portalStrings{
			Title:    locale.T(lang, locale.PortalTitle),
			Intro:    locale.T(lang, locale.PortalIntro),
			Network:  locale.T(lang, locale.PortalNetwork),
			Password: locale.T(lang, locale.PortalPassword),
			Save:     locale.T(lang, locale.PortalSave),
			Scan:     locale.T(lang, locale.PortalScan),
			Reset:    locale.T(lang, locale.PortalReset),
		},
	}

	var buf bytes.Buffer
	if err := portalTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
