package handlers

import (
	"fmt"
	"net/http"
)

const embedShell = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>StyleMirror Try-On</title>
</head>
<body>
<div id="stylemirror-root"></div>
<script src="%s/widget/assets/widget.js" defer></script>
</body>
</html>
`

// WidgetEmbed serves the iframe shell page that merchant sites frame to
// host the try-on widget. The page itself is static; the widget bundle
// reads its merchant key from the iframe URL fragment.
func WidgetEmbed(baseURL string) http.HandlerFunc {
	page := []byte(fmt.Sprintf(embedShell, baseURL))
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	}
}

// WidgetAssets serves the built widget bundle from a local directory.
func WidgetAssets(dir string) http.Handler {
	return http.StripPrefix("/widget/assets/", http.FileServer(http.Dir(dir)))
}
