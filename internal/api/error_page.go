package api

import (
	"github.com/flosch/pongo2/v6"
	"github.com/gin-gonic/gin"
)

var errorPage = pongo2.Must(pongo2.FromString(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>{{ title }}</title>
</head>
<body>
<div class="main__content notice-flash">
  <div class="notification red">
    <b>Error:</b> {{ message }}
  </div>
  <p><a href="javascript:history.go(-1)">Go back</a> | <a href="{{ home }}">{{ title }}</a></p>
</div>
</body>
</html>
`))

// renderError shows the help desk error page.
func renderError(c *gin.Context, site SiteInfo, msg Message) {
	out, err := errorPage.Execute(pongo2.Context{
		"title":   site.Title,
		"home":    site.homeURL(),
		"message": msg.Text,
	})
	if err != nil {
		c.String(msg.Status, msg.Text)
		c.Abort()
		return
	}
	c.Data(msg.Status, "text/html; charset=utf-8", []byte(out))
	c.Abort()
}

// SiteInfo names the help desk on customer pages.
type SiteInfo struct {
	Title string
	URL   string
}

func (s SiteInfo) homeURL() string {
	if s.URL == "" {
		return "/index.php"
	}
	return s.URL
}
