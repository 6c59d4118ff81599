package api

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/dmitrijs2005/rtmp-auth/internal/common"
)

// SRS callback actions.
const (
	ActionPublish   = "on_publish"
	ActionUnpublish = "on_unpublish"
)

// srsCallback is the JSON body SRS posts to its http_hooks.
type srsCallback struct {
	Action string `json:"action"`
	IP     string `json:"ip"`
	VHost  string `json:"vhost"`
	App    string `json:"app"`
	TcURL  string `json:"tcUrl"`
	Stream string `json:"stream"`
	Param  string `json:"param"`
}

// formCallback is the form nginx-rtmp and srtrelay post on publish.
type formCallback struct {
	App  string `form:"app"`
	Name string `form:"name"`
	Auth string `form:"auth"`
}

// callback is a normalized publish or unpublish notification.
type callback struct {
	App  string
	Name string
	Auth string
}

// parseCallback reads either an SRS JSON body, which must carry the given
// action, or a nginx-rtmp form.
func parseCallback(c *gin.Context, action string) (callback, error) {
	if c.ContentType() == binding.MIMEJSON {
		var body srsCallback
		if err := c.ShouldBindJSON(&body); err != nil {
			return callback{}, fmt.Errorf("decode srs callback: %w", err)
		}
		if body.Action != action {
			return callback{}, fmt.Errorf("invalid action %q", body.Action)
		}

		values, err := url.ParseQuery(strings.TrimPrefix(body.Param, "?"))
		if err != nil {
			return callback{}, fmt.Errorf("parse srs param: %w", err)
		}
		return callback{App: body.App, Name: body.Stream, Auth: values.Get(common.AuthQueryParam)}, nil
	}

	var form formCallback
	if err := c.ShouldBindWith(&form, binding.Form); err != nil {
		return callback{}, fmt.Errorf("decode form callback: %w", err)
	}
	return callback{App: form.App, Name: form.Name, Auth: form.Auth}, nil
}
