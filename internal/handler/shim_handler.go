package handler

import (
	"bytes"
	_ "embed"
	"net/http"
	"text/template"

	"chat-dumper-go/internal/config"
	"chat-dumper-go/pkg/log"

	"github.com/gin-gonic/gin"
)

//go:embed assets/shim.js.tmpl
var shimSource string

var shimTemplate = template.Must(template.New("shim").Parse(shimSource))

type shimData struct {
	BaseURL      string
	Token        string
	InfoURL      string
	HistoriesURL string
	AnchorID     string
	HeaderClass  string
	HeaderText   string
}

// ShimHandler 返回注入到聊天页面的脚本，脚本内嵌了本会话的令牌。
type ShimHandler struct {
	publicURL string
	intercept config.InterceptConfig
	export    config.ExportConfig
}

// NewShimHandler 创建一个新的 ShimHandler 实例。
func NewShimHandler(publicURL string, intercept config.InterceptConfig, export config.ExportConfig) *ShimHandler {
	return &ShimHandler{publicURL: publicURL, intercept: intercept, export: export}
}

// Serve 渲染注入脚本。必须挂在 SessionMiddleware 之后，令牌取自 token 查询参数。
func (h *ShimHandler) Serve(c *gin.Context) {
	data := shimData{
		BaseURL:      h.publicURL,
		Token:        c.Query("token"),
		InfoURL:      h.intercept.InfoURL,
		HistoriesURL: h.intercept.HistoriesURL,
		AnchorID:     h.export.AnchorID,
		HeaderClass:  h.export.HeaderClass,
		HeaderText:   h.export.HeaderText,
	}

	var buf bytes.Buffer
	if err := shimTemplate.Execute(&buf, data); err != nil {
		log.Error("Serve: 渲染注入脚本失败", err)
		c.String(http.StatusInternalServerError, "// render failed")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", buf.Bytes())
}
