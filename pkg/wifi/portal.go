package wifi

import (
	"context"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/saltlevel/pkg/locale"
)

const scanTimeout = 10 * time.Second

// Portal is the captive provisioning web UI. Submitted credentials and
// reset requests are handed to the provisioning loop over channels; the
// portal itself never touches the store.
type Portal struct {
	engine    *gin.Engine
	driver    Driver
	name      string
	ip        net.IP
	lang      func() string
	submitted chan Credentials
	reset     chan struct{}
}

func NewPortal(d Driver, name string, ip net.IP, lang func() string) *Portal {
	if lang == nil {
		lang = func() string { return locale.Default }
	}
	p := &Portal{
		driver:    d,
		name:      name,
		ip:        ip,
		lang:      lang,
		submitted: make(chan Credentials, 1),
		reset:     make(chan struct{}, 1),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(portalLogger())
	router.GET("/", p.index)
	router.POST("/save", p.save)
	router.GET("/scan", p.scan)
	router.POST("/reset", p.resetDevice)
	router.NoRoute(p.redirect)
	p.engine = router

	return p
}

func (p *Portal) Handler() http.Handler { return p.engine }

// Submitted delivers credentials entered by the user.
func (p *Portal) Submitted() <-chan Credentials { return p.submitted }

// ResetRequested fires when the user asked for a factory reset.
func (p *Portal) ResetRequested() <-chan struct{} { return p.reset }

func (p *Portal) networks(ctx context.Context) []Network {
	ctx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()

	nets, err := p.driver.Scan(ctx)
	if err != nil {
		logrus.WithError(err).Warn("failed to scan networks")
		return nil
	}
	sort.SliceStable(nets, func(i, j int) bool { return nets[i].Strength > nets[j].Strength })
	return nets
}

func (p *Portal) render(c *gin.Context, code int, page PortalPage) {
	page.DeviceName = p.name
	b, err := RenderPortal(page, p.lang())
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.Data(code, "text/html; charset=utf-8", b)
}

func (p *Portal) index(c *gin.Context) {
	p.render(c, http.StatusOK, PortalPage{Networks: p.networks(c.Request.Context())})
}

func (p *Portal) scan(c *gin.Context) {
	nets := p.networks(c.Request.Context())
	if nets == nil {
		nets = []Network{}
	}
	c.IndentedJSON(http.StatusOK, nets)
}

func (p *Portal) save(c *gin.Context) {
	ssid := c.PostForm("ssid")
	password := c.PostForm("password")

	if err := ValidateCredentials(ssid, password); err != nil {
		p.render(c, http.StatusBadRequest, PortalPage{Error: err.Error()})
		return
	}

	select {
	case p.submitted <- Credentials{SSID: ssid, Password: password, Valid: true}:
	default:
		// a submission is already being applied
	}

	logrus.WithField("ssid", ssid).Info("received wifi credentials")
	p.render(c, http.StatusOK, PortalPage{Message: locale.T(p.lang(), locale.PortalSaved, ssid)})
}

func (p *Portal) resetDevice(c *gin.Context) {
	select {
	case p.reset <- struct{}{}:
	default:
	}
	p.render(c, http.StatusOK, PortalPage{Message: locale.T(p.lang(), locale.PortalResetOK)})
}

// redirect sends every unknown URL (OS connectivity checks included) to the
// portal so phones pop up the sign-in page.
func (p *Portal) redirect(c *gin.Context) {
	host := "/"
	if p.ip != nil {
		host = "http://" + p.ip.String() + "/"
	}
	c.Redirect(http.StatusFound, host)
}

func portalLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"statusCode": c.Writer.Status(),
			"latency":    time.Since(start),
		}).Debug("portal request")
	}
}
