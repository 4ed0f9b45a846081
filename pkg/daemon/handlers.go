package daemon

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/saltlevel/pkg/level"
	"github.com/charlie0129/saltlevel/pkg/locale"
	"github.com/charlie0129/saltlevel/pkg/notify"
	"github.com/charlie0129/saltlevel/pkg/version"
	"github.com/charlie0129/saltlevel/pkg/wifi"
)

// Router returns the HTTP API.
func (d *Daemon) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/status", d.getStatus)
	router.GET("/history", d.getHistory)
	router.POST("/measure", d.postMeasure)
	router.POST("/schedule/skip", d.postSkip)
	router.GET("/calibration", d.getCalibration)
	router.PUT("/calibration", d.setCalibration)
	router.GET("/channels", d.getChannels)
	router.PUT("/channels", d.setChannels)
	router.GET("/language", d.getLanguage)
	router.PUT("/language", d.setLanguage)
	router.POST("/notify/test", d.postTestNotify)
	router.POST("/factory-reset", d.postFactoryReset)
	router.GET("/wifi", d.getWifi)
	router.GET("/events", d.getEvents)
	router.GET("/metrics", gin.WrapH(d.metrics.handler()))
	router.GET("/version", getVersion)

	return router
}

func badRequest(c *gin.Context, err error) {
	c.IndentedJSON(http.StatusBadRequest, err.Error())
	_ = c.AbortWithError(http.StatusBadRequest, err)
}

func internalError(c *gin.Context, err error) {
	c.IndentedJSON(http.StatusInternalServerError, err.Error())
	_ = c.AbortWithError(http.StatusInternalServerError, err)
}

func (d *Daemon) getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.Status())
}

func (d *Daemon) getHistory(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.history.All())
}

func (d *Daemon) postMeasure(c *gin.Context) {
	r := d.Cycle(c.Request.Context(), TriggerOnDemand, false)
	c.IndentedJSON(http.StatusOK, r)
}

// NextRun is the response of a schedule change.
type NextRun struct {
	NextRun time.Time `json:"nextRun"`
}

func (d *Daemon) postSkip(c *gin.Context) {
	next, err := d.SkipNext()
	if err != nil {
		badRequest(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, NextRun{NextRun: next})
}

func (d *Daemon) getCalibration(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.calibrator.Calibration())
}

func (d *Daemon) setCalibration(c *gin.Context) {
	var cal level.Calibration
	if err := c.BindJSON(&cal); err != nil {
		badRequest(c, err)
		return
	}

	err := d.UpdateCalibration(cal)
	if errors.Is(err, level.ErrInvalidCalibration) {
		badRequest(c, err)
		return
	}
	if err != nil {
		logrus.WithError(err).Error("failed to save calibration")
		internalError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"full":  cal.FullDistance,
		"empty": cal.EmptyDistance,
		"warn":  cal.WarnDistance,
	}).Info("updated calibration")
	c.IndentedJSON(http.StatusCreated, d.calibrator.Calibration())
}

func (d *Daemon) getChannels(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.dispatcher.Settings().Redacted())
}

func (d *Daemon) setChannels(c *gin.Context) {
	var p notify.SettingsPatch
	if err := c.BindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	if p.Empty() {
		badRequest(c, errors.New("no channel setting given"))
		return
	}

	s, err := d.UpdateChannels(p)
	if err != nil {
		logrus.WithError(err).Error("failed to save channel settings")
		internalError(c, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, s.Redacted())
}

func (d *Daemon) getLanguage(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, locale.Load(d.store))
}

func (d *Daemon) setLanguage(c *gin.Context) {
	var tag string
	if err := c.BindJSON(&tag); err != nil {
		badRequest(c, err)
		return
	}

	lang, err := d.SetLanguage(tag)
	if err != nil {
		badRequest(c, err)
		return
	}

	logrus.WithField("language", lang).Info("updated language")
	c.IndentedJSON(http.StatusCreated, lang)
}

func (d *Daemon) postTestNotify(c *gin.Context) {
	res := d.TestNotify(c.Request.Context())
	c.IndentedJSON(http.StatusOK, res)
}

func (d *Daemon) postFactoryReset(c *gin.Context) {
	c.IndentedJSON(http.StatusAccepted, "factory reset started, the device will restart")
	// The reset may exit the process, so the response goes out first.
	c.Writer.Flush()

	go func() {
		err := d.FactoryReset("api request")
		if err != nil && !errors.Is(err, wifi.ErrRestartRequested) {
			logrus.WithError(err).Error("factory reset")
		}
	}()
}

func (d *Daemon) getWifi(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.wifiStatus())
}

func (d *Daemon) getEvents(c *gin.Context) {
	ch, cancel := d.hub.Subscribe()
	defer cancel()
	logrus.WithField("subscribers", d.hub.Subscribers()).Debug("event stream opened")

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, ev.Data)
			return true
		}
	})
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
