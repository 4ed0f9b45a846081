package wifi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func newTestPortal() (*Portal, *fakeDriver) {
	d := &fakeDriver{networks: []Network{
		{SSID: "weak", Strength: 20},
		{SSID: "home", Strength: 80, Secured: true},
	}}
	return NewPortal(d, "SaltLevel-A1B2C3", DefaultAPAddress, nil), d
}

func TestPortalIndexListsNetworks(t *testing.T) {
	p, _ := newTestPortal()

	w := httptest.NewRecorder()
	p.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"SaltLevel-A1B2C3", `value="home"`, `value="weak"`, `action="/save"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("page misses %q", want)
		}
	}
	if strings.Index(body, `value="home"`) > strings.Index(body, `value="weak"`) {
		t.Fatalf("networks should be sorted by strength")
	}
}

func TestPortalScan(t *testing.T) {
	p, _ := newTestPortal()

	w := httptest.NewRecorder()
	p.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scan", nil))

	var nets []Network
	if err := json.Unmarshal(w.Body.Bytes(), &nets); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if len(nets) != 2 || nets[0].SSID != "home" {
		t.Fatalf("unexpected scan result %+v", nets)
	}
}

func TestPortalSave(t *testing.T) {
	tests := []struct {
		name     string
		ssid     string
		password string
		code     int
		accepted bool
	}{
		{"valid", "home", "hunter22", http.StatusOK, true},
		{"open network", "cafe", "", http.StatusOK, true},
		{"missing ssid", "", "hunter22", http.StatusBadRequest, false},
		{"short password", "home", "short", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestPortal()
			form := url.Values{"ssid": {tt.ssid}, "password": {tt.password}}
			req := httptest.NewRequest(http.MethodPost, "/save", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			w := httptest.NewRecorder()
			p.Handler().ServeHTTP(w, req)

			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d", w.Code, tt.code)
			}
			select {
			case c := <-p.Submitted():
				if !tt.accepted {
					t.Fatalf("invalid credentials were submitted")
				}
				if c.SSID != tt.ssid || c.Password != tt.password || !c.Valid {
					t.Fatalf("unexpected credentials %+v", c)
				}
			default:
				if tt.accepted {
					t.Fatalf("credentials were not submitted")
				}
			}
		})
	}
}

func TestPortalReset(t *testing.T) {
	p, _ := newTestPortal()

	w := httptest.NewRecorder()
	p.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/reset", nil))

	select {
	case <-p.ResetRequested():
	default:
		t.Fatalf("reset not requested")
	}
}

func TestPortalRedirectsEverythingElse(t *testing.T) {
	p, _ := newTestPortal()

	for _, path := range []string{"/generate_204", "/hotspot-detect.html", "/connecttest.txt"} {
		w := httptest.NewRecorder()
		p.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusFound {
			t.Fatalf("%s: status = %d", path, w.Code)
		}
		if loc := w.Header().Get("Location"); loc != "http://192.168.4.1/" {
			t.Fatalf("%s: location = %q", path, loc)
		}
	}
}

func TestRenderPortal(t *testing.T) {
	b, err := RenderPortal(PortalPage{
		DeviceName: "SaltLevel-A1B2C3",
		Networks:   []Network{{SSID: `<script>x</script>`}},
	}, "fr-CA")
	if err != nil {
		t.Fatalf("RenderPortal failed: %v", err)
	}
	page := string(b)
	if !strings.Contains(page, `lang="fr"`) || !strings.Contains(page, "Configuration du moniteur de sel") {
		t.Fatalf("page not in french")
	}
	if strings.Contains(page, "<script>x</script>") {
		t.Fatalf("ssid not escaped")
	}

	b, _ = RenderPortal(PortalPage{Message: "done"}, "en")
	if strings.Contains(string(b), "<form") {
		t.Fatalf("message page should not show the form")
	}
}
