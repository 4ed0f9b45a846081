package locale

import "fmt"

// Key identifies a user-facing string.
type Key string

const (
	AlertTitle     Key = "alert.title"
	AlertBody      Key = "alert.body"
	TestTitle      Key = "test.title"
	TestBody       Key = "test.body"
	PortalTitle    Key = "portal.title"
	PortalIntro    Key = "portal.intro"
	PortalNetwork  Key = "portal.network"
	PortalPassword Key = "portal.password"
	PortalSave     Key = "portal.save"
	PortalScan     Key = "portal.scan"
	PortalReset    Key = "portal.reset"
	PortalSaved    Key = "portal.saved"
	PortalResetOK  Key = "portal.resetDone"
)

var tables = map[string]map[Key]string{
	"en": {
		AlertTitle:     "Salt Level Low",
		AlertBody:      "Distance %.1fcm (%.0f%% full)",
		TestTitle:      "Salt Level Monitor",
		TestBody:       "Test notification from %s",
		PortalTitle:    "Salt Level Monitor setup",
		PortalIntro:    "Choose the Wi-Fi network this monitor should join.",
		PortalNetwork:  "Network",
		PortalPassword: "Password",
		PortalSave:     "Save and restart",
		PortalScan:     "Rescan",
		PortalReset:    "Factory reset",
		PortalSaved:    "Saved. The monitor is restarting and will join %s.",
		PortalResetOK:  "Settings erased. The monitor is restarting.",
	},
	"fr": {
		AlertTitle:     "Niveau de sel bas",
		AlertBody:      "Distance %.1fcm (%.0f%% plein)",
		TestTitle:      "Moniteur de niveau de sel",
		TestBody:       "Notification de test depuis %s",
		PortalTitle:    "Configuration du moniteur de sel",
		PortalIntro:    "Choisissez le réseau Wi-Fi que ce moniteur doit rejoindre.",
		PortalNetwork:  "Réseau",
		PortalPassword: "Mot de passe",
		PortalSave:     "Enregistrer et redémarrer",
		PortalScan:     "Actualiser",
		PortalReset:    "Réinitialisation",
		PortalSaved:    "Enregistré. Le moniteur redémarre et rejoindra %s.",
		PortalResetOK:  "Paramètres effacés. Le moniteur redémarre.",
	},
}

// T returns the string for key in lang, formatted with args. Missing
// translations fall back to English.
func T(lang string, key Key, args ...any) string {
	s, ok := tables[Match(lang)][key]
	if !ok {
		s, ok = tables[Default][key]
		if !ok {
			return string(key)
		}
	}
	if len(args) == 0 {
		return s
	}
	return fmt.Sprintf(s, args...)
}
