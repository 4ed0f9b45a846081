package notify

import (
	"github.com/charlie0129/saltlevel/pkg/store"
)

const (
	keyBarkEnabled     = "bark_en"
	keyBarkKey         = "bark_key"
	keyNtfyEnabled     = "ntfy_en"
	keyNtfyTopic       = "ntfy_topic"
	keyTelegramEnabled = "telegram_en"
	keyTelegramToken   = "telegram_token"
	keyTelegramChat    = "telegram_chat"
)

// Settings are the user-editable channel switches and credentials.
type Settings struct {
	BarkEnabled     bool   `json:"barkEnabled"`
	BarkKey         string `json:"barkKey"`
	NtfyEnabled     bool   `json:"ntfyEnabled"`
	NtfyTopic       string `json:"ntfyTopic"`
	TelegramEnabled bool   `json:"telegramEnabled"`
	TelegramToken   string `json:"telegramToken"`
	TelegramChat    int64  `json:"telegramChat"`
}

// LoadSettings reads the channel settings from s. Keys that were never
// written take their value from def.
func LoadSettings(s store.Store, def Settings) Settings {
	ns := store.NamespaceChannels
	return Settings{
		BarkEnabled:     store.Load(s, ns, keyBarkEnabled, def.BarkEnabled),
		BarkKey:         store.Load(s, ns, keyBarkKey, def.BarkKey),
		NtfyEnabled:     store.Load(s, ns, keyNtfyEnabled, def.NtfyEnabled),
		NtfyTopic:       store.Load(s, ns, keyNtfyTopic, def.NtfyTopic),
		TelegramEnabled: store.Load(s, ns, keyTelegramEnabled, def.TelegramEnabled),
		TelegramToken:   store.Load(s, ns, keyTelegramToken, def.TelegramToken),
		TelegramChat:    store.Load(s, ns, keyTelegramChat, def.TelegramChat),
	}
}

// SaveSettings persists every channel setting.
func SaveSettings(s store.Store, settings Settings) error {
	ns := store.NamespaceChannels
	values := []struct {
		key string
		v   any
	}{
		{keyBarkEnabled, settings.BarkEnabled},
		{keyBarkKey, settings.BarkKey},
		{keyNtfyEnabled, settings.NtfyEnabled},
		{keyNtfyTopic, settings.NtfyTopic},
		{keyTelegramEnabled, settings.TelegramEnabled},
		{keyTelegramToken, settings.TelegramToken},
		{keyTelegramChat, settings.TelegramChat},
	}
	for _, kv := range values {
		if err := store.Save(s, ns, kv.key, kv.v); err != nil {
			return err
		}
	}
	return nil
}

// Redacted returns a copy with secrets masked, suitable for the API.
func (s Settings) Redacted() Settings {
	s.BarkKey = mask(s.BarkKey)
	s.TelegramToken = mask(s.TelegramToken)
	return s
}

func mask(secret string) string {
	if len(secret) <= 4 {
		if secret == "" {
			return ""
		}
		return "****"
	}
	return secret[:2] + "****" + secret[len(secret)-2:]
}

// SettingsPatch is a partial update of Settings. Nil fields are left as
// they are.
type SettingsPatch struct {
	BarkEnabled     *bool   `json:"barkEnabled,omitempty"`
	BarkKey         *string `json:"barkKey,omitempty"`
	NtfyEnabled     *bool   `json:"ntfyEnabled,omitempty"`
	NtfyTopic       *string `json:"ntfyTopic,omitempty"`
	TelegramEnabled *bool   `json:"telegramEnabled,omitempty"`
	TelegramToken   *string `json:"telegramToken,omitempty"`
	TelegramChat    *int64  `json:"telegramChat,omitempty"`
}

// Apply returns s with the patch applied.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.BarkEnabled != nil {
		s.BarkEnabled = *p.BarkEnabled
	}
	if p.BarkKey != nil {
		s.BarkKey = *p.BarkKey
	}
	if p.NtfyEnabled != nil {
		s.NtfyEnabled = *p.NtfyEnabled
	}
	if p.NtfyTopic != nil {
		s.NtfyTopic = *p.NtfyTopic
	}
	if p.TelegramEnabled != nil {
		s.TelegramEnabled = *p.TelegramEnabled
	}
	if p.TelegramToken != nil {
		s.TelegramToken = *p.TelegramToken
	}
	if p.TelegramChat != nil {
		s.TelegramChat = *p.TelegramChat
	}
	return s
}

// Empty reports whether the patch changes nothing.
func (p SettingsPatch) Empty() bool {
	return p == SettingsPatch{}
}
